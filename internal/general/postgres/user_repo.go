package postgres

import (
	"context"
	"errors"
	"fmt"

	"taxi/internal/domain/user"
	"taxi/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// UserRepo persists users using pgx and plain SQL.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo(pool *pgxpool.Pool) ports.UserRepository {
	return &UserRepo{pool: pool}
}

func (repo *UserRepo) q(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

// CreateUser inserts a new user row and returns the generated id.
func (repo *UserRepo) CreateUser(ctx context.Context, u *user.User) error {
	err := repo.q(ctx).QueryRow(ctx, `
		INSERT INTO users (email, role, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`,
		u.Email,
		u.Role.String(),
		u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns one user by id.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	return repo.get(ctx, `WHERE id = $1`, id)
}

// GetByEmail returns one user by email. Emails are stored lowercased.
func (repo *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return repo.get(ctx, `WHERE email = $1`, email)
}

func (repo *UserRepo) get(ctx context.Context, where string, arg any) (*user.User, error) {
	var (
		out      user.User
		roleText string
	)
	err := repo.q(ctx).QueryRow(ctx, `
		SELECT id, created_at, updated_at, email, role, password_hash
		FROM users
		`+where, arg).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
		&out.Email, &roleText, &out.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	out.Role = user.Role(roleText)
	return &out, nil
}
