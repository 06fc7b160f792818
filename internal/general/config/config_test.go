package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
database:
  host: db.local
  user: taxi
  password: secret
  database: taxi
rabbitmq:
  user: guest
  password: guest
http:
  port: 9000
jwt:
  secret_key: test-secret
relay:
  join_trip_on_create: true
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}
	if cfg.Database.Host != "db.local" {
		t.Errorf("database.host = %q", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("database.port default = %d, want 5432", cfg.Database.Port)
	}
	if cfg.RabbitMQ.Port != 5672 {
		t.Errorf("rabbitmq.port default = %d, want 5672", cfg.RabbitMQ.Port)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("http.port = %d, want 9000", cfg.HTTP.Port)
	}
	if !cfg.Relay.JoinTripOnCreate {
		t.Error("relay.join_trip_on_create should be true")
	}
	if cfg.Relay.MaxDBWorkers != 16 {
		t.Errorf("relay.max_db_workers default = %d, want 16", cfg.Relay.MaxDBWorkers)
	}
}

func TestLoadFromFileMissingSecret(t *testing.T) {
	body := strings.Replace(validConfig, "  secret_key: test-secret\n", "", 1)
	t.Setenv("TAXI_JWT_SECRET", "")

	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "jwt.secret_key") {
		t.Errorf("expected jwt.secret_key validation error, got %v", err)
	}
}

func TestLoadFromFileSecretFromEnv(t *testing.T) {
	body := strings.Replace(validConfig, "  secret_key: test-secret\n", "", 1)
	t.Setenv("TAXI_JWT_SECRET", "env-secret")

	cfg, err := LoadFromFile(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}
	if cfg.JWT.SecretKey != "env-secret" {
		t.Errorf("jwt.secret_key = %q, want env-secret", cfg.JWT.SecretKey)
	}
}

func TestLoadFromFileUnknownKey(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, validConfig+"unknown_section:\n  a: 1\n"))
	if err == nil {
		t.Error("expected error for unknown top-level key")
	}
}

func TestLoadFromFileMissingCredentials(t *testing.T) {
	body := `
database:
  host: db.local
rabbitmq:
  user: guest
  password: guest
jwt:
  secret_key: s
`
	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "database.user") {
		t.Errorf("expected database.user validation error, got %v", err)
	}
}
