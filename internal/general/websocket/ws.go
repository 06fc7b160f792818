package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"taxi/internal/general/contracts"
	"taxi/internal/general/jwt"
	"taxi/internal/general/logger"
	"taxi/internal/relay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket exposes the realtime relay over a single upgraded endpoint.
type WebSocket struct {
	logger  *logger.Logger
	manager *relay.Manager
	router  *relay.Router
}

// NewWebSocket creates the WebSocket handler for the relay endpoint.
func NewWebSocket(logger *logger.Logger, manager *relay.Manager, router *relay.Router) *WebSocket {
	return &WebSocket{logger: logger, manager: manager, router: router}
}

// Connect handles GET /ws. The bearer token travels in the Authorization
// header or the `token` query parameter; auth failures are rejected before
// the upgrade so clients get a plain 401.
func (ws *WebSocket) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := ws.logger.WithRequestID(r.Context(), uuid.NewString())

	token, err := jwt.FromRequest(r)
	if err != nil {
		ws.logger.Error(ctx, "ws_auth_failed", "Missing bearer token on relay endpoint", err, nil)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(ctx, "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	out := newOutbound(conn)

	session, err := ws.manager.Connect(ctx, token, out)
	if err != nil {
		if errors.Is(err, relay.ErrUnauthenticated) {
			out.writeClose(websocket.ClosePolicyViolation, "authentication failed")
		} else {
			ws.logger.Error(ctx, "ws_connect_failed", "Failed to attach relay session", err, nil)
			out.writeClose(websocket.CloseInternalServerErr, "internal error")
		}
		return
	}
	defer ws.manager.Disconnect(ctx, session)

	ws.logger.Info(ctx, "ws_connected", "Relay session attached", map[string]any{
		"session_id": session.ID,
		"user_id":    session.UserID,
		"role":       session.Role.String(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// ping loop; a failed ping closes the socket to unblock the reader.
	// done unblocks the loop when the handler returns; Stop alone would
	// leave the goroutine parked on the ticker channel forever.
	done := make(chan struct{})
	defer close(done)
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := out.ping(); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				ws.logger.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{
					"session_id": session.ID,
				})
			} else {
				ws.logger.Info(ctx, "ws_connection_closed", "Connection closed", map[string]any{
					"session_id": session.ID,
				})
				out.writeClose(websocket.CloseNormalClosure, "bye")
			}
			return
		}

		var env relay.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			_ = out.Send(mustEnvelope(contracts.TypeError, map[string]string{"code": "validation_error", "message": "bad json"}))
			continue
		}

		// one message at a time per connection; ordering within the session
		// follows the socket
		ws.router.Dispatch(ctx, session, env)
	}
}

func mustEnvelope(msgType string, v any) relay.Envelope {
	env, err := relay.NewEnvelope(msgType, v)
	if err != nil {
		panic(err)
	}
	return env
}
