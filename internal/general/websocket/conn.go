package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"taxi/internal/relay"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	wsReadTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 1 << 20 // 1 MiB
)

// wsOutbound adapts a gorilla connection to the relay's outbound port. The
// mutex serializes writes; gorilla allows only one concurrent writer.
type wsOutbound struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newOutbound(conn *websocket.Conn) *wsOutbound {
	return &wsOutbound{conn: conn}
}

func (o *wsOutbound) Send(env relay.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return o.conn.WriteMessage(websocket.TextMessage, payload)
}

// writeClose sends a close control frame with the given code and reason.
func (o *wsOutbound) writeClose(code int, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = o.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

func (o *wsOutbound) ping() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}
