package relay

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire unit for every inbound and outbound relay message.
// Immutable once constructed.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals v into the data field of a fresh envelope.
func NewEnvelope(msgType string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope data: %w", err)
	}
	return Envelope{Type: msgType, Data: data}, nil
}

// ErrorData is the payload of an error envelope sent back to a client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
