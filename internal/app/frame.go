package app

import (
	"encoding/json"
	"fmt"

	"github.com/inkboard/inkboard/internal/core"
)

// EncodeFrame builds the wire form of one server→client event:
// {"type": <event>, "data": <payload>}.
func EncodeFrame(event string, payload any) (core.Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = b
	}
	b, err := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}{Type: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return core.Frame(b), nil
}
