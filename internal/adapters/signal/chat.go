package signal

import (
	"context"
	"encoding/json"

	"github.com/inkboard/inkboard/internal/domain"
)

func (ctl *Controller) handleChat(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type    string        `json:"type"`
		RoomID  domain.RoomID `json:"roomId"`
		Message string        `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 || p.Message == "" {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	if err := ctl.Shapes.Chat(ctx, c, p.RoomID, p.Message); err != nil {
		ctl.shapeError(c, err)
	}
}
