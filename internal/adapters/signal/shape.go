package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/app"
	"github.com/inkboard/inkboard/internal/domain"
)

func (ctl *Controller) shapeError(c *WsConn, err error) {
	if errors.Is(err, app.ErrNotMember) {
		ctl.sendError(c, "NOT_A_MEMBER")
		return
	}
	log.Error().Err(err).Str("module", "signal").Msg("shape event failed")
}

func (ctl *Controller) handleShapeCreate(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type      string          `json:"type"`
		RoomID    domain.RoomID   `json:"roomId"`
		ShapeType string          `json:"shapeType"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 || p.ShapeType == "" {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	shape, err := ctl.Shapes.Create(ctx, c, p.RoomID, p.ShapeType, p.Data)
	if err != nil {
		ctl.shapeError(c, err)
		return
	}
	// Echo the created shape back so the author learns the assigned ID
	// and can reconcile its optimistic copy.
	ctl.sendEvent(c, app.EventShapeCreated, shape)
}

func (ctl *Controller) handleShapeUpdate(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type      string          `json:"type"`
		RoomID    domain.RoomID   `json:"roomId"`
		ShapeID   domain.ShapeID  `json:"shapeId"`
		ShapeType string          `json:"shapeType"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 || p.ShapeID == "" {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	if err := ctl.Shapes.Update(ctx, c, p.RoomID, p.ShapeID, p.ShapeType, p.Data); err != nil {
		ctl.shapeError(c, err)
	}
}

func (ctl *Controller) handleShapeRemove(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type    string         `json:"type"`
		RoomID  domain.RoomID  `json:"roomId"`
		ShapeID domain.ShapeID `json:"shapeId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 || p.ShapeID == "" {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	if err := ctl.Shapes.Remove(ctx, c, p.RoomID, p.ShapeID); err != nil {
		ctl.shapeError(c, err)
	}
}

func (ctl *Controller) handleShapeClear(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	if err := ctl.Shapes.Clear(ctx, c, p.RoomID); err != nil {
		ctl.shapeError(c, err)
	}
}
