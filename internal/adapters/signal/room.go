package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/app"
	"github.com/inkboard/inkboard/internal/domain"
)

func (ctl *Controller) handleJoin(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"roomId"`
		Slug   string        `json:"slug,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil || (p.RoomID == 0 && p.Slug == "") {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	// Canvas pages address rooms by slug; resolve it through the room
	// directory before the admission machine runs.
	if p.RoomID == 0 {
		room, err := ctl.Rooms.BySlug(ctx, p.Slug)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("slug", p.Slug).Msg("slug resolution failed")
			ctl.sendEvent(c, "room:join:ack", app.JoinAck{Success: false, Reason: app.ReasonJoinFailed})
			return
		}
		p.RoomID = room.ID
	}

	ack := ctl.Admission.RequestJoin(ctx, c, p.RoomID)
	ctl.sendEvent(c, "room:join:ack", ack)
}

func (ctl *Controller) handleJoinResponse(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type     string        `json:"type"`
		RoomID   domain.RoomID `json:"roomId"`
		UserID   domain.UserID `json:"userId"`
		Approved bool          `json:"approved"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 {
		log.Error().Err(err).Str("module", "signal").Msg("bad join response payload")
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	log.Info().Str("module", "signal").Int64("room", int64(p.RoomID)).Int64("user", int64(p.UserID)).Bool("approved", p.Approved).Msg("join response")
	if err := ctl.Admission.Decide(ctx, p.RoomID, p.UserID, p.Approved); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("decision failed")
	}
}

func (ctl *Controller) handleLeave(ctx context.Context, c *WsConn, data []byte) {
	var p struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 {
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(c.id)).Int64("room", int64(p.RoomID)).Msg("leave")
	if err := ctl.Group.Leave(ctx, c, p.RoomID); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("leave failed")
	}
}
