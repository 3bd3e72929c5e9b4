package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/app"
	"github.com/inkboard/inkboard/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *WsConn) {
	defer log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleEvent(ctx, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(ctx context.Context, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "BAD_PAYLOAD")
		return
	}

	switch env.Type {
	case "room:join":
		ctl.handleJoin(ctx, c, data)
	case "room:join:response":
		ctl.handleJoinResponse(ctx, c, data)
	case "room:leave":
		ctl.handleLeave(ctx, c, data)
	case "shape:create":
		ctl.handleShapeCreate(ctx, c, data)
	case "shape:update":
		ctl.handleShapeUpdate(ctx, c, data)
	case "shape:remove":
		ctl.handleShapeRemove(ctx, c, data)
	case "shape:clear":
		ctl.handleShapeClear(ctx, c, data)
	case "chat:send":
		ctl.handleChat(ctx, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
		ctl.sendError(c, "UNKNOWN_EVENT")
	}
}

func (ctl *Controller) sendEvent(c *WsConn, event string, payload any) {
	frame, err := app.EncodeFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("encode frame")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("event", event).Msg("send dropped")
	}
}

func (ctl *Controller) sendError(c *WsConn, code string) {
	ctl.sendEvent(c, "error", map[string]string{"error": code})
}

var _ core.Conn = (*WsConn)(nil)
