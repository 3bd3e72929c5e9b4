// Package signal is the websocket adapter: it upgrades gated requests,
// owns the per-connection pumps and translates wire events into calls on
// the admission and shape services.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/app"
	"github.com/inkboard/inkboard/internal/auth"
	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Admission *app.Admission
	Shapes    *app.Shapes
	Group     *app.Group
	Presence  *app.Presence
	Registry  *app.Registry
	Rooms     core.RoomDirectory

	ReadLimit  int64
	PingPeriod time.Duration
}

type WsConn struct {
	id       core.ConnID
	identity domain.Identity
	conn     *websocket.Conn
	send     chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) ID() core.ConnID           { return c.id }
func (c *WsConn) Identity() domain.Identity { return c.identity }

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		// The gate runs before this handler; a missing identity means
		// a wiring mistake, not a client error.
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		id:       core.ConnID(uuid.NewString()),
		identity: identity,
		conn:     ws,
		send:     make(chan core.Frame, 32),
	}
	ctl.Registry.Bind(conn)
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Int64("user", int64(identity.UserID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
		ctl.teardown(conn)
	}()
}

// teardown runs once the read pump exits: membership, presence and the
// local binding all go away with the socket.
func (ctl *Controller) teardown(conn *WsConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctl.Group.LeaveAll(ctx, conn)
	if err := ctl.Presence.Unregister(ctx, conn.ID()); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("presence unregister on disconnect")
	}
	ctl.Registry.Unbind(conn.ID())
	conn.Close()
}
