package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

// busChannel carries every cross-instance delivery. Each instance
// subscribes once and filters locally against its own membership maps.
const busChannel = "inkboard.bus"

func membersKey(room domain.RoomID) string { return fmt.Sprintf("room:%d:members", room) }

type envelope struct {
	Kind    string          `json:"kind"` // "frame" or "admit"
	Room    domain.RoomID   `json:"room,omitempty"`
	Target  core.ConnID     `json:"target,omitempty"`
	Exclude core.ConnID     `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Group is the per-room broadcast membership. Local membership lives in a
// pair of maps (byRoom for fan-out, byConn for disconnect cleanup); the
// fleet-wide view is mirrored into a fabric set per room.
//
// Join carries no authorization of its own. It must only be called from
// an approved admission transition or the admin's auto-join.
type Group struct {
	fabric core.Fabric
	reg    *Registry

	mu     sync.RWMutex
	byRoom map[domain.RoomID]map[core.ConnID]struct{}
	byConn map[core.ConnID]map[domain.RoomID]struct{}
}

func NewGroup(fabric core.Fabric, reg *Registry) *Group {
	return &Group{
		fabric: fabric,
		reg:    reg,
		byRoom: make(map[domain.RoomID]map[core.ConnID]struct{}),
		byConn: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Run subscribes to the fleet bus and dispatches deliveries to local
// connections until ctx is canceled.
func (g *Group) Run(ctx context.Context) error {
	sub, err := g.fabric.Subscribe(ctx, busChannel)
	if err != nil {
		return fmt.Errorf("group subscribe: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			g.dispatch(ctx, msg.Payload)
		}
	}
}

func (g *Group) dispatch(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Error().Err(err).Str("module", "app.group").Msg("bad bus envelope")
		return
	}

	switch env.Kind {
	case "admit":
		conn, ok := g.reg.Get(env.Target)
		if !ok {
			return
		}
		if err := g.Join(ctx, conn, env.Room); err != nil {
			log.Error().Err(err).Str("module", "app.group").Str("conn", string(env.Target)).Msg("admit join failed")
			return
		}
		g.deliver(conn, core.Frame(env.Frame))

	case "frame":
		if env.Target != "" {
			if conn, ok := g.reg.Get(env.Target); ok {
				g.deliver(conn, core.Frame(env.Frame))
			}
			return
		}
		for _, conn := range g.localMembers(env.Room) {
			if conn.ID() == env.Exclude {
				continue
			}
			g.deliver(conn, core.Frame(env.Frame))
		}

	default:
		log.Warn().Str("module", "app.group").Str("kind", env.Kind).Msg("unknown envelope kind")
	}
}

func (g *Group) deliver(conn core.Conn, frame core.Frame) {
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.group").Str("conn", string(conn.ID())).Msg("dropped frame")
	}
}

func (g *Group) localMembers(room domain.RoomID) []core.Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]core.Conn, 0, len(g.byRoom[room]))
	for id := range g.byRoom[room] {
		if conn, ok := g.reg.Get(id); ok {
			out = append(out, conn)
		}
	}
	return out
}

func (g *Group) Join(ctx context.Context, conn core.Conn, room domain.RoomID) error {
	g.mu.Lock()
	if _, ok := g.byRoom[room]; !ok {
		g.byRoom[room] = make(map[core.ConnID]struct{})
	}
	g.byRoom[room][conn.ID()] = struct{}{}
	if _, ok := g.byConn[conn.ID()]; !ok {
		g.byConn[conn.ID()] = make(map[domain.RoomID]struct{})
	}
	g.byConn[conn.ID()][room] = struct{}{}
	g.mu.Unlock()

	if err := g.fabric.SetAdd(ctx, membersKey(room), string(conn.ID())); err != nil {
		return fmt.Errorf("group join: %w", err)
	}
	log.Info().Str("module", "app.group").Str("conn", string(conn.ID())).Int64("room", int64(room)).Msg("joined room")
	return nil
}

func (g *Group) Leave(ctx context.Context, conn core.Conn, room domain.RoomID) error {
	g.mu.Lock()
	delete(g.byRoom[room], conn.ID())
	if len(g.byRoom[room]) == 0 {
		delete(g.byRoom, room)
	}
	delete(g.byConn[conn.ID()], room)
	g.mu.Unlock()

	if err := g.fabric.SetRemove(ctx, membersKey(room), string(conn.ID())); err != nil {
		return fmt.Errorf("group leave: %w", err)
	}
	log.Info().Str("module", "app.group").Str("conn", string(conn.ID())).Int64("room", int64(room)).Msg("left room")
	return nil
}

// LeaveAll removes the connection from every room it joined. Called on
// disconnect.
func (g *Group) LeaveAll(ctx context.Context, conn core.Conn) {
	g.mu.RLock()
	rooms := make([]domain.RoomID, 0, len(g.byConn[conn.ID()]))
	for room := range g.byConn[conn.ID()] {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	for _, room := range rooms {
		if err := g.Leave(ctx, conn, room); err != nil {
			log.Error().Err(err).Str("module", "app.group").Int64("room", int64(room)).Msg("leave on disconnect")
		}
	}

	g.mu.Lock()
	delete(g.byConn, conn.ID())
	g.mu.Unlock()
}

// IsMember reports membership of a connection owned by this instance.
func (g *Group) IsMember(id core.ConnID, room domain.RoomID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byRoom[room][id]
	return ok
}

// IsMemberFleet consults the shared membership set, covering connections
// owned by any instance.
func (g *Group) IsMemberFleet(ctx context.Context, id core.ConnID, room domain.RoomID) (bool, error) {
	return g.fabric.SetContains(ctx, membersKey(room), string(id))
}

// Broadcast delivers an event to every current member of the room on
// every instance, except the excluded (originating) connection.
func (g *Group) Broadcast(ctx context.Context, room domain.RoomID, event string, payload any, exclude core.ConnID) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return g.publish(ctx, envelope{Kind: "frame", Room: room, Exclude: exclude, Frame: json.RawMessage(frame)})
}

// SendTo delivers an event to one connection, wherever it lives.
func (g *Group) SendTo(ctx context.Context, target core.ConnID, event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return g.publish(ctx, envelope{Kind: "frame", Target: target, Frame: json.RawMessage(frame)})
}

// Admit joins the target connection to the room on its owning instance
// and then delivers the event there. Used by the approve transition so a
// decision taken on one instance admits a connection held by another.
func (g *Group) Admit(ctx context.Context, target core.ConnID, room domain.RoomID, event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return g.publish(ctx, envelope{Kind: "admit", Target: target, Room: room, Frame: json.RawMessage(frame)})
}

func (g *Group) publish(ctx context.Context, env envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("group publish marshal: %w", err)
	}
	if err := g.fabric.Publish(ctx, busChannel, b); err != nil {
		return fmt.Errorf("group publish: %w", err)
	}
	return nil
}
