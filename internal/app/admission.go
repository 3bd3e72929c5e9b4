package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

// Admission failure reasons surfaced in acks and results. Never errors:
// the operation succeeded, the admission didn't.
const (
	ReasonAdminOffline    = "ADMIN_OFFLINE"
	ReasonRejectedByAdmin = "REJECTED_BY_ADMIN"
	ReasonJoinFailed      = "JOIN_FAILED"
)

const (
	EventJoinRequest = "room:join:request"
	EventJoinResult  = "room:join:result"
)

func pendingKey(room domain.RoomID) string { return fmt.Sprintf("room:%d:pending", room) }

// JoinAck is the one-shot reply to a room:join attempt.
type JoinAck struct {
	Success bool          `json:"success"`
	Pending bool          `json:"pending,omitempty"`
	RoomID  domain.RoomID `json:"roomId,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

type joinRequestPayload struct {
	RoomID domain.RoomID        `json:"roomId"`
	Users  []domain.PendingUser `json:"users"`
}

// Admission runs the join state machine per (room, user):
// NONE → PENDING → APPROVED | REJECTED. A fresh attempt after a terminal
// state starts a new PENDING cycle. All admission work for one room is
// serialized behind a per-room mutex so interleaved attempts and
// decisions cannot observe each other's partial writes.
type Admission struct {
	fabric   core.Fabric
	presence *Presence
	group    *Group
	rooms    core.RoomDirectory
	limiter  *JoinRateLimiter

	mu    sync.Mutex
	locks map[domain.RoomID]*sync.Mutex
}

func NewAdmission(fabric core.Fabric, presence *Presence, group *Group, rooms core.RoomDirectory, limiter *JoinRateLimiter) *Admission {
	return &Admission{
		fabric:   fabric,
		presence: presence,
		group:    group,
		rooms:    rooms,
		limiter:  limiter,
		locks:    make(map[domain.RoomID]*sync.Mutex),
	}
}

func (a *Admission) roomLock(room domain.RoomID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[room]
	if !ok {
		l = &sync.Mutex{}
		a.locks[room] = l
	}
	return l
}

// RequestJoin handles a room:join attempt from conn. The returned ack is
// delivered exactly once, whether resolution was immediate or will
// arrive later through a room:join:result.
func (a *Admission) RequestJoin(ctx context.Context, conn core.Conn, room domain.RoomID) JoinAck {
	identity := conn.Identity()

	if a.limiter != nil && !a.limiter.Allow(identity.UserID) {
		log.Warn().Str("module", "app.admission").Int64("user", int64(identity.UserID)).Msg("join rate limited")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}

	l := a.roomLock(room)
	l.Lock()
	defer l.Unlock()

	adminID, err := a.rooms.AdminOf(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "app.admission").Int64("room", int64(room)).Msg("admin lookup failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}

	if identity.UserID == adminID {
		return a.admitAdmin(ctx, conn, room)
	}

	adminConn, ok, err := a.presence.Resolve(ctx, adminID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.admission").Int64("room", int64(room)).Msg("admin presence lookup failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}
	if !ok {
		// Fail fast: nothing is queued while nobody can decide.
		return JoinAck{Success: false, Reason: ReasonAdminOffline}
	}

	if err := a.presence.Register(ctx, identity, conn.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("requester presence registration failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}
	if err := a.fabric.SetAdd(ctx, pendingKey(room), strconv.FormatInt(int64(identity.UserID), 10)); err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("pending set add failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}

	// Full resync of the outstanding list, not a delta: the admin UI
	// has no durable state across admin reconnects.
	users, err := a.pendingUsers(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("pending set rebuild failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}
	if err := a.group.SendTo(ctx, adminConn, EventJoinRequest, joinRequestPayload{RoomID: room, Users: users}); err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("join request notify failed")
	}

	log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(identity.UserID)).Msg("join pending")
	return JoinAck{Success: true, Pending: true}
}

// admitAdmin short-circuits the state machine: the admin joins its own
// room immediately and recovers the outstanding request list.
func (a *Admission) admitAdmin(ctx context.Context, conn core.Conn, room domain.RoomID) JoinAck {
	if err := a.presence.Register(ctx, conn.Identity(), conn.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("admin presence registration failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}
	if err := a.group.Join(ctx, conn, room); err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("admin group join failed")
		return JoinAck{Success: false, Reason: ReasonJoinFailed}
	}

	users, err := a.pendingUsers(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("pending set rebuild failed")
	} else if len(users) > 0 {
		if err := a.group.SendTo(ctx, conn.ID(), EventJoinRequest, joinRequestPayload{RoomID: room, Users: users}); err != nil {
			log.Error().Err(err).Str("module", "app.admission").Msg("pending replay failed")
		}
	}

	log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(conn.Identity().UserID)).Msg("admin admitted")
	return JoinAck{Success: true, RoomID: room}
}

// Decide applies an admin's verdict for one pending user. The pending
// entry is cleared unconditionally; everything after that is best effort
// toward a requester who may be gone.
func (a *Admission) Decide(ctx context.Context, room domain.RoomID, uid domain.UserID, approved bool) error {
	l := a.roomLock(room)
	l.Lock()
	defer l.Unlock()

	if err := a.fabric.SetRemove(ctx, pendingKey(room), strconv.FormatInt(int64(uid), 10)); err != nil {
		return fmt.Errorf("pending set remove: %w", err)
	}

	connID, ok, err := a.presence.Resolve(ctx, uid)
	if err != nil {
		return fmt.Errorf("requester presence lookup: %w", err)
	}
	if !ok {
		// Requester disconnected while pending. Nothing to deliver.
		log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(uid)).Msg("decision for absent requester dropped")
		return nil
	}

	member, err := a.group.IsMemberFleet(ctx, connID, room)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if member {
		// Duplicate decision after an earlier approve. Re-admitting
		// would re-deliver the result.
		log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(uid)).Msg("duplicate decision dropped")
		return nil
	}

	if !approved {
		log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(uid)).Msg("join rejected")
		return a.group.SendTo(ctx, connID, EventJoinResult, JoinAck{Success: false, Reason: ReasonRejectedByAdmin})
	}

	log.Info().Str("module", "app.admission").Int64("room", int64(room)).Int64("user", int64(uid)).Msg("join approved")
	return a.group.Admit(ctx, connID, room, EventJoinResult, JoinAck{Success: true, RoomID: room})
}

func (a *Admission) pendingUsers(ctx context.Context, room domain.RoomID) ([]domain.PendingUser, error) {
	members, err := a.fabric.SetMembers(ctx, pendingKey(room))
	if err != nil {
		return nil, fmt.Errorf("pending set members: %w", err)
	}

	users := make([]domain.PendingUser, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			log.Warn().Str("module", "app.admission").Str("member", m).Msg("corrupt pending entry skipped")
			continue
		}
		name, err := a.presence.DisplayName(ctx, domain.UserID(id))
		if err != nil {
			return nil, err
		}
		users = append(users, domain.PendingUser{UserID: domain.UserID(id), Name: name})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}
