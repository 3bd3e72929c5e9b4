package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

type admissionEnv struct {
	fab       core.Fabric
	inst      *instance
	presence  *Presence
	admission *Admission
}

func newAdmissionEnv(t *testing.T, ctx context.Context, admins map[domain.RoomID]domain.UserID) *admissionEnv {
	t.Helper()
	fab := newTestFabric()
	inst := newInstance(t, ctx, fab)
	presence := NewPresence(fab)
	admission := NewAdmission(fab, presence, inst.group, &fakeRooms{admins: admins}, nil)
	return &admissionEnv{fab: fab, inst: inst, presence: presence, admission: admission}
}

func (e *admissionEnv) pending(t *testing.T, room domain.RoomID) []string {
	t.Helper()
	members, err := e.fab.SetMembers(context.Background(), pendingKey(room))
	require.NoError(t, err)
	return members
}

// The full walkthrough: admin A online, users B and C request, A approves
// B and the pending set shrinks to {C}.
func TestAdmissionScenario(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	carol := newFakeConn("cC", 3, "Carol")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)
	env.inst.reg.Bind(carol)

	// Admin short-circuits into its own room.
	ack := env.admission.RequestJoin(ctx, admin, 42)
	assert.True(t, ack.Success)
	assert.False(t, ack.Pending)
	assert.Equal(t, domain.RoomID(42), ack.RoomID)
	assert.True(t, env.inst.group.IsMember(admin.ID(), 42))

	// Bob requests: pending ack, admin gets the full outstanding list.
	ack = env.admission.RequestJoin(ctx, bob, 42)
	assert.True(t, ack.Success)
	assert.True(t, ack.Pending)

	admin.waitFrames(t, 1)
	event, data := admin.frame(t, 0)
	assert.Equal(t, EventJoinRequest, event)
	assert.JSONEq(t, `{"roomId":42,"users":[{"userId":2,"name":"Bob"}]}`, string(data))

	// Carol requests: admin gets a full resync, not a delta.
	ack = env.admission.RequestJoin(ctx, carol, 42)
	assert.True(t, ack.Success)
	assert.True(t, ack.Pending)

	admin.waitFrames(t, 2)
	event, data = admin.frame(t, 1)
	assert.Equal(t, EventJoinRequest, event)
	assert.JSONEq(t, `{"roomId":42,"users":[{"userId":2,"name":"Bob"},{"userId":3,"name":"Carol"}]}`, string(data))

	// Approve Bob: he joins group 42, gets the result, pending is {C}.
	require.NoError(t, env.admission.Decide(ctx, 42, 2, true))
	bob.waitFrames(t, 1)
	event, data = bob.frame(t, 0)
	assert.Equal(t, EventJoinResult, event)

	var result JoinAck
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, domain.RoomID(42), result.RoomID)
	assert.True(t, env.inst.group.IsMember(bob.ID(), 42))

	assert.Equal(t, []string{"3"}, env.pending(t, 42))
}

func TestAdmissionAdminOffline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(bob)

	ack := env.admission.RequestJoin(ctx, bob, 42)
	assert.False(t, ack.Success)
	assert.Equal(t, ReasonAdminOffline, ack.Reason)
	assert.Empty(t, env.pending(t, 42), "nothing is queued while nobody can decide")
}

func TestAdmissionUnknownRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{})

	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(bob)

	ack := env.admission.RequestJoin(ctx, bob, 42)
	assert.False(t, ack.Success)
	assert.Equal(t, ReasonJoinFailed, ack.Reason)
}

// Repeated identical requests keep set semantics: one pending entry, one
// resync per request.
func TestAdmissionRepeatedRequestIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)

	env.admission.RequestJoin(ctx, admin, 42)
	env.admission.RequestJoin(ctx, bob, 42)
	env.admission.RequestJoin(ctx, bob, 42)

	assert.Equal(t, []string{"2"}, env.pending(t, 42))

	admin.waitFrames(t, 2)
	_, data := admin.frame(t, 1)
	assert.JSONEq(t, `{"roomId":42,"users":[{"userId":2,"name":"Bob"}]}`, string(data))
}

func TestAdmissionReject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)

	env.admission.RequestJoin(ctx, admin, 42)
	env.admission.RequestJoin(ctx, bob, 42)

	require.NoError(t, env.admission.Decide(ctx, 42, 2, false))

	bob.waitFrames(t, 1)
	event, data := bob.frame(t, 0)
	assert.Equal(t, EventJoinResult, event)

	var result JoinAck
	require.NoError(t, json.Unmarshal(data, &result))
	assert.False(t, result.Success)
	assert.Equal(t, ReasonRejectedByAdmin, result.Reason)

	assert.False(t, env.inst.group.IsMember(bob.ID(), 42), "rejected connection is never admitted")
	assert.Empty(t, env.pending(t, 42))
}

// A decision for a requester that disconnected is dropped without error;
// the admin gets no feedback.
func TestAdmissionDecisionForAbsentRequester(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)

	env.admission.RequestJoin(ctx, admin, 42)
	env.admission.RequestJoin(ctx, bob, 42)

	// Bob disconnects while pending.
	require.NoError(t, env.presence.Unregister(ctx, bob.ID()))
	env.inst.reg.Unbind(bob.ID())

	require.NoError(t, env.admission.Decide(ctx, 42, 2, true))
	assert.Empty(t, env.pending(t, 42), "pending entry is cleared regardless")

	settle()
	assert.Zero(t, bob.frameCount())
}

// Re-sending a decision after the requester was admitted must not
// re-deliver the result.
func TestAdmissionDuplicateDecisionDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)

	env.admission.RequestJoin(ctx, admin, 42)
	env.admission.RequestJoin(ctx, bob, 42)

	require.NoError(t, env.admission.Decide(ctx, 42, 2, true))
	bob.waitFrames(t, 1)

	require.NoError(t, env.admission.Decide(ctx, 42, 2, true))
	settle()
	assert.Equal(t, 1, bob.frameCount())
}

// A reconnecting admin recovers the outstanding request list.
func TestAdmissionAdminReconnectReplaysPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newAdmissionEnv(t, ctx, map[domain.RoomID]domain.UserID{42: 1})

	admin := newFakeConn("cA", 1, "Alice")
	bob := newFakeConn("cB", 2, "Bob")
	env.inst.reg.Bind(admin)
	env.inst.reg.Bind(bob)

	env.admission.RequestJoin(ctx, admin, 42)
	env.admission.RequestJoin(ctx, bob, 42)

	// Admin drops and comes back on a new connection.
	require.NoError(t, env.presence.Unregister(ctx, admin.ID()))
	env.inst.reg.Unbind(admin.ID())

	admin2 := newFakeConn("cA2", 1, "Alice")
	env.inst.reg.Bind(admin2)

	ack := env.admission.RequestJoin(ctx, admin2, 42)
	assert.True(t, ack.Success)

	admin2.waitFrames(t, 1)
	event, data := admin2.frame(t, 0)
	assert.Equal(t, EventJoinRequest, event)
	assert.JSONEq(t, `{"roomId":42,"users":[{"userId":2,"name":"Bob"}]}`, string(data))
}

func TestAdmissionRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fab := newTestFabric()
	inst := newInstance(t, ctx, fab)
	presence := NewPresence(fab)
	limiter := NewJoinRateLimiter(1, time.Minute)
	admission := NewAdmission(fab, presence, inst.group, &fakeRooms{admins: map[domain.RoomID]domain.UserID{42: 1}}, limiter)

	bob := newFakeConn("cB", 2, "Bob")
	inst.reg.Bind(bob)

	_ = admission.RequestJoin(ctx, bob, 42)
	ack := admission.RequestJoin(ctx, bob, 42)
	assert.False(t, ack.Success)
	assert.Equal(t, ReasonJoinFailed, ack.Reason)
}
