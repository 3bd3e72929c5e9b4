package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkboard/inkboard/internal/adapters/fabric"
	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

type fakeConn struct {
	id       core.ConnID
	identity domain.Identity

	mu     sync.Mutex
	frames []core.Frame
}

func newFakeConn(id string, uid domain.UserID, name string) *fakeConn {
	return &fakeConn{id: core.ConnID(id), identity: domain.Identity{UserID: uid, DisplayName: name}}
}

func (c *fakeConn) ID() core.ConnID           { return c.id }
func (c *fakeConn) Identity() domain.Identity { return c.identity }
func (c *fakeConn) Close()                    {}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// frame returns the i-th received frame, decoded into event and data.
func (c *fakeConn) frame(t *testing.T, i int) (string, json.RawMessage) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Less(t, i, len(c.frames), "frame %d not received", i)

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(c.frames[i], &env))
	return env.Type, env.Data
}

// waitFrames blocks until the connection has received at least n frames.
func (c *fakeConn) waitFrames(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.frameCount() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, c.frameCount())
}

// settle gives in-flight bus deliveries time to land, for negative checks.
func settle() { time.Sleep(30 * time.Millisecond) }

type fakeRooms struct {
	admins map[domain.RoomID]domain.UserID
	rooms  map[string]*domain.Room
}

func (f *fakeRooms) AdminOf(_ context.Context, roomID domain.RoomID) (domain.UserID, error) {
	admin, ok := f.admins[roomID]
	if !ok {
		return 0, core.ErrNotFound
	}
	return admin, nil
}

func (f *fakeRooms) BySlug(_ context.Context, slug string) (*domain.Room, error) {
	room, ok := f.rooms[slug]
	if !ok {
		return nil, core.ErrNotFound
	}
	return room, nil
}

// instance is one simulated server process: its own registry and group
// sharing the fabric with every other instance.
type instance struct {
	reg   *Registry
	group *Group
}

func newInstance(t *testing.T, ctx context.Context, fab core.Fabric) *instance {
	t.Helper()
	reg := NewRegistry()
	group := NewGroup(fab, reg)
	go func() { _ = group.Run(ctx) }()
	// Give the bus subscription a moment to attach.
	time.Sleep(5 * time.Millisecond)
	return &instance{reg: reg, group: group}
}

func newTestFabric() core.Fabric { return fabric.NewMemory() }
