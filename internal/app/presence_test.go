package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkboard/inkboard/internal/adapters/fabric"
	"github.com/inkboard/inkboard/internal/domain"
)

func TestPresenceRegisterResolveUnregister(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(fabric.NewMemory())

	eve := domain.Identity{UserID: 5, DisplayName: "Eve"}
	require.NoError(t, p.Register(ctx, eve, "c1"))

	conn, ok, err := p.Resolve(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", string(conn))

	name, err := p.DisplayName(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Eve", name)

	require.NoError(t, p.Unregister(ctx, "c1"))
	_, ok, err = p.Resolve(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenceUnknownUserAbsent(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(fabric.NewMemory())

	_, ok, err := p.Resolve(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	name, err := p.DisplayName(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, name)

	// Unregistering a connection that never registered is a no-op.
	require.NoError(t, p.Unregister(ctx, "ghost"))
}

// A reconnect that lands before the old socket's cleanup must keep its
// mapping: newest registration always wins.
func TestPresenceNewestRegistrationWins(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(fabric.NewMemory())

	eve := domain.Identity{UserID: 5, DisplayName: "Eve"}
	require.NoError(t, p.Register(ctx, eve, "old"))
	require.NoError(t, p.Register(ctx, eve, "new"))

	// The stale connection disconnects after the reconnect registered.
	require.NoError(t, p.Unregister(ctx, "old"))

	conn, ok, err := p.Resolve(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(conn))

	require.NoError(t, p.Unregister(ctx, "new"))
	_, ok, _ = p.Resolve(ctx, 5)
	assert.False(t, ok)
}
