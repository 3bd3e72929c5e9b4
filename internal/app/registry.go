package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
)

// Registry tracks the connections owned by this process instance. The
// cross-process view lives in the Presence directory; this map is only
// for delivering frames to sockets we hold.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]core.Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]core.Conn)}
}

func (r *Registry) Bind(conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	log.Info().Str("module", "app.registry").Str("conn", string(conn.ID())).Int64("user", int64(conn.Identity().UserID)).Msg("bound connection")
}

func (r *Registry) Unbind(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}

func (r *Registry) Get(id core.ConnID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}
