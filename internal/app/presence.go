package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

func userKey(id domain.UserID) string  { return fmt.Sprintf("presence:user:%d", id) }
func connKey(id core.ConnID) string    { return "presence:conn:" + string(id) }
func epochKey(id domain.UserID) string { return fmt.Sprintf("presence:epoch:%d", id) }
func nameKey(id domain.UserID) string  { return fmt.Sprintf("presence:name:%d", id) }

// Presence is the cross-process user ↔ connection directory. Forward and
// reverse keys are written independently; there is no transaction around
// the pair. Newest registration always wins: Unregister only clears the
// forward key while it still names the disconnecting connection, so a
// reconnect that races the old socket's cleanup keeps its mapping.
type Presence struct {
	fabric core.Fabric
}

func NewPresence(fabric core.Fabric) *Presence {
	return &Presence{fabric: fabric}
}

func (p *Presence) Register(ctx context.Context, identity domain.Identity, conn core.ConnID) error {
	uid := identity.UserID
	if err := p.fabric.Set(ctx, userKey(uid), string(conn)); err != nil {
		return fmt.Errorf("presence register forward: %w", err)
	}
	if err := p.fabric.Set(ctx, connKey(conn), strconv.FormatInt(int64(uid), 10)); err != nil {
		return fmt.Errorf("presence register reverse: %w", err)
	}
	if err := p.fabric.Set(ctx, nameKey(uid), identity.DisplayName); err != nil {
		return fmt.Errorf("presence register name: %w", err)
	}
	epoch, err := p.fabric.Incr(ctx, epochKey(uid))
	if err != nil {
		return fmt.Errorf("presence register epoch: %w", err)
	}
	log.Info().Str("module", "app.presence").Int64("user", int64(uid)).Str("conn", string(conn)).Int64("epoch", epoch).Msg("registered")
	return nil
}

func (p *Presence) Resolve(ctx context.Context, uid domain.UserID) (core.ConnID, bool, error) {
	v, err := p.fabric.Get(ctx, userKey(uid))
	if errors.Is(err, core.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence resolve: %w", err)
	}
	return core.ConnID(v), true, nil
}

// DisplayName returns the last name registered for the user, or "" when
// the user has never registered.
func (p *Presence) DisplayName(ctx context.Context, uid domain.UserID) (string, error) {
	v, err := p.fabric.Get(ctx, nameKey(uid))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("presence name: %w", err)
	}
	return v, nil
}

func (p *Presence) Unregister(ctx context.Context, conn core.ConnID) error {
	v, err := p.fabric.Get(ctx, connKey(conn))
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence unregister lookup: %w", err)
	}
	uid, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("presence unregister: corrupt reverse key %q: %w", v, err)
	}

	if err := p.fabric.Delete(ctx, connKey(conn)); err != nil {
		return fmt.Errorf("presence unregister reverse: %w", err)
	}

	// Drop the forward key only while it still points at this
	// connection; a newer registration keeps its mapping.
	current, err := p.fabric.Get(ctx, userKey(domain.UserID(uid)))
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence unregister forward read: %w", err)
	}
	if current == string(conn) {
		if err := p.fabric.Delete(ctx, userKey(domain.UserID(uid))); err != nil {
			return fmt.Errorf("presence unregister forward: %w", err)
		}
	}
	log.Info().Str("module", "app.presence").Int64("user", uid).Str("conn", string(conn)).Msg("unregistered")
	return nil
}
