package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Fabric.Get for absent keys.
var ErrNotFound = errors.New("fabric: key not found")

// Message is one delivery from a fabric subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live pub/sub feed. Owned by the caller; the caller
// must Close() it.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Fabric is the shared cross-process coordination store: plain keys, sets
// and a pub/sub bus. Operations are independent single-key writes, never
// multi-key transactions; callers must not assume compound sequences are
// atomic. Errors are returned outright, no retry.
type Fabric interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetContains(ctx context.Context, key, member string) (bool, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
