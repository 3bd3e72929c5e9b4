package core

import (
	"context"

	"github.com/inkboard/inkboard/internal/domain"
)

// Frame is a marshaled wire message ready for a websocket write.
type Frame []byte

// ConnID names one live connection, unique across the fleet.
type ConnID string

// Conn abstracts one bidirectional client channel.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() ConnID
	Identity() domain.Identity
	TrySend(Frame) error
	Close()
}

// RoomDirectory is the external room CRUD service, read-only here.
type RoomDirectory interface {
	AdminOf(ctx context.Context, roomID domain.RoomID) (domain.UserID, error)
	BySlug(ctx context.Context, slug string) (*domain.Room, error)
}

// ShapeStore is the durable shape collaborator. All calls are made from
// the persistence worker, never from the broadcast path.
type ShapeStore interface {
	Create(ctx context.Context, s domain.Shape) error
	Upsert(ctx context.Context, s domain.Shape) error
	Remove(ctx context.Context, roomID domain.RoomID, id domain.ShapeID) error
	ClearRoom(ctx context.Context, roomID domain.RoomID) error
}

// ChatStore persists room chat lines. History reads are served by the
// separate backfill HTTP service, not here.
type ChatStore interface {
	Append(ctx context.Context, c domain.Chat) error
}
