package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
	"github.com/inkboard/inkboard/internal/domain"
)

// ErrNotMember rejects shape and chat events from connections that were
// never admitted to the room.
var ErrNotMember = errors.New("not a member of the room")

const (
	EventShapeCreated = "shape:created"
	EventShapeUpdate  = "shape:update"
	EventShapeRemove  = "shape:remove"
	EventShapeClear   = "shape:clear"
	EventChatMessage  = "chat:message"
)

type shapeRef struct {
	RoomID  domain.RoomID  `json:"roomId"`
	ShapeID domain.ShapeID `json:"shapeId"`
}

type roomRef struct {
	RoomID domain.RoomID `json:"roomId"`
}

// Shapes replicates drawing mutations to a room's broadcast group and
// hands durable writes to the persister. Broadcast always comes first
// and never waits on, or rolls back for, storage.
type Shapes struct {
	group   *Group
	store   core.ShapeStore
	chats   core.ChatStore
	persist *Persister
}

func NewShapes(group *Group, store core.ShapeStore, chats core.ChatStore, persist *Persister) *Shapes {
	return &Shapes{group: group, store: store, chats: chats, persist: persist}
}

func (s *Shapes) requireMember(author core.Conn, room domain.RoomID) error {
	if !s.group.IsMember(author.ID(), room) {
		return ErrNotMember
	}
	return nil
}

// Create assigns the shape its identity, replicates it to the room and
// queues the insert. The created shape is returned so the author's
// client can reconcile its optimistic copy with the assigned ID.
func (s *Shapes) Create(ctx context.Context, author core.Conn, room domain.RoomID, shapeType string, data json.RawMessage) (domain.Shape, error) {
	if err := s.requireMember(author, room); err != nil {
		return domain.Shape{}, err
	}

	shape := domain.Shape{
		ID:       domain.ShapeID(uuid.NewString()),
		RoomID:   room,
		AuthorID: author.Identity().UserID,
		Type:     shapeType,
		Data:     data,
	}

	if err := s.group.Broadcast(ctx, room, EventShapeCreated, shape, author.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.shapes").Int64("room", int64(room)).Msg("create broadcast failed")
	}
	s.persist.Enqueue(fmt.Sprintf("shape create %s", shape.ID), func(ctx context.Context) error {
		return s.store.Create(ctx, shape)
	})
	return shape, nil
}

func (s *Shapes) Update(ctx context.Context, author core.Conn, room domain.RoomID, id domain.ShapeID, shapeType string, data json.RawMessage) error {
	if err := s.requireMember(author, room); err != nil {
		return err
	}

	shape := domain.Shape{
		ID:       id,
		RoomID:   room,
		AuthorID: author.Identity().UserID,
		Type:     shapeType,
		Data:     data,
	}

	if err := s.group.Broadcast(ctx, room, EventShapeUpdate, shape, author.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.shapes").Int64("room", int64(room)).Msg("update broadcast failed")
	}
	s.persist.Enqueue(fmt.Sprintf("shape update %s", id), func(ctx context.Context) error {
		return s.store.Upsert(ctx, shape)
	})
	return nil
}

func (s *Shapes) Remove(ctx context.Context, author core.Conn, room domain.RoomID, id domain.ShapeID) error {
	if err := s.requireMember(author, room); err != nil {
		return err
	}

	if err := s.group.Broadcast(ctx, room, EventShapeRemove, shapeRef{RoomID: room, ShapeID: id}, author.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.shapes").Int64("room", int64(room)).Msg("remove broadcast failed")
	}
	s.persist.Enqueue(fmt.Sprintf("shape remove %s", id), func(ctx context.Context) error {
		return s.store.Remove(ctx, room, id)
	})
	return nil
}

// Clear wipes the whole room. Any current member may clear; membership
// is the only gate.
func (s *Shapes) Clear(ctx context.Context, author core.Conn, room domain.RoomID) error {
	if err := s.requireMember(author, room); err != nil {
		return err
	}

	if err := s.group.Broadcast(ctx, room, EventShapeClear, roomRef{RoomID: room}, author.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.shapes").Int64("room", int64(room)).Msg("clear broadcast failed")
	}
	s.persist.Enqueue(fmt.Sprintf("shape clear room %d", room), func(ctx context.Context) error {
		return s.store.ClearRoom(ctx, room)
	})
	return nil
}

func (s *Shapes) Chat(ctx context.Context, author core.Conn, room domain.RoomID, message string) error {
	if err := s.requireMember(author, room); err != nil {
		return err
	}

	chat := domain.Chat{RoomID: room, AuthorID: author.Identity().UserID, Message: message}
	if err := s.group.Broadcast(ctx, room, EventChatMessage, chat, author.ID()); err != nil {
		log.Error().Err(err).Str("module", "app.shapes").Int64("room", int64(room)).Msg("chat broadcast failed")
	}
	s.persist.Enqueue(fmt.Sprintf("chat append room %d", room), func(ctx context.Context) error {
		return s.chats.Append(ctx, chat)
	})
	return nil
}
