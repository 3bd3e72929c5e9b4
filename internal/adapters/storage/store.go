package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkboard/inkboard/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomDirectory reads room metadata owned by the external CRUD service.
type RoomDirectory struct {
	db *gorm.DB
}

func NewRoomDirectory(db *gorm.DB) *RoomDirectory {
	return &RoomDirectory{db: db}
}

func (d *RoomDirectory) AdminOf(ctx context.Context, roomID domain.RoomID) (domain.UserID, error) {
	var m RoomModel
	err := d.db.WithContext(ctx).First(&m, int64(roomID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrRoomNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("room lookup: %w", err)
	}
	return domain.UserID(m.AdminID), nil
}

func (d *RoomDirectory) BySlug(ctx context.Context, slug string) (*domain.Room, error) {
	var m RoomModel
	err := d.db.WithContext(ctx).Where("slug = ?", slug).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room lookup: %w", err)
	}
	return &domain.Room{ID: domain.RoomID(m.ID), Slug: m.Slug, AdminID: domain.UserID(m.AdminID)}, nil
}

// ShapeStore persists drawing mutations. Only the persistence worker
// calls it.
type ShapeStore struct {
	db *gorm.DB
}

func NewShapeStore(db *gorm.DB) *ShapeStore {
	return &ShapeStore{db: db}
}

func shapeModel(s domain.Shape) ShapeModel {
	return ShapeModel{
		ID:     string(s.ID),
		RoomID: int64(s.RoomID),
		UserID: int64(s.AuthorID),
		Type:   s.Type,
		Data:   string(s.Data),
	}
}

func (s *ShapeStore) Create(ctx context.Context, shape domain.Shape) error {
	m := shapeModel(shape)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("shape create: %w", err)
	}
	return nil
}

func (s *ShapeStore) Upsert(ctx context.Context, shape domain.Shape) error {
	m := shapeModel(shape)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "data"}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("shape upsert: %w", err)
	}
	return nil
}

func (s *ShapeStore) Remove(ctx context.Context, roomID domain.RoomID, id domain.ShapeID) error {
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND id = ?", int64(roomID), string(id)).
		Delete(&ShapeModel{}).Error
	if err != nil {
		return fmt.Errorf("shape remove: %w", err)
	}
	return nil
}

func (s *ShapeStore) ClearRoom(ctx context.Context, roomID domain.RoomID) error {
	err := s.db.WithContext(ctx).
		Where("room_id = ?", int64(roomID)).
		Delete(&ShapeModel{}).Error
	if err != nil {
		return fmt.Errorf("shape clear: %w", err)
	}
	return nil
}

// ChatStore persists room chat history.
type ChatStore struct {
	db *gorm.DB
}

func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Append(ctx context.Context, c domain.Chat) error {
	m := ChatModel{RoomID: int64(c.RoomID), UserID: int64(c.AuthorID), Message: c.Message}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("chat append: %w", err)
	}
	return nil
}

