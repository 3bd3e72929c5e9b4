// Package storage holds the gorm-backed collaborators: the external room
// directory (read-only here) and the durable shape and chat stores.
package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type RoomModel struct {
	ID      int64  `gorm:"primaryKey"`
	Slug    string `gorm:"uniqueIndex;size:64"`
	AdminID int64
}

func (RoomModel) TableName() string { return "rooms" }

type ShapeModel struct {
	ID     string `gorm:"primaryKey;size:36"`
	RoomID int64  `gorm:"index"`
	UserID int64
	Type   string `gorm:"size:32"`
	Data   string `gorm:"type:jsonb"`
}

func (ShapeModel) TableName() string { return "shapes" }

type ChatModel struct {
	ID      int64 `gorm:"primaryKey;autoIncrement"`
	RoomID  int64 `gorm:"index"`
	UserID  int64
	Message string
}

func (ChatModel) TableName() string { return "chats" }

// Open connects to postgres and migrates the tables this service writes.
// The rooms table is owned by the room CRUD service; it is migrated here
// only so a standalone deployment starts clean.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.AutoMigrate(&RoomModel{}, &ShapeModel{}, &ChatModel{}); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return db, nil
}
