package domain

import "encoding/json"

type ShapeID string

// Shape is one drawn element. Shapes are addressed by their server-assigned
// ID everywhere; clients never refer to list positions.
type Shape struct {
	ID       ShapeID         `json:"id"`
	RoomID   RoomID          `json:"roomId"`
	AuthorID UserID          `json:"userId"`
	Type     string          `json:"type"` // RECT | CIRCLE | LINE | ...
	Data     json.RawMessage `json:"data"` // geometry blob, opaque to the server
}

// Chat is one chat line scoped to a room.
type Chat struct {
	RoomID   RoomID `json:"roomId"`
	AuthorID UserID `json:"userId"`
	Message  string `json:"message"`
}
