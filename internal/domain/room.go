package domain

type RoomID int64

// Room is owned and persisted by the external room directory; the
// coordinator only reads AdminID to resolve who approves joins.
type Room struct {
	ID      RoomID `json:"id"`
	Slug    string `json:"slug"`
	AdminID UserID `json:"adminId"`
}
