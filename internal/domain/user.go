// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 64

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type UserID int64

// Identity is what the connection gate decodes from a verified
// credential. Immutable for the lifetime of the connection.
type Identity struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"name"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, name string) (Identity, error) {
	if name == "" {
		return Identity{}, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return Identity{}, ErrNameTooLong
	}
	return Identity{UserID: id, DisplayName: name}, nil
}

// PendingUser is one outstanding join request as shown to a room admin.
type PendingUser struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
}
