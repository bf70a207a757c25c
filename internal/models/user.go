package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered chat user. Accounts are created by the
// external account system; only the presence fields are mutated here.
type User struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"` // nil while online
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// UserRef is the trimmed-down user projection embedded in messages and
// conversations (display fields only).
type UserRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	IsOnline bool      `json:"isOnline,omitempty"`
}

// Ref returns the display projection of a user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, Email: u.Email, IsOnline: u.IsOnline}
}
