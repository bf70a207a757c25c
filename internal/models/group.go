package models

import (
	"time"

	"github.com/google/uuid"
)

// Group represents a named group chat with a fixed member list.
// Membership authorization for room joins is validated at the REST layer;
// the multicast fabric only tracks who is currently joined.
type Group struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	CreatedBy uuid.UUID   `json:"createdBy"`
	MemberIDs []uuid.UUID `json:"memberIds"`
	CreatedAt time.Time   `json:"createdAt"`
}
