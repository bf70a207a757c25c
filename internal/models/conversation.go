package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation types.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation represents a direct or group chat. A direct conversation is
// uniquely keyed by the unordered pair of its two participants; the store
// enforces this with a unique index on (least(a,b), greatest(a,b)).
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"` // "direct" or "group"
	Participants []UserRef `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}
