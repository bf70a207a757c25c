package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is one emoji reaction on a message. The list is append-only and
// not deduplicated: reacting twice from the same user adds two entries.
type Reaction struct {
	UserID uuid.UUID `json:"userId"`
	Emoji  string    `json:"emoji"`
}

// Attachment is a file reference attached to a message. Upload and rendering
// are handled elsewhere; the server stores the reference verbatim.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Message is a direct (one-to-one) message. IDs are ULIDs, so lexicographic
// order matches creation order and breaks creation-timestamp ties.
type Message struct {
	ID             string       `json:"id"`
	ConversationID uuid.UUID    `json:"conversationId"`
	SenderID       uuid.UUID    `json:"senderId"`
	ReceiverID     uuid.UUID    `json:"receiverId"`
	Content        string       `json:"content"`
	Read           bool         `json:"read"`
	ReadAt         *time.Time   `json:"readAt,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`

	// Display fields, populated from the store before broadcast.
	Sender   *UserRef `json:"sender,omitempty"`
	Receiver *UserRef `json:"receiver,omitempty"`
}

// GroupMessage is a message addressed to a group room. ReadBy has set
// semantics: a reader id appears at most once and the set never shrinks.
type GroupMessage struct {
	ID        string      `json:"id"`
	GroupID   uuid.UUID   `json:"groupId"`
	SenderID  uuid.UUID   `json:"senderId"`
	Content   string      `json:"content"`
	ReadBy    []uuid.UUID `json:"readBy"`
	Reactions []Reaction  `json:"reactions,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`

	Sender *UserRef `json:"sender,omitempty"`
}

// HasReader reports whether userID is already in ReadBy.
func (m *GroupMessage) HasReader(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
