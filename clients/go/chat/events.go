package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the wire envelope shared with the server.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   int64           `json:"ack,omitempty"`
}

// AckPayload is the server's reply to an acked event.
type AckPayload struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Reaction mirrors the server's reaction shape.
type Reaction struct {
	UserID uuid.UUID `json:"userId"`
	Emoji  string    `json:"emoji"`
}

// Message is a direct or group message as rendered by the client. Group
// messages carry GroupID and ReadBy; direct messages carry ReceiverID,
// Read, and ReadAt.
type Message struct {
	ID         string      `json:"id"`
	SenderID   uuid.UUID   `json:"senderId"`
	ReceiverID uuid.UUID   `json:"receiverId"`
	GroupID    uuid.UUID   `json:"groupId"`
	Content    string      `json:"content"`
	Read       bool        `json:"read"`
	ReadAt     *time.Time  `json:"readAt,omitempty"`
	ReadBy     []uuid.UUID `json:"readBy,omitempty"`
	Reactions  []Reaction  `json:"reactions,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`

	Sender   *User `json:"sender,omitempty"`
	Receiver *User `json:"receiver,omitempty"`

	// Pending marks a locally echoed message not yet confirmed by the
	// server.
	Pending bool `json:"-"`
}

// wireMessage tolerates the field aliases older server builds and bridges
// used for the same concepts.
type wireMessage struct {
	Message

	// sender aliases
	From   uuid.UUID `json:"from"`
	UserID uuid.UUID `json:"userId"`

	// receiver aliases
	To uuid.UUID `json:"to"`

	// room aliases
	ChatID uuid.UUID `json:"chatId"`
	Room   uuid.UUID `json:"room"`
}

func (w *wireMessage) normalized() Message {
	m := w.Message
	if m.SenderID == uuid.Nil {
		if w.From != uuid.Nil {
			m.SenderID = w.From
		} else if w.UserID != uuid.Nil {
			m.SenderID = w.UserID
		}
	}
	if m.ReceiverID == uuid.Nil && w.To != uuid.Nil {
		m.ReceiverID = w.To
	}
	if m.SenderID == uuid.Nil && m.Sender != nil {
		m.SenderID = m.Sender.ID
	}
	if m.ReceiverID == uuid.Nil && m.Receiver != nil {
		m.ReceiverID = m.Receiver.ID
	}
	if m.GroupID == uuid.Nil {
		if w.ChatID != uuid.Nil {
			m.GroupID = w.ChatID
		} else if w.Room != uuid.Nil {
			m.GroupID = w.Room
		}
	}
	return m
}

// typingEvent tolerates the typing payload aliases.
type typingEvent struct {
	UserID   uuid.UUID `json:"userId"`
	From     uuid.UUID `json:"from"`
	Username string    `json:"username"`
	GroupID  uuid.UUID `json:"groupId"`

	// room aliases
	ChatID uuid.UUID `json:"chatId"`
	Room   uuid.UUID `json:"room"`
}

func (t *typingEvent) user() uuid.UUID {
	if t.UserID != uuid.Nil {
		return t.UserID
	}
	return t.From
}

// room resolves which conversation the typing happens in. A direct typing
// payload carries no room; the caller falls back to the typist's chat.
func (t *typingEvent) room() uuid.UUID {
	switch {
	case t.GroupID != uuid.Nil:
		return t.GroupID
	case t.ChatID != uuid.Nil:
		return t.ChatID
	default:
		return t.Room
	}
}

// presenceEvent is the user:presence payload.
type presenceEvent struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	LastSeen string    `json:"lastSeen,omitempty"`
}
