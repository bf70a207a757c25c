package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Canonical event names. Clients may also use the legacy aliases handled by
// normalizeEvent; the server always emits the canonical names.
const (
	EventMessageSend     = "message:send"
	EventMessageReceive  = "message:receive"
	EventMessageSent     = "message:sent"
	EventMessageRead     = "message:read"
	EventMessageReaction = "message:reaction"

	EventTyping     = "typing"
	EventStopTyping = "stop_typing"

	EventGroupJoin            = "group:join"
	EventGroupMessageSend     = "group:message:send"
	EventGroupMessageReceive  = "group:message:receive"
	EventGroupMessageRead     = "group:message:read"
	EventGroupMessageReaction = "group:message:reaction"

	EventUserPresence = "user:presence"
)

// Event is the wire envelope for every websocket frame in both directions.
// Ack, when non-zero, asks the server to reply with an AckPayload under the
// same ack number.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   int64           `json:"ack,omitempty"`
}

// AckPayload is the reply to an event that carried an ack number.
type AckPayload struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// SendMessagePayload carries a direct message from the client.
type SendMessagePayload struct {
	ReceiverID  uuid.UUID    `json:"receiverId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Legacy clients address the peer with "to".
	To uuid.UUID `json:"to,omitempty"`
}

// Attachment mirrors models.Attachment for the wire.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// ReadPayload marks a direct message read.
type ReadPayload struct {
	MessageID string `json:"messageId"`
}

// ReactionPayload adds a reaction to a direct message.
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// TypingPayload relays a typing indicator. For direct chats To is the peer;
// for group chats GroupID is set instead.
type TypingPayload struct {
	To      uuid.UUID `json:"to,omitempty"`
	GroupID uuid.UUID `json:"groupId,omitempty"`

	// Populated by the server before relaying.
	UserID   uuid.UUID `json:"userId,omitempty"`
	Username string    `json:"username,omitempty"`
}

// GroupJoinPayload subscribes the connection to a group's events.
type GroupJoinPayload struct {
	GroupID uuid.UUID `json:"groupId"`
}

// GroupMessagePayload carries a group message from the client.
type GroupMessagePayload struct {
	GroupID uuid.UUID `json:"groupId"`
	Content string    `json:"content"`
}

// GroupReadPayload marks a group message read by the sender of the event.
type GroupReadPayload struct {
	MessageID string    `json:"messageId"`
	GroupID   uuid.UUID `json:"groupId"`
}

// GroupReactionPayload adds a reaction to a group message.
type GroupReactionPayload struct {
	MessageID string    `json:"messageId"`
	GroupID   uuid.UUID `json:"groupId"`
	Emoji     string    `json:"emoji"`
}

// PresencePayload announces a user's presence change to everyone.
type PresencePayload struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	LastSeen string    `json:"lastSeen,omitempty"`
}

// legacyEventNames maps event aliases still used by older clients onto the
// canonical names.
var legacyEventNames = map[string]string{
	"send_message":        EventMessageSend,
	"mark_as_read":        EventMessageRead,
	"message:react":       EventMessageReaction,
	"group:message:react": EventGroupMessageReaction,
	"start_typing":        EventTyping,
	"user_typing":         EventTyping,
	"user_stopped_typing": EventStopTyping,
	"join_chat":           EventGroupJoin,
	"join_group":          EventGroupJoin,
}

// normalizeEvent resolves legacy aliases to canonical event names.
func normalizeEvent(name string) string {
	if canonical, ok := legacyEventNames[name]; ok {
		return canonical
	}
	return name
}

// marshalEvent builds the outbound frame for an event with a JSON payload.
// Marshal failures are programming errors; the frame is dropped upstream.
func marshalEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: data})
}

// marshalAck builds the reply frame for an acked event.
func marshalAck(ack int64, payload AckPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: "ack", Data: data, Ack: ack})
}
