package chat

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// How long a notification stays visible.
	notificationTTL = 5 * time.Second
	// At most this many notifications are shown at once.
	maxNotifications = 3
	// A typing indicator not refreshed within this window disappears.
	typingTTL = 2 * time.Second
)

// Notification is a transient toast for a message received while its chat
// was not active.
type Notification struct {
	MessageID string
	From      string
	Preview   string
	At        time.Time
}

// typingKey identifies one typing indicator: who is typing, and in which
// conversation.
type typingKey struct {
	User uuid.UUID
	Room uuid.UUID
}

// State reconciles server events into a render-ready view: per-conversation
// timelines, unread counters, presence, typing indicators, and
// notifications. Conversations are keyed by the peer's user ID for direct
// chats and by the group ID for groups. All methods are safe for concurrent
// use; the read loop applies events while the UI reads snapshots.
type State struct {
	mu sync.Mutex

	selfID     uuid.UUID
	activeChat uuid.UUID

	timelines     map[uuid.UUID][]Message
	unread        map[uuid.UUID]int
	online        map[uuid.UUID]bool
	typing        map[typingKey]time.Time
	notifications []Notification

	now func() time.Time
}

// NewState creates reconciliation state for the given local user.
func NewState(selfID uuid.UUID) *State {
	return &State{
		selfID:    selfID,
		timelines: make(map[uuid.UUID][]Message),
		unread:    make(map[uuid.UUID]int),
		online:    make(map[uuid.UUID]bool),
		typing:    make(map[typingKey]time.Time),
		now:       time.Now,
	}
}

// Apply folds one server event into the state.
func (s *State) Apply(evt *Event) {
	switch evt.Event {
	case "message:receive":
		s.applyIncoming(evt.Data)
	case "message:sent":
		s.applyEcho(evt.Data)
	case "message:read", "message:reaction":
		s.applyUpdate(evt.Data)
	case "group:message:receive":
		s.applyGroupIncoming(evt.Data)
	case "group:message:read", "group:message:reaction":
		s.applyGroupUpdate(evt.Data)
	case "typing":
		s.applyTyping(evt.Data, true)
	case "stop_typing":
		s.applyTyping(evt.Data, false)
	case "user:presence":
		s.applyPresence(evt.Data)
	}
}

// applyIncoming handles a message addressed to us: merge into the sender's
// timeline, bump unread unless that chat is active, and raise a
// notification.
func (s *State) applyIncoming(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return
	}
	msg := w.normalized()
	if msg.ID == "" || msg.SenderID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	peer := msg.SenderID
	if !s.merge(peer, msg, false) {
		return // duplicate delivery (replay overlapping live receive)
	}

	if s.activeChat != peer {
		s.unread[peer]++
		s.notify(msg)
	}
}

// applyGroupIncoming handles a group message: merge into the group's
// timeline and, unless we sent it or have the group open, bump unread and
// raise a notification.
func (s *State) applyGroupIncoming(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return
	}
	msg := w.normalized()
	if msg.ID == "" || msg.GroupID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.merge(msg.GroupID, msg, false) {
		return
	}
	if msg.SenderID == s.selfID {
		return // our own room echo
	}
	if s.activeChat != msg.GroupID {
		s.unread[msg.GroupID]++
		s.notify(msg)
	}
}

// applyGroupUpdate replaces a group message in place after a read receipt
// or reaction.
func (s *State) applyGroupUpdate(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return
	}
	msg := w.normalized()
	if msg.ID == "" || msg.GroupID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.timelines[msg.GroupID]
	for i := range timeline {
		if timeline[i].ID == msg.ID {
			timeline[i] = msg
			return
		}
	}
}

// applyEcho handles our own message echoed back from another tab, or the
// confirmation of a pending local send.
func (s *State) applyEcho(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return
	}
	msg := w.normalized()
	if msg.ID == "" || msg.ReceiverID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(msg.ReceiverID, msg, false)
}

// applyUpdate replaces a message in place after a read receipt or reaction.
func (s *State) applyUpdate(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return
	}
	msg := w.normalized()
	if msg.ID == "" {
		return
	}

	peer := msg.SenderID
	if peer == s.selfID {
		peer = msg.ReceiverID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.timelines[peer]
	for i := range timeline {
		if timeline[i].ID == msg.ID {
			timeline[i] = msg
			return
		}
	}
}

func (s *State) applyTyping(data json.RawMessage, start bool) {
	var t typingEvent
	if err := json.Unmarshal(data, &t); err != nil {
		return
	}
	user := t.user()
	if user == uuid.Nil {
		return
	}
	room := t.room()
	if room == uuid.Nil {
		// Direct typing carries no room; the conversation is the
		// typist's own chat.
		room = user
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := typingKey{User: user, Room: room}
	if start {
		s.typing[key] = s.now()
	} else {
		delete(s.typing, key)
	}
}

func (s *State) applyPresence(data json.RawMessage) {
	var p presenceEvent
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[p.UserID] = p.IsOnline
}

// merge inserts a message into a conversation's timeline, deduplicating by
// ID. A confirmed message replaces its pending local echo; an authoritative
// copy (fetched from the store) replaces whatever is held in memory, since
// the store may carry read receipts or reactions the live stream missed.
// Reports whether the timeline changed beyond replacing an entry.
func (s *State) merge(chat uuid.UUID, msg Message, authoritative bool) bool {
	timeline := s.timelines[chat]
	for i := range timeline {
		if timeline[i].ID == msg.ID {
			if authoritative || timeline[i].Pending {
				s.timelines[chat][i] = msg
			}
			return false
		}
	}

	timeline = append(timeline, msg)
	// ULIDs sort by creation time, so ordering by ID keeps the timeline
	// stable even when clocks disagree.
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].ID < timeline[j].ID
	})
	s.timelines[chat] = timeline
	return true
}

func (s *State) notify(msg Message) {
	from := msg.SenderID.String()
	if msg.Sender != nil {
		from = msg.Sender.Username
	}
	preview := msg.Content
	if r := []rune(preview); len(r) > 80 {
		preview = string(r[:80])
	}

	s.notifications = append(s.notifications, Notification{
		MessageID: msg.ID,
		From:      from,
		Preview:   preview,
		At:        s.now(),
	})
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}
}

// AddPending records a locally sent message before the server confirms it.
// The eventual message:sent echo with the same ID replaces it.
func (s *State) AddPending(chat uuid.UUID, msg Message) {
	msg.Pending = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(chat, msg, false)
}

// SeedHistory loads a page of fetched history into a conversation's
// timeline. Store copies are authoritative: a fetched message replaces any
// staler in-memory copy of the same ID.
func (s *State) SeedHistory(chat uuid.UUID, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		s.merge(chat, msg, true)
	}
}

// SetActive switches the open chat and clears its unread counter.
func (s *State) SetActive(chat uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChat = chat
	delete(s.unread, chat)
}

// Timeline returns a copy of the messages exchanged with a peer, oldest
// first.
func (s *State) Timeline(peer uuid.UUID) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.timelines[peer]
	out := make([]Message, len(timeline))
	copy(out, timeline)
	return out
}

// Unread returns the unread count for a peer.
func (s *State) Unread(peer uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[peer]
}

// IsOnline reports the last known presence of a user.
func (s *State) IsOnline(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// TypingUsers returns the users whose typing indicator in the given
// conversation is still fresh.
func (s *State) TypingUsers(chat uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-typingTTL)
	var users []uuid.UUID
	for key, at := range s.typing {
		if !at.After(cutoff) {
			delete(s.typing, key)
			continue
		}
		if key.Room == chat {
			users = append(users, key.User)
		}
	}
	return users
}

// Notifications returns the notifications still within their display
// window, oldest first.
func (s *State) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-notificationTTL)
	live := s.notifications[:0]
	for _, n := range s.notifications {
		if n.At.After(cutoff) {
			live = append(live, n)
		}
	}
	s.notifications = live

	out := make([]Notification, len(live))
	copy(out, live)
	return out
}
