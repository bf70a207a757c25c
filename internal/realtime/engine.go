package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShaheerQidwai/chat-app/internal/metrics"
	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/store"
)

// Validation errors surfaced to clients via acks and HTTP responses.
var (
	ErrEmptyContent    = errors.New("content must not be empty")
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownMessage  = errors.New("unknown message")
	ErrUnknownGroup    = errors.New("unknown group")
	ErrNotGroupMember  = errors.New("not a member of this group")
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrInvalidReaction = errors.New("emoji must not be empty")
)

const maxContentLength = 4096

// Engine implements the message fan-out semantics: every event is persisted
// first and broadcast only after the write succeeds. It also owns presence
// transitions and missed-message replay.
type Engine struct {
	store    store.DataStore
	presence *store.RedisStore
	hub      *Hub
	log      zerolog.Logger

	// opTimeout bounds store calls made on behalf of a websocket event.
	opTimeout time.Duration
}

func NewEngine(dataStore store.DataStore, presence *store.RedisStore, hub *Hub, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     dataStore,
		presence:  presence,
		hub:       hub,
		log:       logger,
		opTimeout: 10 * time.Second,
	}
}

// Hub exposes the connection registry, mainly for handlers and tests.
func (e *Engine) Hub() *Hub { return e.hub }

// HandleConnect registers the connection, flips the user online when this is
// their first socket, and replays unread messages to the new socket.
func (e *Engine) HandleConnect(c *Conn) {
	cameOnline := e.hub.Register(c)

	ctx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
	defer cancel()

	if cameOnline {
		if err := e.store.UpsertPresence(ctx, c.UserID, true, nil); err != nil {
			e.log.Error().Err(err).Str("user_id", c.UserID.String()).Msg("persist presence online")
		}
		if err := e.presence.SetOnline(ctx, c.UserID); err != nil {
			e.log.Warn().Err(err).Msg("redis presence set")
		}
		e.broadcastPresence(c.UserID, c.Username, true, nil)
	}

	e.replayMissed(ctx, c)
}

// HandleDisconnect unregisters the connection and flips the user offline
// when it was their last socket.
func (e *Engine) HandleDisconnect(c *Conn) {
	if !e.hub.Unregister(c) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := e.store.UpsertPresence(ctx, c.UserID, false, &now); err != nil {
		e.log.Error().Err(err).Str("user_id", c.UserID.String()).Msg("persist presence offline")
	}
	if err := e.presence.SetOffline(ctx, c.UserID); err != nil {
		e.log.Warn().Err(err).Msg("redis presence clear")
	}
	e.broadcastPresence(c.UserID, c.Username, false, &now)
}

func (e *Engine) broadcastPresence(userID uuid.UUID, username string, online bool, lastSeen *time.Time) {
	payload := PresencePayload{UserID: userID, Username: username, IsOnline: online}
	if lastSeen != nil {
		payload.LastSeen = lastSeen.Format(time.RFC3339)
	}
	frame, err := marshalEvent(EventUserPresence, payload)
	if err != nil {
		return
	}
	metrics.EventsBroadcast.WithLabelValues(EventUserPresence).Inc()
	e.hub.Broadcast(frame)
}

// replayMissed pushes every unread message addressed to the user onto this
// one connection, oldest first. Messages are not marked read; the client
// acknowledges them explicitly.
func (e *Engine) replayMissed(ctx context.Context, c *Conn) {
	msgs, err := e.store.ListUnreadMessagesFor(ctx, c.UserID)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", c.UserID.String()).Msg("list unread for replay")
		return
	}

	for i := range msgs {
		e.populateDirectRefs(ctx, &msgs[i])
		frame, err := marshalEvent(EventMessageReceive, &msgs[i])
		if err != nil {
			continue
		}
		c.enqueue(frame)
		metrics.MessagesReplayed.Inc()
	}

	if len(msgs) > 0 {
		e.log.Info().Int("count", len(msgs)).Str("user_id", c.UserID.String()).Msg("replayed missed messages")
	}
}

// SendDirect validates, persists, and fans out a direct message. The
// receiver gets message:receive on every socket; the sender's other sockets
// get message:sent so all tabs converge.
func (e *Engine) SendDirect(ctx context.Context, sender *models.User, p *SendMessagePayload) (*models.Message, error) {
	receiverID := p.ReceiverID
	if receiverID == uuid.Nil {
		receiverID = p.To
	}
	if receiverID == uuid.Nil {
		return nil, ErrUnknownUser
	}
	if receiverID == sender.ID {
		return nil, ErrSelfMessage
	}
	if p.Content == "" || len(p.Content) > maxContentLength {
		return nil, ErrEmptyContent
	}

	receiver, err := e.store.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ErrUnknownUser
	}

	conv, err := e.store.FindOrCreateDirectConversation(ctx, sender.ID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		ReceiverID:     receiverID,
		Content:        p.Content,
	}
	for _, a := range p.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{URL: a.URL, Type: a.Type})
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	senderRef := sender.Ref()
	receiverRef := receiver.Ref()
	msg.Sender = &senderRef
	msg.Receiver = &receiverRef

	metrics.MessagesSent.WithLabelValues("direct").Inc()
	e.emitToUser(receiverID, EventMessageReceive, msg)
	e.emitToUser(sender.ID, EventMessageSent, msg)
	return msg, nil
}

// MarkRead marks a direct message read and notifies the original sender.
// Only the receiver of a message may mark it read; marking twice keeps the
// first read timestamp.
func (e *Engine) MarkRead(ctx context.Context, reader uuid.UUID, messageID string) (*models.Message, error) {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	if msg.ReceiverID != reader {
		return nil, ErrUnknownMessage
	}

	msg, err = e.store.MarkMessageRead(ctx, messageID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMessage
		}
		return nil, err
	}

	e.populateDirectRefs(ctx, msg)
	e.emitToUser(msg.SenderID, EventMessageRead, msg)
	e.emitToUser(msg.ReceiverID, EventMessageRead, msg)
	return msg, nil
}

// React appends a reaction to a direct message and notifies both parties.
// Reactions are an append log; the same user may react repeatedly.
func (e *Engine) React(ctx context.Context, reactor uuid.UUID, messageID, emoji string) (*models.Message, error) {
	if emoji == "" {
		return nil, ErrInvalidReaction
	}

	orig, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if orig == nil || (orig.SenderID != reactor && orig.ReceiverID != reactor) {
		return nil, ErrUnknownMessage
	}

	msg, err := e.store.AddReaction(ctx, messageID, models.Reaction{UserID: reactor, Emoji: emoji})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMessage
		}
		return nil, err
	}

	e.populateDirectRefs(ctx, msg)
	e.emitToUser(msg.SenderID, EventMessageReaction, msg)
	e.emitToUser(msg.ReceiverID, EventMessageReaction, msg)
	return msg, nil
}

// JoinGroup verifies membership and subscribes the connection to the
// group's room.
func (e *Engine) JoinGroup(ctx context.Context, c *Conn, groupID uuid.UUID) error {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return ErrUnknownGroup
	}
	if !memberOf(group, c.UserID) {
		return ErrNotGroupMember
	}

	e.hub.Join(groupID, c)
	return nil
}

// SendGroup validates, persists, and fans out a group message to every
// socket joined to the room except the sender's own.
func (e *Engine) SendGroup(ctx context.Context, sender *models.User, p *GroupMessagePayload) (*models.GroupMessage, error) {
	if p.Content == "" || len(p.Content) > maxContentLength {
		return nil, ErrEmptyContent
	}

	group, err := e.store.GetGroup(ctx, p.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrUnknownGroup
	}
	if !memberOf(group, sender.ID) {
		return nil, ErrNotGroupMember
	}

	// The sender has trivially seen their own message.
	msg := &models.GroupMessage{
		GroupID:  p.GroupID,
		SenderID: sender.ID,
		Content:  p.Content,
		ReadBy:   []uuid.UUID{sender.ID},
	}
	if err := e.store.CreateGroupMessage(ctx, msg); err != nil {
		return nil, err
	}

	senderRef := sender.Ref()
	msg.Sender = &senderRef

	metrics.MessagesSent.WithLabelValues("group").Inc()
	// The whole room hears the message, the sender's own connections
	// included: the echo doubles as delivery confirmation for every tab.
	e.emitToRoom(p.GroupID, EventGroupMessageReceive, msg, uuid.Nil)
	return msg, nil
}

// MarkGroupRead adds the reader to a group message's read set and notifies
// the room. Adding the same reader twice is a no-op.
func (e *Engine) MarkGroupRead(ctx context.Context, reader uuid.UUID, p *GroupReadPayload) (*models.GroupMessage, error) {
	msg, err := e.store.GetGroupMessage(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}

	group, err := e.store.GetGroup(ctx, msg.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil || !memberOf(group, reader) {
		return nil, ErrNotGroupMember
	}

	msg, err = e.store.AddGroupReader(ctx, p.MessageID, reader)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMessage
		}
		return nil, err
	}

	e.emitToRoom(msg.GroupID, EventGroupMessageRead, msg, uuid.Nil)
	return msg, nil
}

// ReactGroup appends a reaction to a group message and notifies the room.
func (e *Engine) ReactGroup(ctx context.Context, reactor uuid.UUID, p *GroupReactionPayload) (*models.GroupMessage, error) {
	if p.Emoji == "" {
		return nil, ErrInvalidReaction
	}

	msg, err := e.store.GetGroupMessage(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}

	group, err := e.store.GetGroup(ctx, msg.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil || !memberOf(group, reactor) {
		return nil, ErrNotGroupMember
	}

	msg, err = e.store.AddGroupReaction(ctx, p.MessageID, models.Reaction{UserID: reactor, Emoji: p.Emoji})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMessage
		}
		return nil, err
	}

	e.emitToRoom(msg.GroupID, EventGroupMessageReaction, msg, uuid.Nil)
	return msg, nil
}

// RelayTyping forwards a typing indicator without persisting anything.
// Direct indicators go to the peer; group indicators to the room, excluding
// the typist.
func (e *Engine) RelayTyping(c *Conn, event string, p *TypingPayload) {
	p.UserID = c.UserID
	p.Username = c.Username

	frame, err := marshalEvent(event, p)
	if err != nil {
		return
	}

	metrics.EventsBroadcast.WithLabelValues(event).Inc()
	if p.GroupID != uuid.Nil {
		e.hub.SendToRoom(p.GroupID, frame, c.UserID)
		return
	}
	if p.To != uuid.Nil {
		e.hub.SendToUser(p.To, frame)
	}
}

func (e *Engine) emitToUser(userID uuid.UUID, event string, payload any) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", event).Msg("marshal event")
		return
	}
	metrics.EventsBroadcast.WithLabelValues(event).Inc()
	e.hub.SendToUser(userID, frame)
}

func (e *Engine) emitToRoom(roomID uuid.UUID, event string, payload any, exclude uuid.UUID) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", event).Msg("marshal event")
		return
	}
	metrics.EventsBroadcast.WithLabelValues(event).Inc()
	e.hub.SendToRoom(roomID, frame, exclude)
}

// populateDirectRefs fills the display fields on a message when the store
// row did not carry them. Lookup failures leave the refs nil.
func (e *Engine) populateDirectRefs(ctx context.Context, msg *models.Message) {
	if msg.Sender == nil {
		if u, err := e.store.GetUserByID(ctx, msg.SenderID); err == nil && u != nil {
			ref := u.Ref()
			msg.Sender = &ref
		}
	}
	if msg.Receiver == nil {
		if u, err := e.store.GetUserByID(ctx, msg.ReceiverID); err == nil && u != nil {
			ref := u.Ref()
			msg.Receiver = &ref
		}
	}
}

func memberOf(group *models.Group, userID uuid.UUID) bool {
	for _, id := range group.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
