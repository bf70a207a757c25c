// Package storetest provides an in-memory DataStore for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/store"
)

// Store implements store.DataStore in memory. Zero value is not usable;
// call New.
type Store struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*models.User
	usernames     map[string]uuid.UUID
	conversations map[uuid.UUID]*models.Conversation
	messages      map[string]*models.Message
	groups        map[uuid.UUID]*models.Group
	groupMessages map[string]*models.GroupMessage
}

var _ store.DataStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*models.User),
		usernames:     make(map[string]uuid.UUID),
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[string]*models.Message),
		groups:        make(map[uuid.UUID]*models.Group),
		groupMessages: make(map[string]*models.GroupMessage),
	}
}

func (s *Store) Close()                     {}
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, username, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[username]; taken {
		return nil, errDuplicate
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	s.usernames[username] = user.ID
	copied := *user
	return &copied, nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *Store) ListUsersExcept(_ context.Context, id uuid.UUID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	for _, user := range s.users {
		if user.ID != id {
			users = append(users, *user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpsertPresence(_ context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.IsOnline = online
	user.LastSeen = lastSeen
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) FindOrCreateDirectConversation(_ context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.Type != models.ConversationDirect || len(conv.Participants) != 2 {
			continue
		}
		pa, pb := conv.Participants[0].ID, conv.Participants[1].ID
		if (pa == a && pb == b) || (pa == b && pb == a) {
			copied := *conv
			return &copied, nil
		}
	}

	conv := &models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		CreatedAt: time.Now().UTC(),
	}
	for _, id := range []uuid.UUID{a, b} {
		if user, ok := s.users[id]; ok {
			conv.Participants = append(conv.Participants, user.Ref())
		} else {
			conv.Participants = append(conv.Participants, models.UserRef{ID: id})
		}
	}
	s.conversations[conv.ID] = conv
	copied := *conv
	return &copied, nil
}

func (s *Store) ListConversationsForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []models.Conversation
	for _, conv := range s.conversations {
		for _, p := range conv.Participants {
			if p.ID == userID {
				convs = append(convs, *conv)
				break
			}
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].CreatedAt.After(convs[j].CreatedAt) })
	return convs, nil
}

func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = store.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	copied := *msg
	s.messages[msg.ID] = &copied
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) MarkMessageRead(_ context.Context, id string, readAt time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Read = true
	if msg.ReadAt == nil {
		msg.ReadAt = &readAt
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) AddReaction(_ context.Context, id string, reaction models.Reaction) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Reactions = append(msg.Reactions, reaction)
	copied := *msg
	return &copied, nil
}

func (s *Store) ListMessagesBetween(_ context.Context, a, b uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > store.MaxHistoryLimit {
		limit = store.MaxHistoryLimit
	}

	var msgs []models.Message
	for _, msg := range s.messages {
		between := (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a)
		if between && !msg.CreatedAt.After(before) {
			msgs = append(msgs, *msg)
		}
	}
	// newest first, ULID as tie-break
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return strings.Compare(msgs[i].ID, msgs[j].ID) > 0
	})
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *Store) ListUnreadMessagesFor(_ context.Context, receiverID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []models.Message
	for _, msg := range s.messages {
		if msg.ReceiverID == receiverID && !msg.Read {
			msgs = append(msgs, *msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (s *Store) CreateGroup(_ context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group := &models.Group{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range append([]uuid.UUID{createdBy}, memberIDs...) {
		if !seen[id] {
			seen[id] = true
			group.MemberIDs = append(group.MemberIDs, id)
		}
	}
	s.groups[group.ID] = group
	copied := *group
	return &copied, nil
}

func (s *Store) GetGroup(_ context.Context, id uuid.UUID) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	copied := *group
	return &copied, nil
}

func (s *Store) ListGroupsForUser(_ context.Context, userID uuid.UUID) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []models.Group
	for _, group := range s.groups {
		for _, id := range group.MemberIDs {
			if id == userID {
				groups = append(groups, *group)
				break
			}
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.After(groups[j].CreatedAt) })
	return groups, nil
}

func (s *Store) CreateGroupMessage(_ context.Context, msg *models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = store.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	copied := *msg
	s.groupMessages[msg.ID] = &copied
	return nil
}

func (s *Store) GetGroupMessage(_ context.Context, id string) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.groupMessages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) AddGroupReader(_ context.Context, id string, readerID uuid.UUID) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.groupMessages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !msg.HasReader(readerID) {
		msg.ReadBy = append(msg.ReadBy, readerID)
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) AddGroupReaction(_ context.Context, id string, reaction models.Reaction) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.groupMessages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Reactions = append(msg.Reactions, reaction)
	copied := *msg
	return &copied, nil
}

func (s *Store) ListGroupMessages(_ context.Context, groupID uuid.UUID) ([]models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []models.GroupMessage
	for _, msg := range s.groupMessages {
		if msg.GroupID == groupID {
			msgs = append(msgs, *msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

type constError string

func (e constError) Error() string { return string(e) }

const errDuplicate = constError("storetest: username already exists")
