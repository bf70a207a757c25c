package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// ErrNotFound is returned by update operations when the referenced row does
// not exist. Get-style methods follow the (nil, nil) convention instead so
// callers can distinguish "absent" from "query failed".
var ErrNotFound = errors.New("store: not found")

// MaxHistoryLimit caps the page size of message history queries.
const MaxHistoryLimit = 100

// DataStore defines the persistence collaborator for users, conversations,
// messages and groups. Both PostgresStore and SQLiteStore implement this
// interface; the realtime engine and the HTTP handlers only see DataStore.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsersExcept(ctx context.Context, id uuid.UUID) ([]models.User, error)

	// Presence is derived from live connection counts and written through
	// here on 0->1 and 1->0 transitions. lastSeen is nil while online.
	UpsertPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) error

	// Conversation operations. FindOrCreateDirectConversation is idempotent
	// on the unordered participant pair.
	FindOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)

	// Direct message operations. CreateMessage assigns the ULID and the
	// creation timestamp. MarkMessageRead is idempotent and keeps the first
	// read timestamp; AddReaction appends without dedup.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id string, readAt time.Time) (*models.Message, error)
	AddReaction(ctx context.Context, id string, reaction models.Reaction) (*models.Message, error)
	ListMessagesBetween(ctx context.Context, a, b uuid.UUID, before time.Time, limit int) ([]models.Message, error)
	ListUnreadMessagesFor(ctx context.Context, receiverID uuid.UUID) ([]models.Message, error)

	// Group operations. AddGroupReader has set-union semantics: the reader
	// set never shrinks and a reader id appears at most once.
	CreateGroup(ctx context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error)
	CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error
	GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error)
	AddGroupReader(ctx context.Context, id string, readerID uuid.UUID) (*models.GroupMessage, error)
	AddGroupReaction(ctx context.Context, id string, reaction models.Reaction) (*models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID uuid.UUID) ([]models.GroupMessage, error)
}
