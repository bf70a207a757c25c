package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// SQLiteStore is the development backend. It implements the same DataStore
// interface as PostgresStore against a local file database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT 'direct',
		user_a TEXT NOT NULL REFERENCES users(id),
		user_b TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
		ON conversations (min(user_a, user_b), max(user_a, user_b))
		WHERE type = 'direct';

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL REFERENCES users(id),
		receiver_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		read_at TIMESTAMP,
		attachments TEXT NOT NULL DEFAULT '[]',
		reactions TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (receiver_id) WHERE NOT read;

	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (group_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS group_messages (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id),
		sender_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		read_by TEXT NOT NULL DEFAULT '[]',
		reactions TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages (group_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, is_online, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, id.String(), username, email, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, is_online, last_seen, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsersExcept retrieves all users except the given one.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, is_online, last_seen, created_at, updated_at
		FROM users WHERE id <> ?
		ORDER BY username
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpsertPresence writes a user's online flag and last-seen timestamp.
func (s *SQLiteStore) UpsertPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = ?, updated_at = ?
		WHERE id = ?
	`, online, lastSeen, time.Now().UTC(), userID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateDirectConversation returns the direct conversation for the
// unordered pair (a, b), creating it on first use.
func (s *SQLiteStore) FindOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	conv, err := s.getDirectConversation(ctx, a, b)
	if err != nil || conv != nil {
		return conv, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, type, user_a, user_b, created_at)
		VALUES (?, 'direct', ?, ?, ?)
	`, uuid.New().String(), a.String(), b.String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return s.getDirectConversation(ctx, a, b)
}

const sqliteConversationQuery = `
	SELECT c.id, c.type, c.created_at,
	       ua.id, ua.username, ua.email, ua.is_online,
	       ub.id, ub.username, ub.email, ub.is_online
	FROM conversations c
	JOIN users ua ON ua.id = c.user_a
	JOIN users ub ON ub.id = c.user_b
`

func (s *SQLiteStore) getDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, sqliteConversationQuery+`
		WHERE c.type = 'direct'
		  AND min(c.user_a, c.user_b) = min(?, ?)
		  AND max(c.user_a, c.user_b) = max(?, ?)
	`, a.String(), b.String(), a.String(), b.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListConversationsForUser retrieves a user's conversations, newest first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, sqliteConversationQuery+`
		WHERE c.user_a = ? OR c.user_b = ?
		ORDER BY c.created_at DESC
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// CreateMessage persists a direct message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, read, read_at, attachments, reactions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID.String(), msg.SenderID.String(), msg.ReceiverID.String(), msg.Content,
		msg.Read, msg.ReadAt, string(marshalAttachments(msg.Attachments)), string(marshalReactions(msg.Reactions)), msg.CreatedAt)
	return err
}

// GetMessage retrieves a direct message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// MarkMessageRead flips the read flag, keeping the first read timestamp.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string, readAt time.Time) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?
	`, readAt, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

// AddReaction appends a reaction inside a transaction (SQLite has no
// single-statement JSON append that preserves our encoding).
func (s *SQLiteStore) AddReaction(ctx context.Context, id string, reaction models.Reaction) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg.Reactions = append(msg.Reactions, reaction)
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET reactions = ? WHERE id = ?
	`, string(marshalReactions(msg.Reactions)), id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessagesBetween retrieves the direct messages exchanged between two
// users with created_at <= before, newest first.
func (s *SQLiteStore) ListMessagesBetween(ctx context.Context, a, b uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND created_at <= ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, a.String(), b.String(), b.String(), a.String(), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectMessages(rows)
}

// ListUnreadMessagesFor retrieves all unread messages addressed to a user,
// oldest first.
func (s *SQLiteStore) ListUnreadMessagesFor(ctx context.Context, receiverID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE receiver_id = ? AND NOT read
		ORDER BY created_at, rowid
	`, receiverID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectMessages(rows)
}

func (s *SQLiteStore) collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// CreateGroup creates a group and its membership rows in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	group := &models.Group{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, group.ID.String(), name, createdBy.String(), group.CreatedAt); err != nil {
		return nil, err
	}

	members := append([]uuid.UUID{createdBy}, memberIDs...)
	seen := make(map[uuid.UUID]bool, len(members))
	for _, memberID := range members {
		if seen[memberID] {
			continue
		}
		seen[memberID] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id) VALUES (?, ?)
		`, group.ID.String(), memberID.String()); err != nil {
			return nil, err
		}
		group.MemberIDs = append(group.MemberIDs, memberID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup retrieves a group with its member list.
func (s *SQLiteStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at FROM groups WHERE id = ?
	`, id.String()).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM group_members WHERE group_id = ?
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var memberID uuid.UUID
		if err := rows.Scan(&memberID); err != nil {
			return nil, err
		}
		group.MemberIDs = append(group.MemberIDs, memberID)
	}
	return group, rows.Err()
}

// ListGroupsForUser retrieves the groups a user is a member of.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = ?
		ORDER BY g.created_at DESC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		group := models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// CreateGroupMessage persists a group message.
func (s *SQLiteStore) CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_messages (id, group_id, sender_id, content, read_by, reactions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.GroupID.String(), msg.SenderID.String(), msg.Content,
		string(marshalReaders(msg.ReadBy)), string(marshalReactions(msg.Reactions)), msg.CreatedAt)
	return err
}

// GetGroupMessage retrieves a group message by ID.
func (s *SQLiteStore) GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error) {
	msg, err := scanGroupMessage(s.db.QueryRowContext(ctx,
		`SELECT `+groupMessageColumns+` FROM group_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// AddGroupReader adds a reader to a group message's read set (set union).
func (s *SQLiteStore) AddGroupReader(ctx context.Context, id string, readerID uuid.UUID) (*models.GroupMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := scanGroupMessage(tx.QueryRowContext(ctx,
		`SELECT `+groupMessageColumns+` FROM group_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !msg.HasReader(readerID) {
		msg.ReadBy = append(msg.ReadBy, readerID)
		if _, err := tx.ExecContext(ctx, `
			UPDATE group_messages SET read_by = ? WHERE id = ?
		`, string(marshalReaders(msg.ReadBy)), id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddGroupReaction appends a reaction to a group message.
func (s *SQLiteStore) AddGroupReaction(ctx context.Context, id string, reaction models.Reaction) (*models.GroupMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := scanGroupMessage(tx.QueryRowContext(ctx,
		`SELECT `+groupMessageColumns+` FROM group_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg.Reactions = append(msg.Reactions, reaction)
	if _, err := tx.ExecContext(ctx, `
		UPDATE group_messages SET reactions = ? WHERE id = ?
	`, string(marshalReactions(msg.Reactions)), id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListGroupMessages retrieves a group's messages, oldest first.
func (s *SQLiteStore) ListGroupMessages(ctx context.Context, groupID uuid.UUID) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupMessageColumns+` FROM group_messages
		WHERE group_id = ?
		ORDER BY created_at, rowid
	`, groupID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.GroupMessage
	for rows.Next() {
		msg, err := scanGroupMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}
