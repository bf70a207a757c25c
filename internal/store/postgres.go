package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShaheerQidwai/chat-app/internal/models"
)

const messageColumns = "id, conversation_id, sender_id, receiver_id, content, read, read_at, attachments, reactions, created_at"
const groupMessageColumns = "id, group_id, sender_id, content, read_by, reactions, created_at"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email)
		VALUES ($1, $2)
		RETURNING id, username, email, is_online, last_seen, created_at, updated_at
	`, username, email))
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, email, is_online, last_seen, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsersExcept retrieves all users except the given one.
func (s *PostgresStore) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, email, is_online, last_seen, created_at, updated_at
		FROM users WHERE id <> $1
		ORDER BY username
	`, id)
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
func (s *PostgresStore) UpsertPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen = $3, updated_at = now()
		WHERE id = $1
	`, userID, online, lastSeen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateDirectConversation returns the direct conversation for the
// unordered pair (a, b), creating it on first use. A unique index on
// (least(user_a, user_b), greatest(user_a, user_b)) makes the create race-safe:
// a concurrent insert loses the conflict and the second lookup finds the winner.
func (s *PostgresStore) FindOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	conv, err := s.getDirectConversation(ctx, a, b)
	if err != nil || conv != nil {
		return conv, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (type, user_a, user_b)
		VALUES ('direct', $1, $2)
		ON CONFLICT (least(user_a, user_b), greatest(user_a, user_b)) WHERE type = 'direct'
		DO NOTHING
	`, a, b)
	if err != nil {
		return nil, err
	}

	return s.getDirectConversation(ctx, a, b)
}

func (s *PostgresStore) getDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, conversationQuery+`
		WHERE c.type = 'direct'
		  AND least(c.user_a, c.user_b) = least($1::uuid, $2::uuid)
		  AND greatest(c.user_a, c.user_b) = greatest($1::uuid, $2::uuid)
	`, a, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

const conversationQuery = `
	SELECT c.id, c.type, c.created_at,
	       ua.id, ua.username, ua.email, ua.is_online,
	       ub.id, ub.username, ub.email, ub.is_online
	FROM conversations c
	JOIN users ua ON ua.id = c.user_a
	JOIN users ub ON ub.id = c.user_b
`

// ListConversationsForUser retrieves a user's conversations, newest first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, conversationQuery+`
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY c.created_at DESC
	`, userID)
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

// CreateMessage persists a direct message, assigning its ULID and creation
// timestamp if not already set.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, read, read_at, attachments, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content,
		msg.Read, msg.ReadAt, marshalAttachments(msg.Attachments), marshalReactions(msg.Reactions), msg.CreatedAt)
	return err
}

// GetMessage retrieves a direct message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// MarkMessageRead flips the read flag. Idempotent: the first read timestamp
// is kept on repeat calls.
func (s *PostgresStore) MarkMessageRead(ctx context.Context, id string, readAt time.Time) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+messageColumns, id, readAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// AddReaction appends a reaction to a message. No dedup: one statement, one
// append, duplicates included.
func (s *PostgresStore) AddReaction(ctx context.Context, id string, reaction models.Reaction) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET reactions = reactions || $2::jsonb
		WHERE id = $1
		RETURNING `+messageColumns, id, marshalReactions([]models.Reaction{reaction})))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListMessagesBetween retrieves the direct messages exchanged between two
// users with created_at <= before, newest first.
func (s *PostgresStore) ListMessagesBetween(ctx context.Context, a, b uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND created_at <= $3
		ORDER BY created_at DESC, seq DESC
		LIMIT $4
	`, a, b, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListUnreadMessagesFor retrieves all undelivered (unread) messages addressed
// to a user, oldest first. This is the missed-message replay source.
func (s *PostgresStore) ListUnreadMessagesFor(ctx context.Context, receiverID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE receiver_id = $1 AND NOT read
		ORDER BY created_at, seq
	`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
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
// The creator is always a member.
func (s *PostgresStore) CreateGroup(ctx context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group := &models.Group{Name: name, CreatedBy: createdBy}
	err = tx.QueryRow(ctx, `
		INSERT INTO groups (name, created_by)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, name, createdBy).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return nil, err
	}

	members := append([]uuid.UUID{createdBy}, memberIDs...)
	seen := make(map[uuid.UUID]bool, len(members))
	for _, memberID := range members {
		if seen[memberID] {
			continue
		}
		seen[memberID] = true
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		`, group.ID, memberID); err != nil {
			return nil, err
		}
		group.MemberIDs = append(group.MemberIDs, memberID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup retrieves a group with its member list.
func (s *PostgresStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_by, created_at FROM groups WHERE id = $1
	`, id).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM group_members WHERE group_id = $1
	`, id)
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
func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC
	`, userID)
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
func (s *PostgresStore) CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO group_messages (id, group_id, sender_id, content, read_by, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.GroupID, msg.SenderID, msg.Content,
		marshalReaders(msg.ReadBy), marshalReactions(msg.Reactions), msg.CreatedAt)
	return err
}

// GetGroupMessage retrieves a group message by ID.
func (s *PostgresStore) GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error) {
	msg, err := scanGroupMessage(s.pool.QueryRow(ctx,
		`SELECT `+groupMessageColumns+` FROM group_messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// AddGroupReader adds a reader to a group message's read set. Set-union
// semantics in a single statement: already-present readers are not appended.
func (s *PostgresStore) AddGroupReader(ctx context.Context, id string, readerID uuid.UUID) (*models.GroupMessage, error) {
	member := marshalReaders([]uuid.UUID{readerID})
	msg, err := scanGroupMessage(s.pool.QueryRow(ctx, `
		UPDATE group_messages
		SET read_by = CASE WHEN read_by @> $2::jsonb THEN read_by ELSE read_by || $2::jsonb END
		WHERE id = $1
		RETURNING `+groupMessageColumns, id, member))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// AddGroupReaction appends a reaction to a group message, duplicates included.
func (s *PostgresStore) AddGroupReaction(ctx context.Context, id string, reaction models.Reaction) (*models.GroupMessage, error) {
	msg, err := scanGroupMessage(s.pool.QueryRow(ctx, `
		UPDATE group_messages SET reactions = reactions || $2::jsonb
		WHERE id = $1
		RETURNING `+groupMessageColumns, id, marshalReactions([]models.Reaction{reaction})))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListGroupMessages retrieves a group's messages, oldest first.
func (s *PostgresStore) ListGroupMessages(ctx context.Context, groupID uuid.UUID) ([]models.GroupMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+groupMessageColumns+` FROM group_messages
		WHERE group_id = $1
		ORDER BY created_at, seq
	`, groupID)
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
