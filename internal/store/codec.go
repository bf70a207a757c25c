package store

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// row is the scan surface shared by pgx rows and database/sql rows, so both
// backends can use the same scan helpers.
type row interface {
	Scan(dest ...any) error
}

func scanUser(r row) (*models.User, error) {
	u := &models.User{}
	var lastSeen sql.NullTime
	if err := r.Scan(&u.ID, &u.Username, &u.Email, &u.IsOnline, &lastSeen, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	return u, nil
}

func scanConversation(r row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var pa, pb models.UserRef
	err := r.Scan(
		&conv.ID, &conv.Type, &conv.CreatedAt,
		&pa.ID, &pa.Username, &pa.Email, &pa.IsOnline,
		&pb.ID, &pb.Username, &pb.Email, &pb.IsOnline,
	)
	if err != nil {
		return nil, err
	}
	conv.Participants = []models.UserRef{pa, pb}
	return conv, nil
}

func scanMessage(r row) (*models.Message, error) {
	m := &models.Message{}
	var readAt sql.NullTime
	var attachments, reactions []byte
	if err := r.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.Read, &readAt, &attachments, &reactions, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	m.Attachments = unmarshalAttachments(attachments)
	m.Reactions = unmarshalReactions(reactions)
	return m, nil
}

func scanGroupMessage(r row) (*models.GroupMessage, error) {
	m := &models.GroupMessage{}
	var readBy, reactions []byte
	if err := r.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Content, &readBy, &reactions, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ReadBy = unmarshalReaders(readBy)
	m.Reactions = unmarshalReactions(reactions)
	return m, nil
}

// NewMessageID returns a fresh ULID. ULIDs sort lexicographically in
// creation order, which is what keeps per-conversation ordering stable.
func NewMessageID() string {
	return ulid.Make().String()
}

func marshalReactions(reactions []models.Reaction) []byte {
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	data, _ := json.Marshal(reactions)
	return data
}

func unmarshalReactions(data []byte) []models.Reaction {
	if len(data) == 0 {
		return nil
	}
	var reactions []models.Reaction
	if err := json.Unmarshal(data, &reactions); err != nil {
		return nil
	}
	if len(reactions) == 0 {
		return nil
	}
	return reactions
}

func marshalAttachments(attachments []models.Attachment) []byte {
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	data, _ := json.Marshal(attachments)
	return data
}

func unmarshalAttachments(data []byte) []models.Attachment {
	if len(data) == 0 {
		return nil
	}
	var attachments []models.Attachment
	if err := json.Unmarshal(data, &attachments); err != nil {
		return nil
	}
	if len(attachments) == 0 {
		return nil
	}
	return attachments
}

func marshalReaders(readers []uuid.UUID) []byte {
	if readers == nil {
		readers = []uuid.UUID{}
	}
	data, _ := json.Marshal(readers)
	return data
}

func unmarshalReaders(data []byte) []uuid.UUID {
	if len(data) == 0 {
		return nil
	}
	var readers []uuid.UUID
	if err := json.Unmarshal(data, &readers); err != nil {
		return nil
	}
	return readers
}
