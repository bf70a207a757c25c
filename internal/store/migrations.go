package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// schema is the full PostgreSQL schema. Statements are idempotent so the
// migration can run on every startup.
const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username TEXT UNIQUE NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	is_online BOOLEAN NOT NULL DEFAULT FALSE,
	last_seen TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	type TEXT NOT NULL DEFAULT 'direct',
	user_a UUID NOT NULL REFERENCES users(id),
	user_b UUID NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
	ON conversations (least(user_a, user_b), greatest(user_a, user_b))
	WHERE type = 'direct';

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	sender_id UUID NOT NULL REFERENCES users(id),
	receiver_id UUID NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	read BOOLEAN NOT NULL DEFAULT FALSE,
	read_at TIMESTAMPTZ,
	attachments JSONB NOT NULL DEFAULT '[]',
	reactions JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (receiver_id) WHERE NOT read;

CREATE TABLE IF NOT EXISTS groups (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	created_by UUID NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	user_id UUID NOT NULL REFERENCES users(id),
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS group_messages (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	group_id UUID NOT NULL REFERENCES groups(id),
	sender_id UUID NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	read_by JSONB NOT NULL DEFAULT '[]',
	reactions JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages (group_id, created_at);
`

// RunMigrations applies the schema to the target database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
