package db

import (
	"context"
	"database/sql"
)

const schemaMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    username text NOT NULL,
    email text NOT NULL,
    is_email_confirmed boolean NOT NULL DEFAULT false,
    avatar_url text NOT NULL DEFAULT '',
    password_hash text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_unique
ON users (LOWER(email));

CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_unique
ON users (LOWER(username));

CREATE TABLE IF NOT EXISTS groups (
    id bigserial PRIMARY KEY,
    name text NOT NULL UNIQUE
);

INSERT INTO groups (id, name) VALUES (1, 'Admin')
ON CONFLICT (id) DO NOTHING;

SELECT setval(pg_get_serial_sequence('groups', 'id'), GREATEST((SELECT MAX(id) FROM groups), 1));

CREATE TABLE IF NOT EXISTS group_user (
    user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    group_id bigint NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, group_id)
);

CREATE TABLE IF NOT EXISTS login_providers (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider text NOT NULL,
    identifier text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    last_login_at timestamptz,
    CONSTRAINT login_providers_unique
        UNIQUE (provider, identifier)
);

CREATE INDEX IF NOT EXISTS login_providers_user_id_idx
ON login_providers (user_id);

CREATE TABLE IF NOT EXISTS registration_tokens (
    token text PRIMARY KEY,
    provider text NOT NULL,
    identifier text NOT NULL,
    user_attributes jsonb NOT NULL DEFAULT '{}',
    payload jsonb NOT NULL DEFAULT '{}',
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settings (
    key text PRIMARY KEY,
    value text NOT NULL DEFAULT ''
);
`

func RunMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaMigration)
	return err
}
