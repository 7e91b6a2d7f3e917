package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"keycloak-bridge/internal/auth"

	"github.com/google/uuid"
)

const userColumns = `u.id, u.username, u.email, u.is_email_confirmed, u.avatar_url, u.created_at`

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		id uuid.UUID
		u  auth.User
	)
	if err := row.Scan(&id, &u.Username, &u.Email, &u.IsEmailConfirmed, &u.AvatarURL, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.String()
	return &u, nil
}

// optionalUser turns sql.ErrNoRows into nil, nil.
func optionalUser(u *auth.User, err error) (*auth.User, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ---- groups ----

func (d *DB) FindByName(ctx context.Context, name string) (*auth.Group, error) {
	var g auth.Group
	err := d.QueryRowContext(ctx, `
		SELECT id, name FROM groups
		WHERE name = $1
	`, name).Scan(&g.ID, &g.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *DB) FindOrFail(ctx context.Context, id int64) (*auth.Group, error) {
	var g auth.Group
	err := d.QueryRowContext(ctx, `
		SELECT id, name FROM groups
		WHERE id = $1
	`, id).Scan(&g.ID, &g.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *DB) ListUsers(ctx context.Context, groupID int64) ([]auth.User, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN group_user gu ON gu.user_id = u.id
		WHERE gu.group_id = $1
		ORDER BY u.created_at, u.id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}

	return users, rows.Err()
}

// ---- users ----

func (d *DB) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	return optionalUser(scanUser(d.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.id = $1
	`, id)))
}

func (d *DB) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return optionalUser(scanUser(d.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE LOWER(u.email) = LOWER($1)
	`, email)))
}

func (d *DB) FindByLoginProvider(ctx context.Context, provider, identifier string) (*auth.User, error) {
	return optionalUser(scanUser(d.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN login_providers lp ON lp.user_id = u.id
		WHERE lp.provider = $1
		  AND lp.identifier = $2
	`, provider, identifier)))
}

// ---- login providers ----

// LinkLoginProvider links (provider, identifier) to userID. Relinking the
// same user only refreshes last_login_at; an identifier owned by another
// user is a validation error.
func (d *DB) LinkLoginProvider(ctx context.Context, userID, provider, identifier string) error {
	var owner uuid.UUID
	err := d.QueryRowContext(ctx, `
		INSERT INTO login_providers (user_id, provider, identifier, last_login_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider, identifier) DO UPDATE
		SET last_login_at = NOW()
		WHERE login_providers.user_id = EXCLUDED.user_id
		RETURNING user_id
	`, userID, provider, identifier).Scan(&owner)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("login provider %s already linked: %w", provider, auth.ErrValidation)
	}
	return err
}

func (d *DB) RemoveLoginProviders(ctx context.Context, userID, provider string) error {
	_, err := d.ExecContext(ctx, `
		DELETE FROM login_providers
		WHERE user_id = $1
		  AND provider = $2
	`, userID, provider)
	return err
}

// ---- pending registrations ----

func (d *DB) SavePendingRegistration(ctx context.Context, p auth.PendingRegistration) error {
	provided, err := json.Marshal(p.Provided)
	if err != nil {
		return fmt.Errorf("registration: failed to marshal attributes: %w", err)
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("registration: failed to marshal payload: %w", err)
	}

	_, err = d.ExecContext(ctx, `
		INSERT INTO registration_tokens (token, provider, identifier, user_attributes, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.Token, p.Provider, p.Identifier, string(provided), string(payload), p.CreatedAt)
	return err
}

// ---- settings ----

// SettingsStore reads the host settings table.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings
		WHERE key = $1
	`, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
