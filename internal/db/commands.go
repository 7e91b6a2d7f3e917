package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/auth/credentials"
)

// EditUser updates non-empty attributes of a user and replaces its group
// memberships, in one transaction.
func (d *DB) EditUser(ctx context.Context, cmd auth.EditUserCommand) (*auth.User, error) {
	if cmd.Actor == nil {
		return nil, &auth.CommandError{Command: "edit_user", Err: auth.ErrPermissionDenied}
	}

	var updated *auth.User

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		a := cmd.Attributes

		u, err := scanUser(tx.QueryRowContext(ctx, `
			UPDATE users u SET
				username = COALESCE(NULLIF($2, ''), u.username),
				email = COALESCE(NULLIF($3, ''), u.email),
				is_email_confirmed = CASE WHEN $3 = '' THEN u.is_email_confirmed ELSE $4 END,
				avatar_url = COALESCE(NULLIF($5, ''), u.avatar_url),
				updated_at = NOW()
			WHERE u.id = $1
			RETURNING `+userColumns+`
		`, cmd.UserID, a.Username, a.Email, a.IsEmailConfirmed, a.AvatarURL))
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		if err != nil {
			return uniqueViolation(err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM group_user
			WHERE user_id = $1
		`, cmd.UserID); err != nil {
			return err
		}

		for _, g := range cmd.Groups {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO group_user (user_id, group_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, cmd.UserID, g.ID); err != nil {
				return err
			}
		}

		updated = u
		return nil
	})
	if err != nil {
		return nil, &auth.CommandError{Command: "edit_user", Err: err}
	}

	return updated, nil
}

// RegisterUser creates a user. A token fulfils the matching pending
// registration: its login provider is linked and the token consumed.
// Groups are not applied.
func (d *DB) RegisterUser(ctx context.Context, cmd auth.RegisterUserCommand) (*auth.User, error) {
	a := cmd.Attributes
	if a.Username == "" || a.Email == "" {
		return nil, &auth.CommandError{
			Command: "register_user",
			Err:     fmt.Errorf("username and email required: %w", auth.ErrValidation),
		}
	}

	var hash string
	var err error
	if a.Password != "" {
		hash, err = credentials.HashPassword(a.Password)
	} else {
		hash, err = credentials.RandomPasswordHash()
	}
	if err != nil {
		return nil, &auth.CommandError{Command: "register_user", Err: err}
	}

	var created *auth.User

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var provider, identifier string
		if a.Token != "" {
			err := tx.QueryRowContext(ctx, `
				SELECT provider, identifier
				FROM registration_tokens
				WHERE token = $1
				FOR UPDATE
			`, a.Token).Scan(&provider, &identifier)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("registration token: %w", auth.ErrNotFound)
			}
			if err != nil {
				return err
			}
		}

		u, err := scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO users AS u (username, email, is_email_confirmed, avatar_url, password_hash)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+userColumns+`
		`, a.Username, a.Email, a.IsEmailConfirmed, a.AvatarURL, hash))
		if err != nil {
			return uniqueViolation(err)
		}

		if a.Token != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO login_providers (user_id, provider, identifier)
				VALUES ($1, $2, $3)
			`, u.ID, provider, identifier); err != nil {
				return uniqueViolation(err)
			}

			if _, err := tx.ExecContext(ctx, `
				DELETE FROM registration_tokens
				WHERE token = $1
			`, a.Token); err != nil {
				return err
			}
		}

		created = u
		return nil
	})
	if err != nil {
		return nil, &auth.CommandError{Command: "register_user", Err: err}
	}

	return created, nil
}
