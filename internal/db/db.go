package db

import (
	"context"
	"database/sql"
	"errors"

	"keycloak-bridge/internal/auth"

	"github.com/lib/pq"
)

// DB wraps the host database handle and implements the directory
// capabilities the resolver and handler need.
type DB struct {
	*sql.DB
}

func New(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB}
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// uniqueViolation maps Postgres unique constraint errors to auth.ErrValidation.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errors.Join(auth.ErrValidation, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}
