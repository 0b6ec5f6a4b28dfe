package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Opener produces a fresh connection for a single scoped operation.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// MySQL returns an Opener for cfg.
func MySQL(cfg Config) Opener {
	return func(ctx context.Context) (*sqlx.DB, error) {
		return Open(ctx, cfg)
	}
}

// WithConnection opens a connection, runs fn and closes the connection on
// every exit path. A close failure is joined with fn's error.
func WithConnection(ctx context.Context, open Opener, fn func(ctx context.Context, db *sqlx.DB) error) (err error) {
	db, err := open(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", cerr))
		}
	}()
	return fn(ctx, db)
}

// WithTx runs fn inside a transaction on a scoped connection, committing
// when fn succeeds and rolling back otherwise.
func WithTx(ctx context.Context, open Opener, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return WithConnection(ctx, open, func(ctx context.Context, db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}
