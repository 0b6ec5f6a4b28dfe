package wpoptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrOptionNotFound = errors.New("option not found")

// Option is one row of the options table.
type Option struct {
	ID       int64  `db:"option_id" json:"-"`
	Name     string `db:"option_name" json:"name"`
	Value    string `db:"option_value" json:"value"`
	Autoload string `db:"autoload" json:"autoload"`
}

// Store runs option queries on a connection or transaction.
type Store struct {
	db     sqlx.ExtContext
	schema Schema
}

func NewStore(db sqlx.ExtContext, schema Schema) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Store{db: db, schema: schema}, nil
}

func (s *Store) selectColumns() string {
	return fmt.Sprintf("%s AS option_id, %s AS option_name, %s AS option_value, %s AS autoload",
		s.schema.IDColumn, s.schema.NameColumn, s.schema.ValueColumn, s.schema.AutoloadColumn)
}

// Upsert inserts each option or, when its name exists, overwrites value and
// autoload. An empty Autoload is stored as "yes".
func (s *Store) Upsert(ctx context.Context, opts ...Option) error {
	query := s.db.Rebind(fmt.Sprintf(
		"INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE %[3]s = VALUES(%[3]s), %[4]s = VALUES(%[4]s)",
		s.schema.TableName(), s.schema.NameColumn, s.schema.ValueColumn, s.schema.AutoloadColumn))
	for _, o := range opts {
		autoload := o.Autoload
		if autoload == "" {
			autoload = "yes"
		}
		if _, err := s.db.ExecContext(ctx, query, o.Name, o.Value, autoload); err != nil {
			return fmt.Errorf("upsert %q: %w", o.Name, err)
		}
	}
	return nil
}

// Delete removes the named options and reports how many rows went away.
func (s *Store) Delete(ctx context.Context, names ...string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)",
		s.schema.TableName(), s.schema.NameColumn), names)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete options: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Get(ctx context.Context, name string) (Option, error) {
	var o Option
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		s.selectColumns(), s.schema.TableName(), s.schema.NameColumn))
	if err := sqlx.GetContext(ctx, s.db, &o, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Option{}, fmt.Errorf("%w: %q", ErrOptionNotFound, name)
		}
		return Option{}, fmt.Errorf("get option %q: %w", name, err)
	}
	return o, nil
}

// GetMany returns the existing options among names, keyed by name. Missing
// names are simply absent from the map.
func (s *Store) GetMany(ctx context.Context, names ...string) (map[string]Option, error) {
	out := make(map[string]Option, len(names))
	if len(names) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?) ORDER BY %s",
		s.selectColumns(), s.schema.TableName(), s.schema.NameColumn, s.schema.IDColumn), names)
	if err != nil {
		return nil, err
	}
	var rows []Option
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get options: %w", err)
	}
	for _, o := range rows {
		out[o.Name] = o
	}
	return out, nil
}

// Like lists options whose name matches a SQL LIKE pattern.
func (s *Store) Like(ctx context.Context, pattern string) ([]Option, error) {
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE ? ORDER BY %s",
		s.selectColumns(), s.schema.TableName(), s.schema.NameColumn, s.schema.NameColumn))
	var rows []Option
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, pattern); err != nil {
		return nil, fmt.Errorf("list options like %q: %w", pattern, err)
	}
	return rows, nil
}
