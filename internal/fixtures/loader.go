package fixtures

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

// Loader upserts fixture rows, one scoped connection per call.
type Loader struct {
	open   database.Opener
	schema wpoptions.Schema
	log    logrus.FieldLogger
}

func NewLoader(open database.Opener, schema wpoptions.Schema, log logrus.FieldLogger) *Loader {
	return &Loader{open: open, schema: schema, log: log}
}

// Load writes every row of docs inside one transaction.
func (l *Loader) Load(ctx context.Context, docs ...*Document) error {
	return database.WithTx(ctx, l.open, func(ctx context.Context, tx *sqlx.Tx) error {
		store, err := wpoptions.NewStore(tx, l.schema)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := store.Upsert(ctx, doc.Options()...); err != nil {
				return fmt.Errorf("load fixture %s: %w", doc.Source, err)
			}
			l.log.WithField("fixture", doc.Source).WithField("rows", len(doc.Items)).Debug("fixture loaded")
		}
		return nil
	})
}

// LoadPath reads the fixtures at path (see Read) and loads them.
func (l *Loader) LoadPath(ctx context.Context, path string) ([]*Document, error) {
	docs, err := Read(path)
	if err != nil {
		return nil, err
	}
	return docs, l.Load(ctx, docs...)
}

// Cleaner deletes the managed option rows.
type Cleaner struct {
	open   database.Opener
	schema wpoptions.Schema
	keys   []string
	log    logrus.FieldLogger
}

func NewCleaner(open database.Opener, schema wpoptions.Schema, log logrus.FieldLogger) *Cleaner {
	return &Cleaner{open: open, schema: schema, keys: wpoptions.ManagedKeys(), log: log}
}

// Clean removes the rows and returns how many existed.
func (c *Cleaner) Clean(ctx context.Context) (int64, error) {
	var n int64
	err := database.WithConnection(ctx, c.open, func(ctx context.Context, db *sqlx.DB) error {
		store, err := wpoptions.NewStore(db, c.schema)
		if err != nil {
			return err
		}
		n, err = store.Delete(ctx, c.keys...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clean options: %w", err)
	}
	c.log.WithField("rows", n).Debug("options cleaned")
	return n, nil
}
