package store

import (
	"context"
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migrate applies pending migrations for the store's dialect. Each file runs
// in its own transaction together with its schema_migrations record.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, createSchemaMigrations); err != nil {
		return 0, errors.Wrap(err, "create schema_migrations")
	}

	dir := path.Join("migrations", string(s.dialect))
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		var exists bool
		err := s.queryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			return applied, errors.Wrapf(err, "check migration %s", filename)
		}
		if exists {
			s.logger.Debug("skipping migration", zap.String("migration", filename))
			continue
		}

		body, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return applied, errors.Wrapf(err, "read %s", filename)
		}

		s.logger.Info("applying migration", zap.String("migration", filename), zap.String("dialect", string(s.dialect)))

		err = s.InTx(ctx, func(tx *Tx) error {
			if _, err := tx.tx.ExecContext(ctx, string(body)); err != nil {
				return errors.Wrapf(err, "execute %s", filename)
			}
			if _, err := tx.exec(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
				return errors.Wrapf(err, "record %s", filename)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}
