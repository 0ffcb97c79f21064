// Package store persists the ledger in SQLite (default) or PostgreSQL through
// database/sql. Pipelines open one Store per invocation and commit per item.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/ledger"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every ledger statement. It runs either in autocommit mode
// (through Store) or inside a transaction (through Tx).
type Queries struct {
	db      dbtx
	dialect Dialect
}

type Store struct {
	*Queries
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		Queries: &Queries{db: db, dialect: dialect},
		db:      db,
		logger:  logger,
	}
}

// Open connects to the database selected by the settings.
func Open(ctx context.Context, settings *config.Settings, logger *zap.Logger) (*Store, error) {
	switch settings.DBDriver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, settings.DatabaseURL, logger)
	case config.DriverSQLite, "":
		return OpenSQLite(settings.DBPath, logger)
	default:
		return nil, errors.Newf("unsupported db driver: %s", settings.DBDriver)
	}
}

// OpenSQLite opens (and creates if needed) a SQLite database file.
func OpenSQLite(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", dir)
		}
	}

	logger.Debug("opening database", zap.String("driver", string(SQLite)), zap.String("path", path))

	// Pragmas go through the DSN so every pooled connection gets them.
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open sqlite database %s", path)
	}

	return New(db, SQLite, logger), nil
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("opening database", zap.String("driver", string(Postgres)))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres database")
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return New(db, Postgres, logger), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the underlying handle for maintenance queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx is a transaction opened by InTx.
type Tx struct {
	*Queries
	tx         *sql.Tx
	savepoints int
}

// InTx runs fn in a transaction, committing when it returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	tx := &Tx{Queries: &Queries{db: sqlTx, dialect: s.dialect}, tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.WithSecondaryError(err, errors.Wrap(rbErr, "rollback transaction"))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	return nil
}

// Savepoint runs fn inside a nested savepoint. When fn fails, only its writes
// are undone and the transaction stays usable; fn's error is returned as is.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	t.savepoints++
	name := "sp_" + strconv.Itoa(t.savepoints)

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "create savepoint %s", name)
	}

	fnErr := fn()
	if fnErr != nil {
		if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return errors.WithSecondaryError(errors.Wrapf(err, "rollback to savepoint %s", name), fnErr)
		}
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "release savepoint %s", name)
	}

	return fnErr
}

// IsUniqueViolation reports whether err comes from a unique constraint in either dialect.
func IsUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (q *Queries) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (q *Queries) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// updateOne fails unless exactly one row was affected.
func (q *Queries) updateOne(ctx context.Context, what string, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s", what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update %s", what)
	}
	if n != 1 {
		return errors.Newf("update %s: %d rows affected", what, n)
	}
	return nil
}

// storageErr tags database failures so pipelines record them as storage errors.
func storageErr(err error, msg string, args ...any) error {
	return ledger.WithKind(errors.Wrapf(err, msg, args...), ledger.KindStorage)
}

type scanner interface {
	Scan(dest ...any) error
}

