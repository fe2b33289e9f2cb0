// Package sqlstore keeps metadata documents in a single SQL table. It
// supports SQLite (default for local installs), PostgreSQL and MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect accepts the driver names users tend to type.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", s)
	}
}

func (d Dialect) driverName() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case Postgres:
		return "postgres"
	default:
		return "mysql"
	}
}

func (d Dialect) schema() string {
	if d == MySQL {
		return `CREATE TABLE IF NOT EXISTS documents (
	collection VARCHAR(512) NOT NULL,
	id VARCHAR(255) NOT NULL,
	data LONGTEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
) CHARACTER SET utf8mb4`
	}
	return `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
)`
}

func (d Dialect) upsert() string {
	if d == MySQL {
		return `INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE data = VALUES(data)`
	}
	return d.rebind(`INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`)
}

func (d Dialect) selectForUpdate() string {
	q := `SELECT data FROM documents WHERE collection = ? AND id = ?`
	if d != SQLite {
		q += ` FOR UPDATE`
	}
	return d.rebind(q)
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Options configures Open.
type Options struct {
	Dialect        Dialect
	DSN            string
	MaxOpenConns   int
	ConnectTimeout time.Duration
	Logger         *logging.Logger
}

// Store is a metadata.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects, waits for the server with backoff and creates the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	dsn := opts.DSN
	if opts.Dialect == SQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(opts.Dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", opts.Dialect, err)
	}

	switch {
	case opts.Dialect == SQLite:
		// One writer at a time; avoids SQLITE_BUSY under concurrent tasks.
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := metadata.ConnectWithRetry(ctx, opts.Logger, string(opts.Dialect), opts.ConnectTimeout, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", opts.Dialect, err)
	}

	if _, err := db.ExecContext(ctx, opts.Dialect.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	opts.Logger.Debug().Str("dialect", string(opts.Dialect)).Msg("Metadata store connected")
	return &Store{db: db, dialect: opts.Dialect}, nil
}

func (s *Store) Get(ctx context.Context, ref metadata.DocumentRef) (metadata.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT data FROM documents WHERE collection = ? AND id = ?`),
		string(ref.Collection), ref.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return metadata.DecodeJSON([]byte(raw))
}

func (s *Store) Set(ctx context.Context, ref metadata.DocumentRef, doc metadata.Document) error {
	data, err := metadata.EncodeJSON(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsert(),
		string(ref.Collection), ref.ID, string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ref metadata.DocumentRef, fields metadata.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, s.dialect.selectForUpdate(), string(ref.Collection), ref.ID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ref, err)
	}

	doc, err := metadata.DecodeJSON([]byte(raw))
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := metadata.EncodeJSON(doc)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		s.dialect.rebind(`UPDATE documents SET data = ? WHERE collection = ? AND id = ?`),
		string(data), string(ref.Collection), ref.ID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", ref, err)
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, ref metadata.DocumentRef) error {
	_, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`),
		string(ref.Collection), ref.ID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// Stream returns documents in creation order.
func (s *Store) Stream(ctx context.Context, col metadata.CollectionRef) ([]metadata.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT id, data FROM documents WHERE collection = ? ORDER BY created_at, id`),
		string(col))
	if err != nil {
		return nil, fmt.Errorf("failed to stream %s: %w", col, err)
	}
	defer rows.Close()

	var out []metadata.Snapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", col, err)
		}
		doc, err := metadata.DecodeJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", col, id, err)
		}
		out = append(out, metadata.Snapshot{ID: id, Data: doc})
	}
	return out, rows.Err()
}

func (s *Store) Exists(ctx context.Context, ref metadata.DocumentRef) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT 1 FROM documents WHERE collection = ? AND id = ?`),
		string(ref.Collection), ref.ID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", ref, err)
	}
	return true, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
