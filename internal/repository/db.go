package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour spoken by the underlying driver.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB wraps the database connection
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using a driver name from configuration ("sqlite" or "postgres").
func Open(driver, dsn string) (*DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return NewSQLiteDB(dsn)
	case "postgres", "postgresql", "pgx":
		return NewPostgresDB(dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// NewSQLiteDB creates a new SQLite database connection with connection pool settings
func NewSQLiteDB(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers; a small pool keeps lock contention short.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{db: db, dialect: DialectSQLite}, nil
}

// NewPostgresDB opens a Postgres connection through the pgx database/sql driver.
func NewPostgresDB(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{db: db, dialect: DialectPostgres}, nil
}

// Dialect reports the SQL flavour of the connection.
func (s *DB) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is usable.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot writes a consistent copy of a SQLite database to path.
func (s *DB) Snapshot(ctx context.Context, path string) error {
	if s.dialect != DialectSQLite {
		return ErrSnapshotUnsupported
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

func (s *DB) conn() conn {
	return conn{q: s.db, dialect: s.dialect}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn routes queries written with ? placeholders to either a pool or a
// transaction, rewriting placeholders for Postgres.
type conn struct {
	q       queryer
	dialect Dialect
}

func (c conn) withTx(tx *sql.Tx) conn {
	return conn{q: tx, dialect: c.dialect}
}

func (c conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

func (c conn) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := c.QueryRow(ctx, "SELECT EXISTS ("+query+")", args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// rebind rewrites ? placeholders as $1..$n. Queries in this package never
// contain literal question marks.
func (c conn) rebind(query string) string {
	if c.dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
