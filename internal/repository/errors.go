package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row addressed by key does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when inserting an entity whose key is taken.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrDuplicateAssociation is returned when a membership row already exists.
	ErrDuplicateAssociation = errors.New("duplicate association")
	// ErrSnapshotUnsupported is returned by Snapshot on a Postgres database.
	ErrSnapshotUnsupported = errors.New("snapshots are only supported for sqlite")
)

const pgUniqueViolation = "23505"

// isUniqueViolation recognizes primary key and unique constraint failures
// from both drivers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
