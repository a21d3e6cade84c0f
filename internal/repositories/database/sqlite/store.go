// Package sqlite implements the fiscal storage ports on an embedded SQLite
// database (modernc.org/sqlite, no cgo) for single-register deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

// Store is a SQLite-backed implementation of every repository port.
type Store struct {
	db *sql.DB

	// appendMu serialises appends inside this process; BEGIN IMMEDIATE
	// serialises them across processes sharing the file.
	appendMu sync.Mutex
}

// DSN builds the connection string for path: immediate transactions,
// WAL journaling and a busy timeout.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_txlock", "immediate")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	s := NewWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle. The schema is not applied.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates any missing table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Provider exposes the store through every repository port.
func (s *Store) Provider() portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		JournalRepo:   s,
		ClosureRepo:   s,
		OrderRepo:     s,
		IntegrityRepo: s,
	}
}

var (
	_ portsrepo.JournalRepositoryFacade      = (*Store)(nil)
	_ portsrepo.ClosureRepositoryFacade      = (*Store)(nil)
	_ portsrepo.OrderReader                  = (*Store)(nil)
	_ portsrepo.IntegrityExceptionRepository = (*Store)(nil)
)

// isUniqueViolation reports whether err is a SQLite uniqueness conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// mapWriteError translates uniqueness conflicts to apperrors.ErrDuplicate.
func mapWriteError(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrDuplicate)
	}
	return apperrors.NewAppError(500, "failed to write "+what, err)
}

func formatTime(t time.Time) string {
	return domain.FormatTimestamp(t)
}

// parseTime reads a stored timestamp. Rows not written in the canonical
// millisecond layout are still read as RFC 3339 so the verifier can flag them.
func parseTime(s string) (time.Time, error) {
	t, err := domain.ParseTimestamp(s)
	if err == nil {
		return t, nil
	}
	t, lenientErr := time.Parse(time.RFC3339Nano, s)
	if lenientErr != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
