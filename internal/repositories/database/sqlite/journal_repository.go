package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

const entryColumns = `sequence_number, transaction_type, order_id, amount, vat_amount, payment_method,
	transaction_data, previous_hash, current_hash, timestamp, user_id, register_id, created_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.JournalEntry, error) {
	var (
		e                         domain.JournalEntry
		txType, amount, vat, data string
		ts, createdAt             string
		orderID                   sql.NullInt64
		userID                    sql.NullString
	)
	if err := row.Scan(&e.SequenceNumber, &txType, &orderID, &amount, &vat, &e.PaymentMethod,
		&data, &e.PreviousHash, &e.CurrentHash, &ts, &userID, &e.RegisterID, &createdAt); err != nil {
		return domain.JournalEntry{}, err
	}
	e.TransactionType = domain.TransactionType(txType)
	if orderID.Valid {
		id := orderID.Int64
		e.OrderID = &id
	}
	if userID.Valid {
		u := userID.String
		e.UserID = &u
	}
	e.TransactionData = []byte(data)

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("entry %d amount: %w", e.SequenceNumber, err)
	}
	if e.VATAmount, err = decimal.NewFromString(vat); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("entry %d vat_amount: %w", e.SequenceNumber, err)
	}
	if e.Timestamp, err = parseTime(ts); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("entry %d timestamp: %w", e.SequenceNumber, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("entry %d created_at: %w", e.SequenceNumber, err)
	}
	return e, nil
}

// ledgerTx is the append-section view of the journal.
type ledgerTx struct {
	q queryer
}

func (t *ledgerTx) SelectMaxSequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	if err := t.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_number), 0) FROM journal_entries`).Scan(&maxSeq); err != nil {
		return 0, apperrors.NewAppError(500, "failed to read max sequence", err)
	}
	return maxSeq, nil
}

func (t *ledgerTx) SelectTailEntry(ctx context.Context) (*domain.JournalEntry, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY sequence_number DESC LIMIT 1`)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewAppError(500, "failed to read tail entry", err)
	}
	return &e, nil
}

func (t *ledgerTx) InsertEntry(ctx context.Context, e domain.JournalEntry) error {
	var orderID sql.NullInt64
	if e.OrderID != nil {
		orderID = sql.NullInt64{Int64: *e.OrderID, Valid: true}
	}
	var userID sql.NullString
	if e.UserID != nil {
		userID = sql.NullString{String: *e.UserID, Valid: true}
	}
	data := string(e.TransactionData)
	if data == "" {
		data = "{}"
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SequenceNumber, string(e.TransactionType), orderID,
		domain.FormatAmount(e.Amount), domain.FormatAmount(e.VATAmount), e.PaymentMethod,
		data, e.PreviousHash, e.CurrentHash, formatTime(e.Timestamp), userID, e.RegisterID, formatTime(e.CreatedAt))
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("journal entry %d", e.SequenceNumber))
	}
	return nil
}

// WithAppendLock runs fn inside a BEGIN IMMEDIATE transaction while holding
// the in-process append mutex.
func (s *Store) WithAppendLock(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) (err error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewAppError(500, "failed to begin append transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&ledgerTx{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperrors.NewAppError(500, "failed to commit append transaction", err)
	}
	return nil
}

// SelectEntriesForPeriod returns entries whose timestamp lies in [start, end].
func (s *Store) SelectEntriesForPeriod(ctx context.Context, start, end time.Time) ([]domain.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE timestamp >= ? AND timestamp <= ? ORDER BY sequence_number`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query journal entries for period", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// StreamEntries calls fn for every entry in ascending sequence order.
func (s *Store) StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY sequence_number`)
	if err != nil {
		return apperrors.NewAppError(500, "failed to stream journal entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return apperrors.NewAppError(500, "failed to scan journal entry", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewAppError(500, "failed to stream journal entries", err)
	}
	return nil
}

// FindEntryBySequence retrieves a single entry.
func (s *Store) FindEntryBySequence(ctx context.Context, sequence int64) (*domain.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE sequence_number = ?`, sequence)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("journal entry %d", sequence))
		}
		return nil, apperrors.NewAppError(500, "failed to fetch journal entry", err)
	}
	return &e, nil
}

// ListEntries returns up to limit entries with a sequence greater than afterSequence.
func (s *Store) ListEntries(ctx context.Context, afterSequence int64, limit int) ([]domain.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE sequence_number > ? ORDER BY sequence_number LIMIT ?`, afterSequence, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list journal entries", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan journal entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to read journal entries", err)
	}
	return out, nil
}
