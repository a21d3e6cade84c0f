package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

// ledgerLockKey identifies the legal journal's transaction-scoped advisory lock.
const ledgerLockKey int64 = 0x4c4a524e4c // "LJRNL"

const entryColumns = `sequence_number, transaction_type, order_id, amount, vat_amount, payment_method,
	transaction_data, previous_hash, current_hash, "timestamp", user_id, register_id, created_at`

type PgxJournalRepository struct {
	BaseRepository
}

// newPgxJournalRepository creates a new repository for the legal journal.
func newPgxJournalRepository(pool *pgxpool.Pool) *PgxJournalRepository {
	return &PgxJournalRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.JournalRepositoryFacade = (*PgxJournalRepository)(nil)

func scanEntry(row pgx.Row) (domain.JournalEntry, error) {
	var (
		e      domain.JournalEntry
		txType string
		data   []byte
	)
	if err := row.Scan(&e.SequenceNumber, &txType, &e.OrderID, &e.Amount, &e.VATAmount, &e.PaymentMethod,
		&data, &e.PreviousHash, &e.CurrentHash, &e.Timestamp, &e.UserID, &e.RegisterID, &e.CreatedAt); err != nil {
		return domain.JournalEntry{}, err
	}
	e.TransactionType = domain.TransactionType(txType)
	e.TransactionData = data
	e.Timestamp = e.Timestamp.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// pgLedgerTx runs the append-section queries inside the locked transaction.
type pgLedgerTx struct {
	q querier
}

func (t *pgLedgerTx) SelectMaxSequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	if err := t.q.QueryRow(ctx, `SELECT COALESCE(MAX(sequence_number), 0) FROM journal_entries`).Scan(&maxSeq); err != nil {
		return 0, apperrors.NewAppError(500, "failed to read max sequence", err)
	}
	return maxSeq, nil
}

func (t *pgLedgerTx) SelectTailEntry(ctx context.Context) (*domain.JournalEntry, error) {
	e, err := scanEntry(t.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY sequence_number DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewAppError(500, "failed to read tail entry", err)
	}
	return &e, nil
}

func (t *pgLedgerTx) InsertEntry(ctx context.Context, e domain.JournalEntry) error {
	data := e.TransactionData
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO journal_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.SequenceNumber, string(e.TransactionType), e.OrderID,
		e.Amount.StringFixed(2), e.VATAmount.StringFixed(2), e.PaymentMethod,
		string(data), e.PreviousHash, e.CurrentHash, e.Timestamp, e.UserID, e.RegisterID, e.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("journal entry %d", e.SequenceNumber))
	}
	return nil
}

// WithAppendLock runs fn in a transaction holding pg_advisory_xact_lock on the
// ledger key. The lock is released by commit or rollback.
func (r *PgxJournalRepository) WithAppendLock(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx) // Ignored once committed

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return apperrors.NewAppError(500, "failed to acquire ledger lock", err)
	}
	if err := fn(&pgLedgerTx{q: tx}); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

// SelectEntriesForPeriod returns entries whose timestamp lies in [start, end].
func (r *PgxJournalRepository) SelectEntriesForPeriod(ctx context.Context, start, end time.Time) ([]domain.JournalEntry, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE "timestamp" >= $1 AND "timestamp" <= $2 ORDER BY sequence_number`, start, end)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query journal entries for period", err)
	}
	return collectEntries(rows)
}

// StreamEntries calls fn for every entry in ascending sequence order without
// loading the table into memory.
func (r *PgxJournalRepository) StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error {
	rows, err := r.Pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY sequence_number`)
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
func (r *PgxJournalRepository) FindEntryBySequence(ctx context.Context, sequence int64) (*domain.JournalEntry, error) {
	e, err := scanEntry(r.Pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE sequence_number = $1`, sequence))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("journal entry %d", sequence))
		}
		return nil, apperrors.NewAppError(500, "failed to fetch journal entry", err)
	}
	return &e, nil
}

// ListEntries returns up to limit entries with a sequence greater than afterSequence.
func (r *PgxJournalRepository) ListEntries(ctx context.Context, afterSequence int64, limit int) ([]domain.JournalEntry, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE sequence_number > $1 ORDER BY sequence_number LIMIT $2`, afterSequence, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list journal entries", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()
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
