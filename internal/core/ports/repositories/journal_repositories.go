package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// LedgerTx is the view of the ledger available inside the exclusive append section.
type LedgerTx interface {
	// SelectMaxSequence returns the highest sequence number, or 0 when the ledger is empty.
	SelectMaxSequence(ctx context.Context) (int64, error)

	// SelectTailEntry returns the entry with the highest sequence number, or nil when empty.
	SelectTailEntry(ctx context.Context) (*domain.JournalEntry, error)

	// InsertEntry persists a fully built entry.
	InsertEntry(ctx context.Context, entry domain.JournalEntry) error
}

// JournalWriter defines write operations for the legal journal
type JournalWriter interface {
	// WithAppendLock runs fn while holding the ledger's single-writer lock.
	// Everything fn does through the LedgerTx commits atomically when fn returns nil
	// and is discarded otherwise. No two fn calls ever overlap.
	WithAppendLock(ctx context.Context, fn func(tx LedgerTx) error) error
}

// JournalReader defines read operations for the legal journal
type JournalReader interface {
	// SelectEntriesForPeriod returns entries whose timestamp lies in [start, end], ordered by sequence.
	SelectEntriesForPeriod(ctx context.Context, start, end time.Time) ([]domain.JournalEntry, error)

	// StreamEntries calls fn for every entry in ascending sequence order.
	// Iteration stops at the first error returned by fn.
	StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error

	// FindEntryBySequence retrieves a single entry.
	FindEntryBySequence(ctx context.Context, sequence int64) (*domain.JournalEntry, error)

	// ListEntries returns up to limit entries with a sequence greater than afterSequence.
	ListEntries(ctx context.Context, afterSequence int64, limit int) ([]domain.JournalEntry, error)
}

// JournalRepositoryFacade combines all journal-related repository interfaces
type JournalRepositoryFacade interface {
	JournalReader
	JournalWriter
}
