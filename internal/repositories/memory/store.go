// Package memory provides an in-memory implementation of the fiscal storage
// ports, for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

type closureKey struct {
	closureType domain.ClosureType
	start       int64
	end         int64
}

func keyFor(closureType domain.ClosureType, start, end time.Time) closureKey {
	return closureKey{closureType: closureType, start: start.UnixMilli(), end: end.UnixMilli()}
}

// Store keeps the journal, closures, orders and integrity exceptions in memory.
type Store struct {
	appendMu sync.Mutex // held for the whole of an append

	mu          sync.RWMutex
	entries     []domain.JournalEntry // ordered by sequence
	closures    map[string]domain.ClosureBulletin
	closureKeys map[closureKey]string
	orders      map[int64]domain.Order
	exceptions  map[int64]domain.IntegrityException
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		closures:    make(map[string]domain.ClosureBulletin),
		closureKeys: make(map[closureKey]string),
		orders:      make(map[int64]domain.Order),
		exceptions:  make(map[int64]domain.IntegrityException),
	}
}

var (
	_ portsrepo.JournalRepositoryFacade      = (*Store)(nil)
	_ portsrepo.ClosureRepositoryFacade      = (*Store)(nil)
	_ portsrepo.OrderReader                  = (*Store)(nil)
	_ portsrepo.IntegrityExceptionRepository = (*Store)(nil)
)

// Provider exposes the store through every repository port.
func (s *Store) Provider() portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		JournalRepo:   s,
		ClosureRepo:   s,
		OrderRepo:     s,
		IntegrityRepo: s,
	}
}

// =============================================================================
// JOURNAL
// =============================================================================

// memTx stages inserts until the append function returns.
type memTx struct {
	store   *Store
	pending []domain.JournalEntry
}

func (t *memTx) SelectMaxSequence(_ context.Context) (int64, error) {
	if n := len(t.pending); n > 0 {
		return t.pending[n-1].SequenceNumber, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if n := len(t.store.entries); n > 0 {
		return t.store.entries[n-1].SequenceNumber, nil
	}
	return 0, nil
}

func (t *memTx) SelectTailEntry(_ context.Context) (*domain.JournalEntry, error) {
	if n := len(t.pending); n > 0 {
		e := t.pending[n-1]
		return &e, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if n := len(t.store.entries); n > 0 {
		e := t.store.entries[n-1]
		return &e, nil
	}
	return nil, nil
}

func (t *memTx) InsertEntry(ctx context.Context, entry domain.JournalEntry) error {
	maxSeq, _ := t.SelectMaxSequence(ctx)
	if entry.SequenceNumber <= maxSeq {
		return fmt.Errorf("journal entry %d: %w", entry.SequenceNumber, apperrors.ErrDuplicate)
	}
	t.pending = append(t.pending, entry)
	return nil
}

// WithAppendLock runs fn exclusively and commits its inserts if it succeeds.
func (s *Store) WithAppendLock(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = append(s.entries, tx.pending...)
	s.mu.Unlock()
	return nil
}

// SelectEntriesForPeriod returns entries whose timestamp lies in [start, end].
func (s *Store) SelectEntriesForPeriod(_ context.Context, start, end time.Time) ([]domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	period := domain.Period{Start: start, End: end}
	var out []domain.JournalEntry
	for _, e := range s.entries {
		if period.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// StreamEntries iterates a snapshot of the journal. Writers are not blocked
// while fn runs.
func (s *Store) StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error {
	s.mu.RLock()
	snapshot := s.entries[:len(s.entries):len(s.entries)]
	s.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// FindEntryBySequence retrieves a single entry.
func (s *Store) FindEntryBySequence(_ context.Context, sequence int64) (*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].SequenceNumber >= sequence
	})
	if i < len(s.entries) && s.entries[i].SequenceNumber == sequence {
		e := s.entries[i]
		return &e, nil
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("journal entry %d", sequence))
}

// ListEntries returns up to limit entries with a sequence greater than afterSequence.
func (s *Store) ListEntries(_ context.Context, afterSequence int64, limit int) ([]domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].SequenceNumber > afterSequence
	})
	end := len(s.entries)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	out := make([]domain.JournalEntry, end-i)
	copy(out, s.entries[i:end])
	return out, nil
}

// =============================================================================
// CLOSURES
// =============================================================================

// ClosureExists reports whether a bulletin seals (closureType, start, end).
func (s *Store) ClosureExists(_ context.Context, closureType domain.ClosureType, start, end time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.closureKeys[keyFor(closureType, start, end)]
	return ok, nil
}

// InsertClosure stores a bulletin, enforcing one bulletin per period.
func (s *Store) InsertClosure(_ context.Context, bulletin domain.ClosureBulletin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(bulletin.ClosureType, bulletin.PeriodStart, bulletin.PeriodEnd)
	if _, ok := s.closureKeys[k]; ok {
		return fmt.Errorf("closure %s: %w", bulletin.ClosureType, apperrors.ErrDuplicate)
	}
	if _, ok := s.closures[bulletin.ClosureID]; ok {
		return fmt.Errorf("closure %s: %w", bulletin.ClosureID, apperrors.ErrDuplicate)
	}
	s.closures[bulletin.ClosureID] = bulletin
	s.closureKeys[k] = bulletin.ClosureID
	return nil
}

// FindClosureByID retrieves a bulletin.
func (s *Store) FindClosureByID(_ context.Context, closureID string) (*domain.ClosureBulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.closures[closureID]
	if !ok {
		return nil, apperrors.NewNotFoundError("closure " + closureID)
	}
	return &b, nil
}

// ListClosures returns the most recent bulletins first.
func (s *Store) ListClosures(_ context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClosureBulletin, 0, len(s.closures))
	for _, b := range s.closures {
		if closureType == "" || b.ClosureType == closureType {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// ORDERS
// =============================================================================

// AddOrder seeds an order record, replacing any order with the same id.
func (s *Store) AddOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

// FindOrderByID retrieves an order.
func (s *Store) FindOrderByID(_ context.Context, orderID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d", orderID))
	}
	return &o, nil
}

// ListSettledOrders returns completed or paid orders created within [start, end], oldest first.
func (s *Store) ListSettledOrders(_ context.Context, start, end time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	period := domain.Period{Start: start, End: end}
	var out []domain.Order
	for _, o := range s.orders {
		if o.IsSettled() && period.Contains(o.CreatedAt) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// INTEGRITY EXCEPTIONS
// =============================================================================

// ListIntegrityExceptions returns exceptions ordered by sequence number.
func (s *Store) ListIntegrityExceptions(_ context.Context) ([]domain.IntegrityException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IntegrityException, 0, len(s.exceptions))
	for _, ex := range s.exceptions {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// InsertIntegrityException stores an exception, one per sequence number.
func (s *Store) InsertIntegrityException(_ context.Context, exception domain.IntegrityException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exceptions[exception.SequenceNumber]; ok {
		return fmt.Errorf("integrity exception %d: %w", exception.SequenceNumber, apperrors.ErrDuplicate)
	}
	s.exceptions[exception.SequenceNumber] = exception
	return nil
}
