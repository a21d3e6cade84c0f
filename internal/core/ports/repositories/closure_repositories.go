package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// ClosureReader defines read operations for closure bulletins
type ClosureReader interface {
	ClosureExists(ctx context.Context, closureType domain.ClosureType, start, end time.Time) (bool, error)
	FindClosureByID(ctx context.Context, closureID string) (*domain.ClosureBulletin, error)
	// ListClosures returns the most recent bulletins first. An empty closureType matches all types.
	ListClosures(ctx context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error)
}

// ClosureWriter defines write operations for closure bulletins
type ClosureWriter interface {
	// InsertClosure persists a bulletin. A second bulletin for the same
	// (type, start, end) fails with apperrors.ErrDuplicate.
	InsertClosure(ctx context.Context, bulletin domain.ClosureBulletin) error
}

// ClosureRepositoryFacade combines all closure-related repository interfaces
type ClosureRepositoryFacade interface {
	ClosureReader
	ClosureWriter
}
