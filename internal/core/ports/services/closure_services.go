package services

import (
	"context"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// ClosureReaderSvc defines read operations for closure bulletins
type ClosureReaderSvc interface {
	GetClosure(ctx context.Context, closureID string) (*domain.ClosureBulletin, error)
	ListClosures(ctx context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error)
}

// ClosureWriterSvc seals fiscal periods
type ClosureWriterSvc interface {
	// CreateClosure aggregates the period of closureType containing referenceDate
	// and stores a sealed bulletin. A second call for the same period fails with
	// apperrors.ErrDuplicatePeriod.
	CreateClosure(ctx context.Context, closureType domain.ClosureType, referenceDate time.Time) (*domain.ClosureBulletin, error)
}

// ClosureSvcFacade combines all closure-related service interfaces
type ClosureSvcFacade interface {
	ClosureReaderSvc
	ClosureWriterSvc
}

// PeriodSvc computes closure period boundaries
type PeriodSvc interface {
	PeriodFor(closureType domain.ClosureType, referenceDate time.Time) (domain.Period, error)
}

// ClosureExporter renders bulletins for auditors
type ClosureExporter interface {
	ExportClosureXLSX(ctx context.Context, closureID string) ([]byte, error)
}
