package repositories

import (
	"context"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// IntegrityExceptionRepository stores documented historical chain breaks.
type IntegrityExceptionRepository interface {
	ListIntegrityExceptions(ctx context.Context) ([]domain.IntegrityException, error)
	InsertIntegrityException(ctx context.Context, exception domain.IntegrityException) error
}
