package services

import (
	"context"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

// IntegritySvcFacade verifies the legal journal hash chain
type IntegritySvcFacade interface {
	// Verify replays the full chain. Violations are reported, never returned as errors.
	Verify(ctx context.Context) (*domain.IntegrityReport, error)

	// RegisterException documents a remediated historical chain break.
	RegisterException(ctx context.Context, req dto.RegisterExceptionRequest) (*domain.IntegrityException, error)
}
