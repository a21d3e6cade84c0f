package services

import (
	"context"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

// JournalReaderSvc defines read operations for the legal journal
type JournalReaderSvc interface {
	// GetEntry retrieves a single entry by sequence number.
	GetEntry(ctx context.Context, sequence int64) (*domain.JournalEntry, error)

	// ListEntries retrieves entries after the given sequence number, in order.
	ListEntries(ctx context.Context, params dto.ListEntriesParams) ([]domain.JournalEntry, error)
}

// JournalWriterSvc defines append operations for the legal journal
type JournalWriterSvc interface {
	// Append chains a new entry onto the ledger.
	Append(ctx context.Context, req dto.AppendEntryRequest) (*domain.JournalEntry, error)

	// LogSale journals a sale using the order snapshot as payload.
	LogSale(ctx context.Context, orderID int64, userID *string) (*domain.JournalEntry, error)

	// LogRefund journals a refund with negated amounts.
	LogRefund(ctx context.Context, req dto.LogRefundRequest, userID *string) (*domain.JournalEntry, error)

	// LogCorrection journals a correction without an order reference.
	LogCorrection(ctx context.Context, req dto.LogCorrectionRequest, userID *string) (*domain.JournalEntry, error)

	// LogClosure mirrors a sealed closure bulletin into the ledger.
	LogClosure(ctx context.Context, bulletin domain.ClosureBulletin) (*domain.JournalEntry, error)

	// LogArchive journals a zero-amount archive marker.
	LogArchive(ctx context.Context, req dto.LogArchiveRequest, userID *string) (*domain.JournalEntry, error)
}

// JournalSvcFacade combines all journal-related service interfaces
// This is a facade for clients that need access to all operations
type JournalSvcFacade interface {
	JournalReaderSvc
	JournalWriterSvc
}
