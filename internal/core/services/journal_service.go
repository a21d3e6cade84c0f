package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

// ErrLedgerTailMissing is returned when the ledger reports a max sequence but no tail entry.
var ErrLedgerTailMissing = errors.New("ledger tail entry missing")

// journalService appends to and reads the legal journal.
type journalService struct {
	BaseService
	journalRepo portsrepo.JournalRepositoryFacade
	orderRepo   portsrepo.OrderReader
	registerID  string
	metrics     *Metrics
}

// JournalServiceOption is a functional option for configuring the journal service
type JournalServiceOption func(*journalService)

// WithJournalClock overrides the clock used for entry timestamps.
func WithJournalClock(now Clock) JournalServiceOption {
	return func(s *journalService) {
		s.now = now
	}
}

// WithJournalMetrics sets the counters the service reports to.
func WithJournalMetrics(m *Metrics) JournalServiceOption {
	return func(s *journalService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewJournalService creates a new JournalService for the given register.
func NewJournalService(journalRepo portsrepo.JournalRepositoryFacade, orderRepo portsrepo.OrderReader, registerID string, options ...JournalServiceOption) portssvc.JournalSvcFacade {
	svc := &journalService{
		journalRepo: journalRepo,
		orderRepo:   orderRepo,
		registerID:  registerID,
	}
	for _, option := range options {
		option(svc)
	}
	if svc.metrics == nil {
		svc.metrics = defaultMetrics()
	}
	return svc
}

// Ensure journalService implements the portssvc.JournalSvcFacade interface
var _ portssvc.JournalSvcFacade = (*journalService)(nil)

// Append chains a new entry onto the ledger. The max-sequence read, tail read
// and insert all happen under the store's append lock, so concurrent callers
// always observe each other's entries. Refund amounts are always stored negative.
func (s *journalService) Append(ctx context.Context, req dto.AppendEntryRequest) (*domain.JournalEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	payload, err := canonicalPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewValidationError("transaction payload: %v", err)
	}

	amount, vat := req.Amount, req.VATAmount
	if req.TransactionType == domain.TransactionRefund {
		amount, vat = amount.Abs().Neg(), vat.Abs().Neg()
	}

	var entry domain.JournalEntry
	err = s.journalRepo.WithAppendLock(ctx, func(tx portsrepo.LedgerTx) error {
		maxSeq, err := tx.SelectMaxSequence(ctx)
		if err != nil {
			return err
		}

		previousHash := domain.SentinelHash
		if maxSeq > 0 {
			tail, err := tx.SelectTailEntry(ctx)
			if err != nil {
				return err
			}
			if tail == nil {
				return fmt.Errorf("%w: max sequence %d", ErrLedgerTailMissing, maxSeq)
			}
			previousHash = tail.CurrentHash
		}

		now := s.Now().UTC().Truncate(time.Millisecond)
		entry = domain.JournalEntry{
			SequenceNumber:  maxSeq + 1,
			TransactionType: req.TransactionType,
			OrderID:         req.OrderID,
			Amount:          domain.RoundMoney(amount),
			VATAmount:       domain.RoundMoney(vat),
			PaymentMethod:   req.PaymentMethod,
			TransactionData: payload,
			PreviousHash:    previousHash,
			Timestamp:       now,
			UserID:          req.UserID,
			RegisterID:      s.registerID,
			CreatedAt:       now,
		}
		entry.CurrentHash = domain.ComputeEntryHash(previousHash, entry)

		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to append journal entry",
			slog.String("transaction_type", string(req.TransactionType)))
		return nil, err
	}

	s.metrics.recordAppend(ctx, string(entry.TransactionType))
	s.LogInfo(ctx, "Journal entry appended",
		slog.Int64("sequence_number", entry.SequenceNumber),
		slog.String("transaction_type", string(entry.TransactionType)),
		slog.String("current_hash", entry.CurrentHash))

	return &entry, nil
}

// LogSale journals a sale using the order snapshot as payload.
func (s *journalService) LogSale(ctx context.Context, orderID int64, userID *string) (*domain.JournalEntry, error) {
	order, err := s.orderRepo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	parsed, err := order.Parse()
	if err != nil {
		return nil, apperrors.NewValidationError("%v", err)
	}

	return s.Append(ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionSale,
		OrderID:         &order.ID,
		Amount:          parsed.TotalAmount,
		VATAmount:       parsed.TotalTax,
		PaymentMethod:   order.PaymentMethod,
		Payload:         order,
		UserID:          userID,
	})
}

// LogRefund journals a refund. Amounts are stored negated regardless of the sign given.
func (s *journalService) LogRefund(ctx context.Context, req dto.LogRefundRequest, userID *string) (*domain.JournalEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.FindOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	return s.Append(ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionRefund,
		OrderID:         &order.ID,
		Amount:          req.Amount.Abs().Neg(),
		VATAmount:       req.VATAmount.Abs().Neg(),
		PaymentMethod:   req.PaymentMethod,
		Payload: map[string]any{
			"refund": true,
			"reason": req.Reason,
			"order":  order,
		},
		UserID: userID,
	})
}

// LogCorrection journals a correction that references no order.
func (s *journalService) LogCorrection(ctx context.Context, req dto.LogCorrectionRequest, userID *string) (*domain.JournalEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.Append(ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionCorrection,
		Amount:          req.Amount,
		VATAmount:       req.VATAmount,
		PaymentMethod:   domain.PaymentMethodCorrection,
		Payload: map[string]any{
			"correction_type": req.CorrectionType,
			"details":         req.Details,
		},
		UserID: userID,
	})
}

// LogClosure mirrors a sealed bulletin into the ledger.
func (s *journalService) LogClosure(ctx context.Context, bulletin domain.ClosureBulletin) (*domain.JournalEntry, error) {
	if bulletin.ClosureHash == "" {
		return nil, apperrors.NewValidationError("closure %s is not sealed", bulletin.ClosureID)
	}
	return s.Append(ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionClosure,
		Amount:          bulletin.TotalAmount,
		VATAmount:       bulletin.TotalVAT,
		PaymentMethod:   domain.PaymentMethodClosure,
		Payload: map[string]any{
			"closure_id":         bulletin.ClosureID,
			"closure_type":       bulletin.ClosureType,
			"period_start":       domain.FormatTimestamp(bulletin.PeriodStart),
			"period_end":         domain.FormatTimestamp(bulletin.PeriodEnd),
			"total_transactions": bulletin.TotalTransactions,
			"closure_hash":       bulletin.ClosureHash,
			"first_sequence":     bulletin.FirstSequence,
			"last_sequence":      bulletin.LastSequence,
		},
	})
}

// LogArchive journals a zero-amount archive marker.
func (s *journalService) LogArchive(ctx context.Context, req dto.LogArchiveRequest, userID *string) (*domain.JournalEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.Append(ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		Amount:          decimal.Zero,
		VATAmount:       decimal.Zero,
		PaymentMethod:   domain.PaymentMethodArchive,
		Payload: map[string]any{
			"archive": true,
			"reason":  req.Reason,
			"details": req.Details,
		},
		UserID: userID,
	})
}

// GetEntry retrieves a single entry by sequence number.
func (s *journalService) GetEntry(ctx context.Context, sequence int64) (*domain.JournalEntry, error) {
	if sequence <= 0 {
		return nil, apperrors.NewValidationError("sequence number must be positive")
	}
	entry, err := s.journalRepo.FindEntryBySequence(ctx, sequence)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to fetch journal entry", slog.Int64("sequence_number", sequence))
		}
		return nil, err
	}
	return entry, nil
}

// ListEntries retrieves entries after params.AfterSequence, in order.
func (s *journalService) ListEntries(ctx context.Context, params dto.ListEntriesParams) ([]domain.JournalEntry, error) {
	entries, err := s.journalRepo.ListEntries(ctx, params.AfterSequence, params.EffectiveLimit())
	if err != nil {
		s.LogError(ctx, err, "Failed to list journal entries", slog.Int64("after", params.AfterSequence))
		return nil, err
	}
	return entries, nil
}

// canonicalPayload renders v as RFC 8785 canonical JSON.
func canonicalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(canonical), nil
}
