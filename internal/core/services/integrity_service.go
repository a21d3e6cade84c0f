package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

// ToleratedBreaksNote is added to a report when documented breaks were skipped.
const ToleratedBreaksNote = "Documented historical hash chain breaks were tolerated; see the integrity exceptions register and the HASH_CHAIN_INTEGRITY correction entries."

// integrityService replays the legal journal hash chain.
type integrityService struct {
	BaseService
	journalRepo   portsrepo.JournalReader
	exceptionRepo portsrepo.IntegrityExceptionRepository
	metrics       *Metrics
}

// IntegrityServiceOption is a functional option for configuring the integrity service
type IntegrityServiceOption func(*integrityService)

// WithIntegrityMetrics sets the counters the service reports to.
func WithIntegrityMetrics(m *Metrics) IntegrityServiceOption {
	return func(s *integrityService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithIntegrityClock overrides the clock used for report and exception timestamps.
func WithIntegrityClock(now Clock) IntegrityServiceOption {
	return func(s *integrityService) {
		s.now = now
	}
}

// NewIntegrityService creates a new integrity verifier.
func NewIntegrityService(journalRepo portsrepo.JournalReader, exceptionRepo portsrepo.IntegrityExceptionRepository, options ...IntegrityServiceOption) portssvc.IntegritySvcFacade {
	svc := &integrityService{
		journalRepo:   journalRepo,
		exceptionRepo: exceptionRepo,
	}
	for _, option := range options {
		option(svc)
	}
	if svc.metrics == nil {
		svc.metrics = defaultMetrics()
	}
	return svc
}

var _ portssvc.IntegritySvcFacade = (*integrityService)(nil)

// Verify streams the chain in sequence order and checks, for the i-th entry,
// its sequence number, its previous_hash against the prior stored current_hash,
// and its recomputed current_hash. Chain and hash failures on a sequence
// covered by a documented exception are tolerated.
func (s *integrityService) Verify(ctx context.Context) (*domain.IntegrityReport, error) {
	var (
		position     int64
		expectedPrev = domain.SentinelHash
		violations   []domain.Violation
		remediations = make(map[int64]struct{})
	)

	err := s.journalRepo.StreamEntries(ctx, func(entry domain.JournalEntry) error {
		position++

		if entry.SequenceNumber != position {
			violations = append(violations, domain.Violation{
				SequenceNumber: entry.SequenceNumber,
				Position:       position,
				Kind:           domain.ViolationSequenceBreak,
				Expected:       strconv.FormatInt(position, 10),
				Actual:         strconv.FormatInt(entry.SequenceNumber, 10),
			})
		}

		if entry.PreviousHash != expectedPrev {
			violations = append(violations, domain.Violation{
				SequenceNumber: entry.SequenceNumber,
				Position:       position,
				Kind:           domain.ViolationChainBreak,
				Expected:       expectedPrev,
				Actual:         entry.PreviousHash,
			})
		}

		if recomputed := domain.ComputeEntryHash(entry.PreviousHash, entry); recomputed != entry.CurrentHash {
			violations = append(violations, domain.Violation{
				SequenceNumber: entry.SequenceNumber,
				Position:       position,
				Kind:           domain.ViolationHashMismatch,
				Expected:       recomputed,
				Actual:         entry.CurrentHash,
			})
		}

		if entry.IsHashChainRemediation() {
			remediations[entry.SequenceNumber] = struct{}{}
		}

		expectedPrev = entry.CurrentHash
		return nil
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to stream journal for verification", slog.Int64("position", position))
		return nil, err
	}

	exceptions, err := s.exceptionRepo.ListIntegrityExceptions(ctx)
	if err != nil {
		s.LogError(ctx, err, "Failed to load integrity exceptions")
		return nil, err
	}
	documented := documentedBreaks(exceptions, remediations)

	report := &domain.IntegrityReport{
		Errors:         []string{},
		Violations:     []domain.Violation{},
		Notes:          []string{},
		EntriesChecked: position,
		VerifiedAt:     s.Now().UTC(),
	}
	for _, v := range violations {
		if v.Kind != domain.ViolationSequenceBreak {
			if _, ok := documented[v.SequenceNumber]; ok {
				s.LogDebug(ctx, "Documented break tolerated",
					slog.Int64("sequence_number", v.SequenceNumber),
					slog.String("kind", string(v.Kind)))
				report.ToleratedBreaks++
				continue
			}
		}
		report.Violations = append(report.Violations, v)
		report.Errors = append(report.Errors, v.String())
		s.metrics.recordViolations(ctx, string(v.Kind), 1)
	}
	if report.ToleratedBreaks > 0 {
		report.Notes = append(report.Notes, ToleratedBreaksNote)
	}
	report.IsValid = len(report.Errors) == 0

	if report.IsValid {
		s.LogInfo(ctx, "Journal integrity verified",
			slog.Int64("entries_checked", report.EntriesChecked),
			slog.Int64("tolerated_breaks", report.ToleratedBreaks))
	} else {
		s.LogWarn(ctx, "Journal integrity violations found",
			slog.Int64("entries_checked", report.EntriesChecked),
			slog.Int("violations", len(report.Violations)))
	}
	return report, nil
}

// documentedBreaks returns the sequence numbers whose exception is backed by
// a HASH_CHAIN_INTEGRITY correction present in the ledger. An exception with
// no remediation entry id is backed by any such correction.
func documentedBreaks(exceptions []domain.IntegrityException, remediations map[int64]struct{}) map[int64]struct{} {
	out := make(map[int64]struct{})
	if len(remediations) == 0 {
		return out
	}
	for _, ex := range exceptions {
		if ex.RemediationEntryID != 0 {
			if _, ok := remediations[ex.RemediationEntryID]; !ok {
				continue
			}
		}
		out[ex.SequenceNumber] = struct{}{}
	}
	return out
}

// RegisterException documents a remediated historical chain break.
func (s *integrityService) RegisterException(ctx context.Context, req dto.RegisterExceptionRequest) (*domain.IntegrityException, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	remediation, err := s.journalRepo.FindEntryBySequence(ctx, req.RemediationEntryID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidationError("remediation entry %d does not exist", req.RemediationEntryID)
		}
		return nil, err
	}
	if !remediation.IsHashChainRemediation() {
		return nil, apperrors.NewValidationError("entry %d is not a %s correction",
			req.RemediationEntryID, domain.CorrectionHashChainIntegrity)
	}
	if req.SequenceNumber >= req.RemediationEntryID {
		return nil, apperrors.NewValidationError("remediation entry %d must follow the broken entry %d",
			req.RemediationEntryID, req.SequenceNumber)
	}

	exception := domain.IntegrityException{
		SequenceNumber:     req.SequenceNumber,
		Reason:             req.Reason,
		RemediationEntryID: req.RemediationEntryID,
		CreatedAt:          s.Now().UTC(),
	}
	if err := s.exceptionRepo.InsertIntegrityException(ctx, exception); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, fmt.Errorf("integrity exception for sequence %d: %w", req.SequenceNumber, err)
		}
		s.LogError(ctx, err, "Failed to store integrity exception", slog.Int64("sequence_number", req.SequenceNumber))
		return nil, err
	}

	s.LogInfo(ctx, "Integrity exception registered",
		slog.Int64("sequence_number", exception.SequenceNumber),
		slog.Int64("remediation_entry_id", exception.RemediationEntryID))
	return &exception, nil
}
