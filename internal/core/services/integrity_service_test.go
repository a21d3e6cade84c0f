package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/repositories/memory"
)

type IntegrityServiceTestSuite struct {
	suite.Suite
	store      *memory.Store
	journalSvc portssvc.JournalSvcFacade
	ctx        context.Context
}

func (suite *IntegrityServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = memory.NewStore()
	suite.journalSvc = services.NewJournalService(suite.store, suite.store, "REG-01")

	// Three sales, then the correction documenting the remediation of entry 2.
	for i := 1; i <= 3; i++ {
		_, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
			TransactionType: domain.TransactionSale,
			Amount:          decimal.NewFromInt(int64(10 * i)),
			VATAmount:       decimal.NewFromInt(int64(i)),
			PaymentMethod:   "card",
		})
		suite.Require().NoError(err)
	}
	_, err := suite.journalSvc.LogCorrection(suite.ctx, dto.LogCorrectionRequest{
		CorrectionType: domain.CorrectionHashChainIntegrity,
		Details:        map[string]any{"broken_sequence": 2},
	}, nil)
	suite.Require().NoError(err)
}

func TestIntegrityServiceTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrityServiceTestSuite))
}

func (suite *IntegrityServiceTestSuite) verifyWith(reader *tamperingReader) *domain.IntegrityReport {
	svc := services.NewIntegrityService(reader, suite.store)
	report, err := svc.Verify(suite.ctx)
	suite.Require().NoError(err)
	return report
}

func (suite *IntegrityServiceTestSuite) TestVerify_ValidChain() {
	verifiedAt := time.Date(2025, time.July, 12, 3, 0, 0, 0, time.UTC)
	svc := services.NewIntegrityService(suite.store, suite.store, services.WithIntegrityClock(fixedClock(verifiedAt)))

	report, err := svc.Verify(suite.ctx)
	suite.Require().NoError(err)
	suite.True(report.IsValid)
	suite.Equal(int64(4), report.EntriesChecked)
	suite.Empty(report.Errors)
	suite.NotNil(report.Errors)
	suite.Empty(report.Notes)
	suite.Zero(report.ToleratedBreaks)
	suite.Equal(verifiedAt, report.VerifiedAt)
}

func (suite *IntegrityServiceTestSuite) TestVerify_EmptyLedger() {
	empty := memory.NewStore()
	report, err := services.NewIntegrityService(empty, empty).Verify(suite.ctx)
	suite.Require().NoError(err)
	suite.True(report.IsValid)
	suite.Zero(report.EntriesChecked)
}

func (suite *IntegrityServiceTestSuite) TestVerify_SingleFieldTamper() {
	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      2,
		tamper: func(e *domain.JournalEntry) {
			e.Amount = e.Amount.Add(decimal.NewFromInt(1))
		},
	})

	suite.False(report.IsValid)
	suite.Require().Len(report.Violations, 1)
	suite.Equal(domain.ViolationHashMismatch, report.Violations[0].Kind)
	suite.Equal(int64(2), report.Violations[0].SequenceNumber)
	suite.Len(report.Errors, 1)
}

func (suite *IntegrityServiceTestSuite) TestVerify_PreviousHashTamper() {
	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      2,
		tamper: func(e *domain.JournalEntry) {
			e.PreviousHash = domain.SentinelHash
		},
	})

	suite.False(report.IsValid)
	suite.Require().Len(report.Violations, 2)
	suite.Equal(domain.ViolationChainBreak, report.Violations[0].Kind)
	suite.Equal(domain.ViolationHashMismatch, report.Violations[1].Kind)
}

func (suite *IntegrityServiceTestSuite) TestVerify_DocumentedBreakIsTolerated() {
	_, err := services.NewIntegrityService(suite.store, suite.store).RegisterException(suite.ctx, dto.RegisterExceptionRequest{
		SequenceNumber:     2,
		Reason:             "entry rewritten by a 2023 migration",
		RemediationEntryID: 4,
	})
	suite.Require().NoError(err)

	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      2,
		tamper: func(e *domain.JournalEntry) {
			e.PreviousHash = "legacy"
		},
	})

	suite.True(report.IsValid)
	suite.Empty(report.Errors)
	suite.Equal(int64(2), report.ToleratedBreaks)
	suite.Equal([]string{services.ToleratedBreaksNote}, report.Notes)
}

func (suite *IntegrityServiceTestSuite) TestVerify_ExceptionWithoutRemediationIsNotTolerated() {
	suite.Require().NoError(suite.store.InsertIntegrityException(suite.ctx, domain.IntegrityException{
		SequenceNumber:     2,
		Reason:             "claimed",
		RemediationEntryID: 3, // a sale, not a HASH_CHAIN_INTEGRITY correction
	}))

	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      2,
		tamper: func(e *domain.JournalEntry) {
			e.PreviousHash = "legacy"
		},
	})

	suite.False(report.IsValid)
	suite.Len(report.Violations, 2)
	suite.Zero(report.ToleratedBreaks)
	suite.Empty(report.Notes)
}

func (suite *IntegrityServiceTestSuite) TestVerify_ExceptionBackedByAnyRemediation() {
	suite.Require().NoError(suite.store.InsertIntegrityException(suite.ctx, domain.IntegrityException{
		SequenceNumber: 3,
		Reason:         "imported before remediation ids were tracked",
	}))

	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      3,
		tamper: func(e *domain.JournalEntry) {
			e.CurrentHash = "forged"
		},
	})

	// Entry 3 mismatches its own hash, and entry 4 no longer links to it.
	suite.False(report.IsValid)
	suite.Equal(int64(1), report.ToleratedBreaks)
	suite.Require().Len(report.Violations, 1)
	suite.Equal(domain.ViolationChainBreak, report.Violations[0].Kind)
	suite.Equal(int64(4), report.Violations[0].SequenceNumber)
	suite.Len(report.Notes, 1)
}

func (suite *IntegrityServiceTestSuite) TestVerify_SequenceBreakNeverTolerated() {
	suite.Require().NoError(suite.store.InsertIntegrityException(suite.ctx, domain.IntegrityException{
		SequenceNumber:     3,
		Reason:             "gap",
		RemediationEntryID: 4,
	}))

	report := suite.verifyWith(&tamperingReader{
		JournalReader: suite.store,
		sequence:      2,
		drop:          true,
	})

	// Every entry after the gap is out of position; only the chain break at 3 is documented.
	suite.False(report.IsValid)
	suite.Equal(int64(3), report.EntriesChecked)
	suite.Require().Len(report.Violations, 2)
	for _, v := range report.Violations {
		suite.Equal(domain.ViolationSequenceBreak, v.Kind)
	}
	suite.Equal(int64(2), report.Violations[0].Position)
	suite.Equal(int64(3), report.Violations[0].SequenceNumber)
	suite.Equal(int64(1), report.ToleratedBreaks)
	suite.Len(report.Notes, 1)
}

func (suite *IntegrityServiceTestSuite) TestVerify_RecordsViolationMetric() {
	m, reader := newTestMetrics(suite.T())
	svc := services.NewIntegrityService(&tamperingReader{
		JournalReader: suite.store,
		sequence:      1,
		tamper: func(e *domain.JournalEntry) {
			e.PaymentMethod = "cash"
		},
	}, suite.store, services.WithIntegrityMetrics(m))

	report, err := svc.Verify(suite.ctx)
	suite.Require().NoError(err)
	suite.False(report.IsValid)
	suite.Equal(int64(1), counterValue(suite.T(), reader, services.MetricIntegrityViolations))
}

func (suite *IntegrityServiceTestSuite) TestRegisterException() {
	svc := services.NewIntegrityService(suite.store, suite.store)

	testCases := []struct {
		name    string
		req     dto.RegisterExceptionRequest
		wantErr error
	}{
		{
			name:    "missing reason",
			req:     dto.RegisterExceptionRequest{SequenceNumber: 2, RemediationEntryID: 4},
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "remediation does not exist",
			req:     dto.RegisterExceptionRequest{SequenceNumber: 2, Reason: "x", RemediationEntryID: 40},
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "remediation is not a hash chain correction",
			req:     dto.RegisterExceptionRequest{SequenceNumber: 2, Reason: "x", RemediationEntryID: 3},
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "remediation precedes the break",
			req:     dto.RegisterExceptionRequest{SequenceNumber: 4, Reason: "x", RemediationEntryID: 4},
			wantErr: apperrors.ErrValidation,
		},
		{
			name: "documented",
			req:  dto.RegisterExceptionRequest{SequenceNumber: 2, Reason: "x", RemediationEntryID: 4},
		},
		{
			name:    "already documented",
			req:     dto.RegisterExceptionRequest{SequenceNumber: 2, Reason: "again", RemediationEntryID: 4},
			wantErr: apperrors.ErrDuplicate,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			ex, err := svc.RegisterException(suite.ctx, tc.req)
			if tc.wantErr != nil {
				suite.ErrorIs(err, tc.wantErr)
				suite.Nil(ex)
				return
			}
			suite.Require().NoError(err)
			suite.Equal(tc.req.SequenceNumber, ex.SequenceNumber)
			suite.Equal(tc.req.RemediationEntryID, ex.RemediationEntryID)
		})
	}
}

func TestIntegrityService_StreamFailurePropagates(t *testing.T) {
	repo := new(MockJournalRepository)
	streamErr := errors.New("cursor closed")
	repo.On("StreamEntries", mock.Anything, mock.Anything).Return(streamErr).Once()

	store := memory.NewStore()
	report, err := services.NewIntegrityService(repo, store).Verify(context.Background())

	assert.Nil(t, report)
	assert.ErrorIs(t, err, streamErr)
	repo.AssertExpectations(t)
}
