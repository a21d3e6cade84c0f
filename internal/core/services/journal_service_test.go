package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/repositories/memory"
)

// --- Mock JournalRepository ---
type MockJournalRepository struct {
	mock.Mock
}

// Ensure MockJournalRepository implements portsrepo.JournalRepositoryFacade
var _ portsrepo.JournalRepositoryFacade = (*MockJournalRepository)(nil)

// WithAppendLock hands fn the LedgerTx configured as the first return value,
// or returns the configured error without calling fn when there is none.
func (m *MockJournalRepository) WithAppendLock(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) error {
	args := m.Called(ctx, mock.Anything)
	if tx, ok := args.Get(0).(portsrepo.LedgerTx); ok {
		return fn(tx)
	}
	return args.Error(1)
}

func (m *MockJournalRepository) SelectEntriesForPeriod(ctx context.Context, start, end time.Time) ([]domain.JournalEntry, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.JournalEntry), args.Error(1)
}

func (m *MockJournalRepository) StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error {
	args := m.Called(ctx, mock.Anything)
	return args.Error(0)
}

func (m *MockJournalRepository) FindEntryBySequence(ctx context.Context, sequence int64) (*domain.JournalEntry, error) {
	args := m.Called(ctx, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JournalEntry), args.Error(1)
}

func (m *MockJournalRepository) ListEntries(ctx context.Context, afterSequence int64, limit int) ([]domain.JournalEntry, error) {
	args := m.Called(ctx, afterSequence, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.JournalEntry), args.Error(1)
}

// --- Mock LedgerTx ---
type MockLedgerTx struct {
	mock.Mock
}

func (m *MockLedgerTx) SelectMaxSequence(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerTx) SelectTailEntry(ctx context.Context) (*domain.JournalEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JournalEntry), args.Error(1)
}

func (m *MockLedgerTx) InsertEntry(ctx context.Context, entry domain.JournalEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// --- Test Suite Setup ---
type JournalServiceTestSuite struct {
	suite.Suite
	store      *memory.Store
	journalSvc portssvc.JournalSvcFacade
	now        time.Time
	ctx        context.Context
}

func (suite *JournalServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.now = time.Date(2025, time.July, 11, 10, 30, 15, 123456789, time.UTC)
	suite.store = memory.NewStore()
	suite.journalSvc = services.NewJournalService(suite.store, suite.store, "REG-01",
		services.WithJournalClock(fixedClock(suite.now)))

	suite.store.AddOrder(domain.Order{
		ID:            42,
		TotalAmount:   "120.00",
		TotalTax:      "20.00",
		PaymentMethod: "card",
		Items:         []domain.OrderItem{{ProductName: "menu", Price: "60.00", Quantity: "2", VATRate: "20"}},
		Status:        "completed",
		CreatedAt:     suite.now.Add(-time.Hour),
	})
}

func TestJournalServiceTestSuite(t *testing.T) {
	suite.Run(t, new(JournalServiceTestSuite))
}

// --- Test Cases ---

func (suite *JournalServiceTestSuite) TestSaleThenRefund_ChainsEntries() {
	userID := "cashier-1"

	sale, err := suite.journalSvc.LogSale(suite.ctx, 42, &userID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), sale.SequenceNumber)
	suite.Equal(domain.TransactionSale, sale.TransactionType)
	suite.Equal(domain.SentinelHash, sale.PreviousHash)
	suite.Require().NotNil(sale.OrderID)
	suite.Equal(int64(42), *sale.OrderID)
	suite.Equal("120.00", sale.Amount.StringFixed(2))
	suite.Equal("20.00", sale.VATAmount.StringFixed(2))
	suite.Equal("card", sale.PaymentMethod)
	suite.Equal("REG-01", sale.RegisterID)
	suite.Equal(&userID, sale.UserID)
	suite.True(domain.IsDigest(sale.CurrentHash))
	suite.Equal(domain.ComputeEntryHash(domain.SentinelHash, *sale), sale.CurrentHash)

	refund, err := suite.journalSvc.LogRefund(suite.ctx, dto.LogRefundRequest{
		OrderID:       42,
		Amount:        decimal.RequireFromString("30.00"),
		VATAmount:     decimal.RequireFromString("5.00"),
		PaymentMethod: "card",
		Reason:        "cold dish",
	}, &userID)
	suite.Require().NoError(err)
	suite.Equal(int64(2), refund.SequenceNumber)
	suite.Equal(domain.TransactionRefund, refund.TransactionType)
	suite.Equal(sale.CurrentHash, refund.PreviousHash)
	suite.Equal("-30.00", refund.Amount.StringFixed(2))
	suite.Equal("-5.00", refund.VATAmount.StringFixed(2))
	suite.NotEqual(sale.CurrentHash, refund.CurrentHash)
}

func (suite *JournalServiceTestSuite) TestLogRefund_NegativeInputStaysNegative() {
	refund, err := suite.journalSvc.LogRefund(suite.ctx, dto.LogRefundRequest{
		OrderID:       42,
		Amount:        decimal.RequireFromString("-12.5"),
		VATAmount:     decimal.RequireFromString("-2.08"),
		PaymentMethod: "cash",
	}, nil)
	suite.Require().NoError(err)
	suite.Equal("-12.50", refund.Amount.StringFixed(2))
	suite.Equal("-2.08", refund.VATAmount.StringFixed(2))
}

func (suite *JournalServiceTestSuite) TestAppend_RefundStoredNegative() {
	entry, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionRefund,
		Amount:          decimal.RequireFromString("8.40"),
		VATAmount:       decimal.RequireFromString("1.40"),
		PaymentMethod:   "card",
	})
	suite.Require().NoError(err)
	suite.Equal("-8.40", entry.Amount.StringFixed(2))
	suite.Equal("-1.40", entry.VATAmount.StringFixed(2))

	stored, err := suite.journalSvc.GetEntry(suite.ctx, entry.SequenceNumber)
	suite.Require().NoError(err)
	suite.Equal(domain.ComputeEntryHash(stored.PreviousHash, *stored), stored.CurrentHash)
}

func (suite *JournalServiceTestSuite) TestAppend_TimestampTruncatedToMillisecond() {
	entry, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionCorrection,
		Amount:          decimal.Zero,
		VATAmount:       decimal.Zero,
		PaymentMethod:   domain.PaymentMethodCorrection,
	})
	suite.Require().NoError(err)
	suite.Equal(suite.now.Truncate(time.Millisecond), entry.Timestamp)
	suite.Equal("2025-07-11T10:30:15.123Z", domain.FormatTimestamp(entry.Timestamp))
	suite.JSONEq(`{}`, string(entry.TransactionData))
}

func (suite *JournalServiceTestSuite) TestAppend_PayloadIsCanonicalJSON() {
	entry, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		PaymentMethod:   domain.PaymentMethodArchive,
		Payload:         map[string]any{"zeta": 1, "alpha": "x", "nested": map[string]any{"b": true, "a": 2.50}},
	})
	suite.Require().NoError(err)
	suite.Equal(`{"alpha":"x","nested":{"a":2.5,"b":true},"zeta":1}`, string(entry.TransactionData))
}

func (suite *JournalServiceTestSuite) TestAppend_PayloadDoesNotAffectHash() {
	a, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		PaymentMethod:   domain.PaymentMethodArchive,
		Payload:         map[string]any{"reason": "first"},
	})
	suite.Require().NoError(err)

	tampered := *a
	tampered.TransactionData = []byte(`{"reason":"rewritten"}`)
	suite.Equal(a.CurrentHash, domain.ComputeEntryHash(a.PreviousHash, tampered))
}

func (suite *JournalServiceTestSuite) TestAppend_InvalidTransactionType() {
	entry, err := suite.journalSvc.Append(suite.ctx, dto.AppendEntryRequest{
		TransactionType: "VOID",
		PaymentMethod:   "cash",
	})
	suite.Nil(entry)
	suite.ErrorIs(err, apperrors.ErrValidation)

	entries, err := suite.store.ListEntries(suite.ctx, 0, 10)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func (suite *JournalServiceTestSuite) TestLogSale_OrderNotFound() {
	entry, err := suite.journalSvc.LogSale(suite.ctx, 999, nil)
	suite.Nil(entry)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *JournalServiceTestSuite) TestLogSale_MalformedOrderAmount() {
	suite.store.AddOrder(domain.Order{ID: 7, TotalAmount: "12,50", Status: "completed", CreatedAt: suite.now})

	entry, err := suite.journalSvc.LogSale(suite.ctx, 7, nil)
	suite.Nil(entry)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *JournalServiceTestSuite) TestLogSale_LegacyTaxAmountField() {
	suite.store.AddOrder(domain.Order{ID: 8, TotalAmount: "11.00", TaxAmount: "1.00", PaymentMethod: "cash", Status: "paid", CreatedAt: suite.now})

	entry, err := suite.journalSvc.LogSale(suite.ctx, 8, nil)
	suite.Require().NoError(err)
	suite.Equal("1.00", entry.VATAmount.StringFixed(2))
}

func (suite *JournalServiceTestSuite) TestLogCorrection_HashChainRemediation() {
	entry, err := suite.journalSvc.LogCorrection(suite.ctx, dto.LogCorrectionRequest{
		CorrectionType: domain.CorrectionHashChainIntegrity,
		Details:        map[string]any{"broken_sequence": 3},
	}, nil)
	suite.Require().NoError(err)
	suite.Nil(entry.OrderID)
	suite.Equal(domain.PaymentMethodCorrection, entry.PaymentMethod)
	suite.True(entry.IsHashChainRemediation())
}

func (suite *JournalServiceTestSuite) TestLogCorrection_RequiresType() {
	_, err := suite.journalSvc.LogCorrection(suite.ctx, dto.LogCorrectionRequest{}, nil)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *JournalServiceTestSuite) TestLogClosure() {
	bulletin := domain.ClosureBulletin{
		ClosureID:         "5b0f8f4e-2c55-4a55-b1a9-1c6c2a0e4f10",
		ClosureType:       domain.ClosureDaily,
		PeriodStart:       time.Date(2025, time.July, 11, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2025, time.July, 11, 23, 59, 59, 999000000, time.UTC),
		TotalTransactions: 2,
		TotalAmount:       decimal.RequireFromString("131.00"),
		TotalVAT:          decimal.RequireFromString("21.00"),
		ClosureHash:       "abc123",
	}

	entry, err := suite.journalSvc.LogClosure(suite.ctx, bulletin)
	suite.Require().NoError(err)
	suite.Equal(domain.TransactionClosure, entry.TransactionType)
	suite.Equal(domain.PaymentMethodClosure, entry.PaymentMethod)
	suite.Equal("131.00", entry.Amount.StringFixed(2))
	suite.Contains(string(entry.TransactionData), `"closure_hash":"abc123"`)

	bulletin.ClosureHash = ""
	_, err = suite.journalSvc.LogClosure(suite.ctx, bulletin)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *JournalServiceTestSuite) TestLogArchive_ZeroAmounts() {
	entry, err := suite.journalSvc.LogArchive(suite.ctx, dto.LogArchiveRequest{Reason: "yearly export"}, nil)
	suite.Require().NoError(err)
	suite.Equal(domain.TransactionArchive, entry.TransactionType)
	suite.True(entry.Amount.IsZero())
	suite.True(entry.VATAmount.IsZero())
}

func (suite *JournalServiceTestSuite) TestGetEntry() {
	_, err := suite.journalSvc.LogSale(suite.ctx, 42, nil)
	suite.Require().NoError(err)

	entry, err := suite.journalSvc.GetEntry(suite.ctx, 1)
	suite.Require().NoError(err)
	suite.Equal(int64(1), entry.SequenceNumber)

	_, err = suite.journalSvc.GetEntry(suite.ctx, 2)
	suite.ErrorIs(err, apperrors.ErrNotFound)

	_, err = suite.journalSvc.GetEntry(suite.ctx, 0)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *JournalServiceTestSuite) TestListEntries_Pages() {
	for i := 0; i < 5; i++ {
		_, err := suite.journalSvc.LogSale(suite.ctx, 42, nil)
		suite.Require().NoError(err)
	}

	page, err := suite.journalSvc.ListEntries(suite.ctx, dto.ListEntriesParams{Limit: 2})
	suite.Require().NoError(err)
	suite.Require().Len(page, 2)
	suite.Equal(int64(1), page[0].SequenceNumber)

	page, err = suite.journalSvc.ListEntries(suite.ctx, dto.ListEntriesParams{AfterSequence: 4})
	suite.Require().NoError(err)
	suite.Require().Len(page, 1)
	suite.Equal(int64(5), page[0].SequenceNumber)
}

func (suite *JournalServiceTestSuite) TestAppend_RecordsMetric() {
	m, reader := newTestMetrics(suite.T())
	svc := services.NewJournalService(suite.store, suite.store, "REG-01", services.WithJournalMetrics(m))

	_, err := svc.LogSale(suite.ctx, 42, nil)
	suite.Require().NoError(err)
	_, err = svc.LogArchive(suite.ctx, dto.LogArchiveRequest{Reason: "x"}, nil)
	suite.Require().NoError(err)

	suite.Equal(int64(2), counterValue(suite.T(), reader, services.MetricJournalAppends))
}

// --- Storage failures ---

func TestJournalService_AppendLockFailurePropagates(t *testing.T) {
	repo := new(MockJournalRepository)
	storageErr := errors.New("connection reset")
	repo.On("WithAppendLock", mock.Anything, mock.Anything).Return(nil, storageErr).Once()

	svc := services.NewJournalService(repo, memory.NewStore(), "REG-01")
	entry, err := svc.Append(context.Background(), dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		PaymentMethod:   domain.PaymentMethodArchive,
	})

	assert.Nil(t, entry)
	assert.ErrorIs(t, err, storageErr)
	repo.AssertExpectations(t)
}

func TestJournalService_InsertFailurePropagates(t *testing.T) {
	tx := new(MockLedgerTx)
	tail := &domain.JournalEntry{SequenceNumber: 3, CurrentHash: "prev"}
	insertErr := errors.New("disk full")
	tx.On("SelectMaxSequence", mock.Anything).Return(int64(3), nil).Once()
	tx.On("SelectTailEntry", mock.Anything).Return(tail, nil).Once()
	tx.On("InsertEntry", mock.Anything, mock.MatchedBy(func(e domain.JournalEntry) bool {
		return e.SequenceNumber == 4 && e.PreviousHash == "prev"
	})).Return(insertErr).Once()

	repo := new(MockJournalRepository)
	repo.On("WithAppendLock", mock.Anything, mock.Anything).Return(tx, nil).Once()

	svc := services.NewJournalService(repo, memory.NewStore(), "REG-01")
	_, err := svc.Append(context.Background(), dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		PaymentMethod:   domain.PaymentMethodArchive,
	})

	assert.ErrorIs(t, err, insertErr)
	tx.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestJournalService_MissingTail(t *testing.T) {
	tx := new(MockLedgerTx)
	tx.On("SelectMaxSequence", mock.Anything).Return(int64(5), nil).Once()
	tx.On("SelectTailEntry", mock.Anything).Return(nil, nil).Once()

	repo := new(MockJournalRepository)
	repo.On("WithAppendLock", mock.Anything, mock.Anything).Return(tx, nil).Once()

	svc := services.NewJournalService(repo, memory.NewStore(), "REG-01")
	_, err := svc.Append(context.Background(), dto.AppendEntryRequest{
		TransactionType: domain.TransactionArchive,
		PaymentMethod:   domain.PaymentMethodArchive,
	})

	assert.ErrorIs(t, err, services.ErrLedgerTailMissing)
	tx.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything)
}

// --- Concurrency ---

func TestJournalService_ConcurrentAppendsAreGapless(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewJournalService(store, store, "REG-01")
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Append(ctx, dto.AppendEntryRequest{
				TransactionType: domain.TransactionSale,
				Amount:          decimal.NewFromInt(int64(i)),
				PaymentMethod:   "cash",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := store.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, writers)
	prev := domain.SentinelHash
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.SequenceNumber)
		assert.Equal(t, prev, e.PreviousHash)
		prev = e.CurrentHash
	}

	report, err := services.NewIntegrityService(store, store).Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, int64(writers), report.EntriesChecked)
}
