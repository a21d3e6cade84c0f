package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sale(amount, vat string) dto.AppendEntryRequest {
	return dto.AppendEntryRequest{
		TransactionType: domain.TransactionSale,
		Amount:          decimal.RequireFromString(amount),
		VATAmount:       decimal.RequireFromString(vat),
		PaymentMethod:   "card",
		Payload:         map[string]any{"items": []string{"espresso"}},
	}
}

func TestStore_AppendAndReadBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	journal := services.NewJournalService(s, s, "REG-001")

	orderID := int64(1)
	user := "cashier-1"
	req := sale("12.00", "2.00")
	req.OrderID = &orderID
	req.UserID = &user
	first, err := journal.Append(ctx, req)
	require.NoError(t, err)

	got, err := s.FindEntryBySequence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.CurrentHash, got.CurrentHash)
	assert.Equal(t, domain.SentinelHash, got.PreviousHash)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12")))
	assert.Equal(t, first.Timestamp, got.Timestamp)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, int64(1), *got.OrderID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user, *got.UserID)
	assert.JSONEq(t, `{"items":["espresso"]}`, string(got.TransactionData))
	assert.Equal(t, domain.ComputeEntryHash(got.PreviousHash, *got), got.CurrentHash)

	_, err = s.FindEntryBySequence(ctx, 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_ConcurrentAppendsKeepChainValid(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	journal := services.NewJournalService(s, s, "REG-001")
	verifier := services.NewIntegrityService(s, s)

	const workers, perWorker = 6, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := journal.Append(ctx, sale("3.50", "0.58"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	report, err := verifier.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid, report.Errors)
	assert.Equal(t, int64(workers*perWorker), report.EntriesChecked)
}

func TestStore_TamperedRowIsDetected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	journal := services.NewJournalService(s, s, "REG-001")
	verifier := services.NewIntegrityService(s, s)

	for i := 0; i < 4; i++ {
		_, err := journal.Append(ctx, sale("10.00", "1.67"))
		require.NoError(t, err)
	}

	// Entries are protected by triggers; direct edits fail.
	_, err := s.DB().ExecContext(ctx, `UPDATE journal_entries SET amount = '1.00' WHERE sequence_number = 2`)
	require.Error(t, err)

	_, err = s.DB().ExecContext(ctx, `DROP TRIGGER journal_entries_no_update`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE journal_entries SET amount = '1.00' WHERE sequence_number = 2`)
	require.NoError(t, err)

	report, err := verifier.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, int64(2), report.Violations[0].SequenceNumber)
	assert.Equal(t, domain.ViolationHashMismatch, report.Violations[0].Kind)

	// A timestamp rewritten without milliseconds is still read and flagged.
	_, err = s.DB().ExecContext(ctx, `UPDATE journal_entries SET timestamp = '2025-07-11T10:00:00Z' WHERE sequence_number = 3`)
	require.NoError(t, err)

	report, err = verifier.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.EntriesChecked)
	require.Len(t, report.Violations, 2)
	assert.Equal(t, int64(3), report.Violations[1].SequenceNumber)
	assert.Equal(t, domain.ViolationHashMismatch, report.Violations[1].Kind)
}

func TestParseTime(t *testing.T) {
	canonical, err := parseTime("2025-07-11T10:00:00.250Z")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(canonical.Nanosecond()))

	lenient, err := parseTime("2025-07-11T12:00:00+02:00")
	require.NoError(t, err)
	assert.True(t, lenient.Equal(time.Date(2025, 7, 11, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, lenient.Location())

	_, err = parseTime("11/07/2025 10:00")
	assert.Error(t, err)
}

func TestStore_ClosureUniqueness(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	start := time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)
	b := domain.ClosureBulletin{
		ClosureID:   "8b1f8f4e-8a3c-4a39-9d3c-0d4c3d1b1a01",
		ClosureType: domain.ClosureDaily,
		PeriodStart: start,
		PeriodEnd:   end,
		TotalAmount: decimal.RequireFromString("24.00"),
		TotalVAT:    decimal.RequireFromString("4.00"),
		VATBreakdown: map[string]domain.VATBucket{
			"20%": {Rate: decimal.NewFromInt(20), Amount: decimal.RequireFromString("24.00"), VAT: decimal.RequireFromString("4.00")},
		},
		PaymentMethodsBreakdown: map[string]decimal.Decimal{"card": decimal.RequireFromString("24.00")},
		TotalTransactions:       2,
		FirstSequence:           1,
		LastSequence:            2,
		ClosureHash:             "abc",
		IsClosed:                true,
		ClosedAt:                end.Add(time.Hour),
		CreatedAt:               end.Add(time.Hour),
	}
	require.NoError(t, s.InsertClosure(ctx, b))

	exists, err := s.ClosureExists(ctx, domain.ClosureDaily, start, end)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := b
	dup.ClosureID = "8b1f8f4e-8a3c-4a39-9d3c-0d4c3d1b1a02"
	assert.ErrorIs(t, s.InsertClosure(ctx, dup), apperrors.ErrDuplicate)

	got, err := s.FindClosureByID(ctx, b.ClosureID)
	require.NoError(t, err)
	assert.True(t, got.TotalVAT.Equal(b.TotalVAT))
	assert.True(t, got.VATBreakdown["20%"].VAT.Equal(decimal.RequireFromString("4")))
	assert.True(t, got.PaymentMethodsBreakdown["card"].Equal(decimal.RequireFromString("24")))
	assert.True(t, got.PeriodEnd.Equal(end))

	list, err := s.ListClosures(ctx, domain.ClosureWeekly, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.ListClosures(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_Orders(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.Date(2025, 7, 11, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.AddOrder(ctx, domain.Order{
		ID: 1, TotalAmount: "12.00", TotalTax: "2.00", PaymentMethod: "card", Status: "completed", CreatedAt: at,
		Items: []domain.OrderItem{{Price: "6.00", Quantity: "2", VATRate: "20"}},
	}))
	require.NoError(t, s.AddOrder(ctx, domain.Order{ID: 2, TotalAmount: "5.00", Status: "cancelled", CreatedAt: at}))

	o, err := s.FindOrderByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RawAmount("12.00"), o.TotalAmount)
	require.Len(t, o.Items, 1)
	assert.Equal(t, domain.RawAmount("20"), o.Items[0].VATRate)

	settled, err := s.ListSettledOrders(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, int64(1), settled[0].ID)

	_, err = s.FindOrderByID(ctx, 3)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func insertRawOrder(t *testing.T, s *Store, id int64, total, tax, items string, at time.Time) {
	t.Helper()
	_, err := s.DB().ExecContext(context.Background(), `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, NULL, 'card', ?, NULL, NULL, 'completed', ?)`,
		id, total, tax, items, formatTime(at))
	require.NoError(t, err)
}

func TestStore_ClosureSkipsOrdersWithMalformedItems(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.Date(2025, 7, 11, 9, 30, 0, 0, time.UTC)

	insertRawOrder(t, s, 1, "12.00", "2.00", `[{"price":"6.00","quantity":2,"vatRate":"20"}]`, at)
	insertRawOrder(t, s, 2, "10.00", "1.67", `[{"price":"5.00","quantity":"2","vatRate":"20"}]`, at)
	insertRawOrder(t, s, 3, "7.50", "1.25", `[{"price":"5.00","quantity":1.5,"vatRate":"20"}]`, at)
	insertRawOrder(t, s, 4, "9.00", "1.50", `[{"price":"9.00","quantity":{"n":1}}]`, at)
	insertRawOrder(t, s, 5, "4.00", "0.67", `{"price":`, at)

	settled, err := s.ListSettledOrders(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, settled, 5)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := services.NewMetrics(provider.Meter("sqlite-test"))
	require.NoError(t, err)

	periods, err := services.NewPeriodCalculator("00:00", time.UTC)
	require.NoError(t, err)
	closures := services.NewClosureService(s, s, s, periods, services.WithClosureMetrics(metrics))

	bulletin, err := closures.CreateClosure(ctx, domain.ClosureDaily, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bulletin.TotalTransactions)
	assert.Equal(t, "29.50", bulletin.TotalAmount.StringFixed(2))
	assert.Equal(t, "4.92", bulletin.TotalVAT.StringFixed(2))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var skipped int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == services.MetricClosureOrdersSkipped {
				for _, dp := range sum.DataPoints {
					skipped += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), skipped)
}

func TestStore_IntegrityExceptions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ex := domain.IntegrityException{SequenceNumber: 4, Reason: "power loss", RemediationEntryID: 9, CreatedAt: time.Now()}
	require.NoError(t, s.InsertIntegrityException(ctx, ex))
	assert.ErrorIs(t, s.InsertIntegrityException(ctx, ex), apperrors.ErrDuplicate)

	list, err := s.ListIntegrityExceptions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "power loss", list[0].Reason)
}

func TestStore_AppendFailurePropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db)
	journal := services.NewJournalService(s, s, "REG-001")
	diskFull := errors.New("database or disk is full")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(sequence_number), 0) FROM journal_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO journal_entries`)).
		WillReturnError(diskFull)
	mock.ExpectRollback()

	entry, err := journal.Append(context.Background(), sale("1.00", "0.17"))
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, diskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitFailurePropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db)
	journal := services.NewJournalService(s, s, "REG-001")
	busy := errors.New("database is locked")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(sequence_number), 0) FROM journal_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO journal_entries`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(busy)

	_, err = journal.Append(context.Background(), sale("1.00", "0.17"))
	assert.ErrorIs(t, err, busy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
