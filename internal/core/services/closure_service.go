package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
)

// InvalidOrderPolicy decides what a closure does with an order whose amounts cannot be parsed.
type InvalidOrderPolicy string

const (
	// PolicySkip logs the order, counts it and leaves it out of the bulletin.
	PolicySkip InvalidOrderPolicy = "skip"
	// PolicyFail aborts the closure with a validation error.
	PolicyFail InvalidOrderPolicy = "fail"
)

// ParseInvalidOrderPolicy accepts "skip" or "fail" in any letter case.
func ParseInvalidOrderPolicy(s string) (InvalidOrderPolicy, error) {
	switch p := InvalidOrderPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyFail:
		return p, nil
	}
	return "", fmt.Errorf("unknown invalid order policy %q", s)
}

// UnknownPaymentMethod is the breakdown key for orders without a payment method.
const UnknownPaymentMethod = "unknown"

var (
	defaultVATRate = decimal.NewFromInt(20)
	hundred        = decimal.NewFromInt(100)
)

// closureService aggregates orders into sealed closure bulletins.
type closureService struct {
	BaseService
	closureRepo portsrepo.ClosureRepositoryFacade
	orderRepo   portsrepo.OrderReader
	journalRepo portsrepo.JournalReader
	periods     portssvc.PeriodSvc
	ledger      portssvc.JournalWriterSvc
	defaultRate decimal.Decimal
	policy      InvalidOrderPolicy
	metrics     *Metrics
}

// ClosureServiceOption is a functional option for configuring the closure service
type ClosureServiceOption func(*closureService)

// WithClosureLedger mirrors every stored bulletin into the legal journal.
func WithClosureLedger(ledger portssvc.JournalWriterSvc) ClosureServiceOption {
	return func(s *closureService) {
		s.ledger = ledger
	}
}

// WithDefaultVATRate sets the rate applied to items that carry none.
func WithDefaultVATRate(rate decimal.Decimal) ClosureServiceOption {
	return func(s *closureService) {
		s.defaultRate = rate
	}
}

// WithInvalidOrderPolicy sets how malformed orders are handled.
func WithInvalidOrderPolicy(policy InvalidOrderPolicy) ClosureServiceOption {
	return func(s *closureService) {
		s.policy = policy
	}
}

// WithClosureMetrics sets the counters the service reports to.
func WithClosureMetrics(m *Metrics) ClosureServiceOption {
	return func(s *closureService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClosureClock overrides the clock used for closed_at and created_at.
func WithClosureClock(now Clock) ClosureServiceOption {
	return func(s *closureService) {
		s.now = now
	}
}

// NewClosureService creates a new closure aggregator.
func NewClosureService(closureRepo portsrepo.ClosureRepositoryFacade, orderRepo portsrepo.OrderReader, journalRepo portsrepo.JournalReader, periods portssvc.PeriodSvc, options ...ClosureServiceOption) portssvc.ClosureSvcFacade {
	svc := &closureService{
		closureRepo: closureRepo,
		orderRepo:   orderRepo,
		journalRepo: journalRepo,
		periods:     periods,
		defaultRate: defaultVATRate,
		policy:      PolicySkip,
	}
	for _, option := range options {
		option(svc)
	}
	if svc.metrics == nil {
		svc.metrics = defaultMetrics()
	}
	return svc
}

var _ portssvc.ClosureSvcFacade = (*closureService)(nil)

// CreateClosure seals the period of closureType containing referenceDate.
//
// If the bulletin is stored but mirroring it into the ledger fails, both the
// bulletin and the error are returned: the period is sealed and cannot be
// closed again, so the caller must journal it by other means.
func (s *closureService) CreateClosure(ctx context.Context, closureType domain.ClosureType, referenceDate time.Time) (*domain.ClosureBulletin, error) {
	period, err := s.periods.PeriodFor(closureType, referenceDate)
	if err != nil {
		return nil, err
	}
	logAttrs := []any{
		slog.String("closure_type", string(closureType)),
		slog.Time("period_start", period.Start),
		slog.Time("period_end", period.End),
	}

	exists, err := s.closureRepo.ClosureExists(ctx, closureType, period.Start, period.End)
	if err != nil {
		s.LogError(ctx, err, "Failed to check for existing closure", logAttrs...)
		return nil, err
	}
	if exists {
		s.LogWarn(ctx, "Closure already exists for period", logAttrs...)
		return nil, &apperrors.DuplicatePeriodError{ClosureType: string(closureType), Start: period.Start, End: period.End}
	}

	orders, err := s.orderRepo.ListSettledOrders(ctx, period.Start, period.End)
	if err != nil {
		s.LogError(ctx, err, "Failed to load orders for closure", logAttrs...)
		return nil, err
	}

	bulletin, err := s.aggregate(ctx, closureType, orders)
	if err != nil {
		return nil, err
	}
	bulletin.PeriodStart = period.Start
	bulletin.PeriodEnd = period.End

	entries, err := s.journalRepo.SelectEntriesForPeriod(ctx, period.Start, period.End)
	if err != nil {
		s.LogError(ctx, err, "Failed to load journal entries for closure", logAttrs...)
		return nil, err
	}
	bulletin.FirstSequence, bulletin.LastSequence = sequenceRange(entries)

	now := s.Now().UTC()
	bulletin.ClosureID = uuid.NewString()
	bulletin.ClosureType = closureType
	bulletin.ClosureHash = domain.ComputeClosureHash(bulletin)
	bulletin.IsClosed = true
	bulletin.ClosedAt = now
	bulletin.CreatedAt = now

	if err := s.closureRepo.InsertClosure(ctx, bulletin); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			s.LogWarn(ctx, "Concurrent closure won the period", logAttrs...)
			return nil, &apperrors.DuplicatePeriodError{ClosureType: string(closureType), Start: period.Start, End: period.End}
		}
		s.LogError(ctx, err, "Failed to store closure", logAttrs...)
		return nil, err
	}

	s.LogInfo(ctx, "Closure sealed", append(logAttrs,
		slog.String("closure_id", bulletin.ClosureID),
		slog.String("closure_hash", bulletin.ClosureHash),
		slog.Int64("total_transactions", bulletin.TotalTransactions))...)

	if s.ledger != nil {
		if _, err := s.ledger.LogClosure(ctx, bulletin); err != nil {
			s.LogError(ctx, err, "Closure stored but not mirrored into the journal",
				slog.String("closure_id", bulletin.ClosureID))
			return &bulletin, fmt.Errorf("closure %s not journaled: %w", bulletin.ClosureID, err)
		}
	}

	return &bulletin, nil
}

// aggregate computes the totals and breakdowns of a bulletin from its orders.
func (s *closureService) aggregate(ctx context.Context, closureType domain.ClosureType, orders []domain.Order) (domain.ClosureBulletin, error) {
	b := domain.ClosureBulletin{
		TotalAmount:             decimal.Zero,
		TotalVAT:                decimal.Zero,
		VATBreakdown:            make(map[string]domain.VATBucket),
		PaymentMethodsBreakdown: make(map[string]decimal.Decimal),
	}
	tips, change := decimal.Zero, decimal.Zero

	for _, order := range orders {
		parsed, err := order.Parse()
		if err != nil {
			if s.policy == PolicyFail {
				s.LogError(ctx, err, "Malformed order aborts closure", slog.Int64("order_id", order.ID))
				return domain.ClosureBulletin{}, apperrors.NewValidationError("%v", err)
			}
			s.LogWarn(ctx, "Skipping malformed order in closure",
				slog.Int64("order_id", order.ID),
				slog.String("error", err.Error()))
			s.metrics.recordSkippedOrder(ctx, string(closureType))
			continue
		}

		b.TotalTransactions++
		b.TotalAmount = b.TotalAmount.Add(parsed.TotalAmount)
		b.TotalVAT = b.TotalVAT.Add(parsed.TotalTax)
		tips = tips.Add(parsed.Tips)
		change = change.Add(parsed.Change)

		method := parsed.PaymentMethod
		if method == "" {
			method = UnknownPaymentMethod
		}
		b.PaymentMethodsBreakdown[method] = b.PaymentMethodsBreakdown[method].Add(parsed.TotalAmount)

		if len(parsed.Items) == 0 {
			addToBucket(b.VATBreakdown, s.defaultRate, parsed.TotalAmount, parsed.TotalTax)
			continue
		}
		for _, item := range parsed.Items {
			rate := s.defaultRate
			if item.HasRate {
				rate = item.VATRate
			}
			amount := item.Total()
			vat := amount.Sub(amount.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))))
			addToBucket(b.VATBreakdown, rate, amount, vat)
		}
	}

	b.TotalAmount = domain.RoundMoney(b.TotalAmount)
	b.TotalVAT = domain.RoundMoney(b.TotalVAT)
	for method, amount := range b.PaymentMethodsBreakdown {
		b.PaymentMethodsBreakdown[method] = domain.RoundMoney(amount)
	}
	reconcileVAT(b.VATBreakdown, b.TotalVAT)

	b.TipsTotal = s.clampNonNegative(ctx, closureType, "tips", domain.RoundMoney(tips))
	b.ChangeTotal = s.clampNonNegative(ctx, closureType, "change", domain.RoundMoney(change))
	return b, nil
}

// clampNonNegative floors a reported aggregate at zero and records the anomaly.
func (s *closureService) clampNonNegative(ctx context.Context, closureType domain.ClosureType, field string, v decimal.Decimal) decimal.Decimal {
	if !v.IsNegative() {
		return v
	}
	s.LogWarn(ctx, "Negative closure aggregate reported as zero",
		slog.String("field", field),
		slog.String("raw_total", v.StringFixed(2)),
		slog.String("closure_type", string(closureType)))
	s.metrics.recordClamp(ctx, field, string(closureType))
	return decimal.Zero
}

func addToBucket(buckets map[string]domain.VATBucket, rate, amount, vat decimal.Decimal) {
	label := domain.VATRateLabel(rate)
	bucket, ok := buckets[label]
	if !ok {
		bucket = domain.VATBucket{Rate: rate, Amount: decimal.Zero, VAT: decimal.Zero}
	}
	bucket.Amount = bucket.Amount.Add(amount)
	bucket.VAT = bucket.VAT.Add(vat)
	buckets[label] = bucket
}

// reconcileVAT rounds every bucket to cents and assigns any remaining drift
// against totalVAT to the bucket with the largest vat, ties going to the
// highest rate, so that the bucket vats sum to totalVAT exactly.
func reconcileVAT(buckets map[string]domain.VATBucket, totalVAT decimal.Decimal) {
	if len(buckets) == 0 {
		return
	}
	labels := make([]string, 0, len(buckets))
	sum := decimal.Zero
	for label, bucket := range buckets {
		bucket.Amount = domain.RoundMoney(bucket.Amount)
		bucket.VAT = domain.RoundMoney(bucket.VAT)
		buckets[label] = bucket
		sum = sum.Add(bucket.VAT)
		labels = append(labels, label)
	}

	drift := totalVAT.Sub(sum)
	if drift.IsZero() {
		return
	}

	sort.Slice(labels, func(i, j int) bool {
		bi, bj := buckets[labels[i]], buckets[labels[j]]
		if c := bi.VAT.Cmp(bj.VAT); c != 0 {
			return c > 0
		}
		return bi.Rate.GreaterThan(bj.Rate)
	})
	target := buckets[labels[0]]
	target.VAT = target.VAT.Add(drift)
	buckets[labels[0]] = target
}

// sequenceRange returns the lowest and highest sequence numbers, or 0/0.
func sequenceRange(entries []domain.JournalEntry) (first, last int64) {
	for _, e := range entries {
		if first == 0 || e.SequenceNumber < first {
			first = e.SequenceNumber
		}
		if e.SequenceNumber > last {
			last = e.SequenceNumber
		}
	}
	return first, last
}

// GetClosure retrieves a bulletin by id.
func (s *closureService) GetClosure(ctx context.Context, closureID string) (*domain.ClosureBulletin, error) {
	if _, err := uuid.Parse(closureID); err != nil {
		return nil, apperrors.NewValidationError("invalid closure id %q", closureID)
	}
	bulletin, err := s.closureRepo.FindClosureByID(ctx, closureID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to fetch closure", slog.String("closure_id", closureID))
		}
		return nil, err
	}
	return bulletin, nil
}

// ListClosures returns the most recent bulletins, optionally of one type.
func (s *closureService) ListClosures(ctx context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error) {
	if limit <= 0 {
		limit = dto.DefaultListLimit
	}
	if limit > dto.MaxListLimit {
		limit = dto.MaxListLimit
	}
	bulletins, err := s.closureRepo.ListClosures(ctx, closureType, limit)
	if err != nil {
		s.LogError(ctx, err, "Failed to list closures", slog.String("closure_type", string(closureType)))
		return nil, err
	}
	return bulletins, nil
}
