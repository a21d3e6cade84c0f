package services

import (
	"fmt"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
)

// DefaultClosureTime is the start of the business day.
const DefaultClosureTime = "02:00"

// DailyPeriod returns the business day that starts on date's calendar day at
// closureTime ("HH:MM") in loc and lasts 24h. It runs past midnight and is not
// a calendar day.
func DailyPeriod(date time.Time, closureTime string, loc *time.Location) (domain.Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	hm, err := time.Parse("15:04", closureTime)
	if err != nil {
		return domain.Period{}, fmt.Errorf("invalid closure time %q: %w", closureTime, err)
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, hm.Hour(), hm.Minute(), 0, 0, loc)
	return domain.Period{Start: start, End: start.Add(24*time.Hour - time.Millisecond)}, nil
}

// WeeklyPeriod returns the ISO week (Monday 00:00:00.000 through Sunday
// 23:59:59.999) containing date, in date's location.
func WeeklyPeriod(date time.Time) domain.Period {
	y, m, d := date.Date()
	offset := (int(date.Weekday()) + 6) % 7 // days since Monday
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, date.Location())
	return domain.Period{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Millisecond)}
}

// MonthlyPeriod returns the calendar month containing date, in date's location.
func MonthlyPeriod(date time.Time) domain.Period {
	y, m, _ := date.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, date.Location())
	return domain.Period{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Millisecond)}
}

// AnnualPeriod returns the calendar year containing date, in date's location.
func AnnualPeriod(date time.Time) domain.Period {
	start := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, date.Location())
	return domain.Period{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Millisecond)}
}

// PeriodCalculator resolves closure periods in a fixed timezone.
type PeriodCalculator struct {
	closureTime string
	loc         *time.Location
}

// NewPeriodCalculator validates closureTime and returns a calculator for loc.
func NewPeriodCalculator(closureTime string, loc *time.Location) (*PeriodCalculator, error) {
	if closureTime == "" {
		closureTime = DefaultClosureTime
	}
	if _, err := time.Parse("15:04", closureTime); err != nil {
		return nil, fmt.Errorf("invalid closure time %q: %w", closureTime, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodCalculator{closureTime: closureTime, loc: loc}, nil
}

var _ portssvc.PeriodSvc = (*PeriodCalculator)(nil)

// Location returns the calculator's timezone.
func (p *PeriodCalculator) Location() *time.Location {
	return p.loc
}

// PeriodFor converts referenceDate into the calculator's timezone and returns
// the period of closureType containing it.
func (p *PeriodCalculator) PeriodFor(closureType domain.ClosureType, referenceDate time.Time) (domain.Period, error) {
	local := referenceDate.In(p.loc)
	switch closureType {
	case domain.ClosureDaily:
		return DailyPeriod(local, p.closureTime, p.loc)
	case domain.ClosureWeekly:
		return WeeklyPeriod(local), nil
	case domain.ClosureMonthly:
		return MonthlyPeriod(local), nil
	case domain.ClosureAnnual:
		return AnnualPeriod(local), nil
	}
	return domain.Period{}, apperrors.NewValidationError("unknown closure type %q", closureType)
}
