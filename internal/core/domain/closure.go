package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ClosureType is the periodicity of a closure bulletin.
type ClosureType string

const (
	ClosureDaily   ClosureType = "DAILY"
	ClosureWeekly  ClosureType = "WEEKLY"
	ClosureMonthly ClosureType = "MONTHLY"
	ClosureAnnual  ClosureType = "ANNUAL"
)

// ParseClosureType accepts a closure type in any letter case.
func ParseClosureType(s string) (ClosureType, error) {
	ct := ClosureType(strings.ToUpper(strings.TrimSpace(s)))
	switch ct {
	case ClosureDaily, ClosureWeekly, ClosureMonthly, ClosureAnnual:
		return ct, nil
	}
	return "", fmt.Errorf("unknown closure type %q", s)
}

// Period is an inclusive time range with millisecond resolution.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// VATBucket aggregates the sales of one VAT rate.
type VATBucket struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"` // VAT-inclusive
	VAT    decimal.Decimal `json:"vat"`
}

// VATRateLabel formats a rate as a breakdown key, e.g. "20%" or "5.5%".
func VATRateLabel(rate decimal.Decimal) string {
	return rate.String() + "%"
}

// ClosureBulletin seals a fiscal period. It is never modified once stored.
type ClosureBulletin struct {
	ClosureID               string                     `json:"closureID"` // Primary Key (UUID)
	ClosureType             ClosureType                `json:"closureType"`
	PeriodStart             time.Time                  `json:"periodStart"`
	PeriodEnd               time.Time                  `json:"periodEnd"`
	TotalTransactions       int64                      `json:"totalTransactions"`
	TotalAmount             decimal.Decimal            `json:"totalAmount"`
	TotalVAT                decimal.Decimal            `json:"totalVAT"`
	VATBreakdown            map[string]VATBucket       `json:"vatBreakdown"`
	PaymentMethodsBreakdown map[string]decimal.Decimal `json:"paymentMethodsBreakdown"`
	TipsTotal               decimal.Decimal            `json:"tipsTotal"`
	ChangeTotal             decimal.Decimal            `json:"changeTotal"`
	FirstSequence           int64                      `json:"firstSequence"` // 0 when no entry falls in the period
	LastSequence            int64                      `json:"lastSequence"`
	ClosureHash             string                     `json:"closureHash"`
	IsClosed                bool                       `json:"isClosed"`
	ClosedAt                time.Time                  `json:"closedAt"`
	CreatedAt               time.Time                  `json:"createdAt"`
}

// Period returns the bulletin's covered range.
func (b ClosureBulletin) Period() Period {
	return Period{Start: b.PeriodStart, End: b.PeriodEnd}
}

// ComputeClosureHash seals the bulletin descriptor
// type|start|end|total_transactions|total_amount|total_vat|first_sequence|last_sequence.
func ComputeClosureHash(b ClosureBulletin) string {
	return sha256Hex(strings.Join([]string{
		string(b.ClosureType),
		FormatTimestamp(b.PeriodStart),
		FormatTimestamp(b.PeriodEnd),
		strconv.FormatInt(b.TotalTransactions, 10),
		FormatAmount(b.TotalAmount),
		FormatAmount(b.TotalVAT),
		strconv.FormatInt(b.FirstSequence, 10),
		strconv.FormatInt(b.LastSequence, 10),
	}, fieldSeparator))
}
