package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
)

const (
	SheetSummary  = "Summary"
	SheetVAT      = "VAT"
	SheetPayments = "Payments"
)

// Service renders stored closure bulletins as XLSX workbooks.
type Service struct {
	closures portssvc.ClosureReaderSvc
	logger   *slog.Logger
}

func NewService(closures portssvc.ClosureReaderSvc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{closures: closures, logger: logger}
}

var _ portssvc.ClosureExporter = (*Service)(nil)

// ExportClosureXLSX returns the workbook (as bytes) for one bulletin.
func (s *Service) ExportClosureXLSX(ctx context.Context, closureID string) ([]byte, error) {
	start := time.Now()

	bulletin, err := s.closures.GetClosure(ctx, closureID)
	if err != nil {
		return nil, err
	}

	out, err := RenderClosureXLSX(*bulletin)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "closure exported",
		slog.String("closure_id", closureID),
		slog.String("closure_type", string(bulletin.ClosureType)),
		slog.Int("bytes", len(out)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// RenderClosureXLSX builds a workbook with a summary sheet, the VAT breakdown
// and the payment-method breakdown. Breakdown rows are sorted by key.
func RenderClosureXLSX(b domain.ClosureBulletin) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, sheet := range []string{SheetVAT, SheetPayments} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}

	summary := [][2]any{
		{"Closure ID", b.ClosureID},
		{"Closure Type", string(b.ClosureType)},
		{"Period Start", domain.FormatTimestamp(b.PeriodStart)},
		{"Period End", domain.FormatTimestamp(b.PeriodEnd)},
		{"Total Transactions", b.TotalTransactions},
		{"Total Amount", b.TotalAmount},
		{"Total VAT", b.TotalVAT},
		{"Tips Total", b.TipsTotal},
		{"Change Total", b.ChangeTotal},
		{"First Sequence", b.FirstSequence},
		{"Last Sequence", b.LastSequence},
		{"Closure Hash", b.ClosureHash},
		{"Closed At", domain.FormatTimestamp(b.ClosedAt)},
	}
	for i, kv := range summary {
		row := i + 1
		if err := setCell(f, SheetSummary, 1, row, kv[0]); err != nil {
			return nil, err
		}
		if err := setCell(f, SheetSummary, 2, row, kv[1]); err != nil {
			return nil, err
		}
	}

	if err := writeHeader(f, SheetVAT, "Rate", "Amount", "VAT"); err != nil {
		return nil, err
	}
	for i, label := range sortedKeys(b.VATBreakdown) {
		bucket := b.VATBreakdown[label]
		row := i + 2
		for col, v := range []any{label, bucket.Amount, bucket.VAT} {
			if err := setCell(f, SheetVAT, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := writeHeader(f, SheetPayments, "Payment Method", "Amount"); err != nil {
		return nil, err
	}
	for i, method := range sortedKeys(b.PaymentMethodsBreakdown) {
		row := i + 2
		if err := setCell(f, SheetPayments, 1, row, method); err != nil {
			return nil, err
		}
		if err := setCell(f, SheetPayments, 2, row, b.PaymentMethodsBreakdown[method]); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SheetSummary, "A", "A", 20)
	_ = f.SetColWidth(SheetSummary, "B", "B", 70) // hash
	_ = f.SetColWidth(SheetVAT, "A", "C", 14)
	_ = f.SetColWidth(SheetPayments, "A", "B", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers ...string) error {
	for i, h := range headers {
		if err := setCell(f, sheet, i+1, 1, h); err != nil {
			return err
		}
	}
	return nil
}

// setCell writes decimals as two-decimal numbers so spreadsheet totals match the bulletin.
func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if d, ok := v.(decimal.Decimal); ok {
		return f.SetCellFloat(sheet, cell, d.InexactFloat64(), 2, 64)
	}
	return f.SetCellValue(sheet, cell, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
