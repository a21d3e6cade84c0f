package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

const closureColumns = `closure_id, closure_type, period_start, period_end, total_transactions, total_amount,
	total_vat, vat_breakdown, payment_methods_breakdown, tips_total, change_total, first_sequence,
	last_sequence, closure_hash, is_closed, closed_at, created_at`

// ClosureExists reports whether a bulletin seals (closureType, start, end).
func (s *Store) ClosureExists(ctx context.Context, closureType domain.ClosureType, start, end time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM closure_bulletins
		WHERE closure_type = ? AND period_start = ? AND period_end = ?)`,
		string(closureType), formatTime(start), formatTime(end)).Scan(&exists)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to check closure existence", err)
	}
	return exists, nil
}

// InsertClosure stores a bulletin. The UNIQUE(closure_type, period_start,
// period_end) constraint rejects a second bulletin for the same period.
func (s *Store) InsertClosure(ctx context.Context, b domain.ClosureBulletin) error {
	vatJSON, err := json.Marshal(b.VATBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode vat breakdown: %w", err)
	}
	paymentsJSON, err := json.Marshal(b.PaymentMethodsBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode payment methods breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO closure_bulletins (`+closureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ClosureID, string(b.ClosureType), formatTime(b.PeriodStart), formatTime(b.PeriodEnd),
		b.TotalTransactions, domain.FormatAmount(b.TotalAmount), domain.FormatAmount(b.TotalVAT),
		string(vatJSON), string(paymentsJSON),
		domain.FormatAmount(b.TipsTotal), domain.FormatAmount(b.ChangeTotal),
		b.FirstSequence, b.LastSequence, b.ClosureHash, b.IsClosed,
		formatTime(b.ClosedAt), formatTime(b.CreatedAt))
	if err != nil {
		return mapWriteError(err, "closure "+string(b.ClosureType))
	}
	return nil
}

func scanClosure(row rowScanner) (domain.ClosureBulletin, error) {
	var (
		b                                        domain.ClosureBulletin
		closureType, start, end                  string
		totalAmount, totalVAT, tips, change      string
		vatJSON, paymentsJSON, closedAt, created string
	)
	if err := row.Scan(&b.ClosureID, &closureType, &start, &end, &b.TotalTransactions, &totalAmount,
		&totalVAT, &vatJSON, &paymentsJSON, &tips, &change, &b.FirstSequence,
		&b.LastSequence, &b.ClosureHash, &b.IsClosed, &closedAt, &created); err != nil {
		return domain.ClosureBulletin{}, err
	}
	b.ClosureType = domain.ClosureType(closureType)

	var err error
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&b.PeriodStart, start}, {&b.PeriodEnd, end}, {&b.ClosedAt, closedAt}, {&b.CreatedAt, created}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return domain.ClosureBulletin{}, fmt.Errorf("closure %s: %w", b.ClosureID, err)
		}
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&b.TotalAmount, totalAmount}, {&b.TotalVAT, totalVAT}, {&b.TipsTotal, tips}, {&b.ChangeTotal, change}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return domain.ClosureBulletin{}, fmt.Errorf("closure %s: %w", b.ClosureID, err)
		}
	}
	if err := json.Unmarshal([]byte(vatJSON), &b.VATBreakdown); err != nil {
		return domain.ClosureBulletin{}, fmt.Errorf("closure %s vat breakdown: %w", b.ClosureID, err)
	}
	if err := json.Unmarshal([]byte(paymentsJSON), &b.PaymentMethodsBreakdown); err != nil {
		return domain.ClosureBulletin{}, fmt.Errorf("closure %s payment breakdown: %w", b.ClosureID, err)
	}
	return b, nil
}

// FindClosureByID retrieves a bulletin.
func (s *Store) FindClosureByID(ctx context.Context, closureID string) (*domain.ClosureBulletin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+closureColumns+` FROM closure_bulletins WHERE closure_id = ?`, closureID)
	b, err := scanClosure(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("closure " + closureID)
		}
		return nil, apperrors.NewAppError(500, "failed to fetch closure", err)
	}
	return &b, nil
}

// ListClosures returns the most recent bulletins first.
func (s *Store) ListClosures(ctx context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+closureColumns+` FROM closure_bulletins
		WHERE (? = '' OR closure_type = ?)
		ORDER BY period_start DESC, created_at DESC LIMIT ?`,
		string(closureType), string(closureType), limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list closures", err)
	}
	defer rows.Close()

	var out []domain.ClosureBulletin
	for rows.Next() {
		b, err := scanClosure(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan closure", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to read closures", err)
	}
	return out, nil
}
