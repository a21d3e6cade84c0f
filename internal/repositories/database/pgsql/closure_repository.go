package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

const closureColumns = `closure_id, closure_type, period_start, period_end, total_transactions, total_amount,
	total_vat, vat_breakdown, payment_methods_breakdown, tips_total, change_total, first_sequence,
	last_sequence, closure_hash, is_closed, closed_at, created_at`

type PgxClosureRepository struct {
	BaseRepository
}

func newPgxClosureRepository(pool *pgxpool.Pool) *PgxClosureRepository {
	return &PgxClosureRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ClosureRepositoryFacade = (*PgxClosureRepository)(nil)

// ClosureExists reports whether a bulletin seals (closureType, start, end).
func (r *PgxClosureRepository) ClosureExists(ctx context.Context, closureType domain.ClosureType, start, end time.Time) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM closure_bulletins
			WHERE closure_type = $1 AND period_start = $2 AND period_end = $3
		)`, string(closureType), start, end).Scan(&exists)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to check closure existence", err)
	}
	return exists, nil
}

// InsertClosure stores a bulletin. The closure_bulletins_period_key unique
// constraint rejects a second bulletin for the same period.
func (r *PgxClosureRepository) InsertClosure(ctx context.Context, b domain.ClosureBulletin) error {
	vatJSON, err := json.Marshal(b.VATBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode vat breakdown: %w", err)
	}
	paymentsJSON, err := json.Marshal(b.PaymentMethodsBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode payment methods breakdown: %w", err)
	}

	_, err = r.Pool.Exec(ctx, `
		INSERT INTO closure_bulletins (`+closureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		b.ClosureID, string(b.ClosureType), b.PeriodStart, b.PeriodEnd, b.TotalTransactions,
		b.TotalAmount.StringFixed(2), b.TotalVAT.StringFixed(2), string(vatJSON), string(paymentsJSON),
		b.TipsTotal.StringFixed(2), b.ChangeTotal.StringFixed(2), b.FirstSequence, b.LastSequence,
		b.ClosureHash, b.IsClosed, b.ClosedAt, b.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, "closure "+string(b.ClosureType))
	}
	return nil
}

func scanClosure(row pgx.Row) (domain.ClosureBulletin, error) {
	var (
		b                     domain.ClosureBulletin
		closureType           string
		vatJSON, paymentsJSON []byte
	)
	if err := row.Scan(&b.ClosureID, &closureType, &b.PeriodStart, &b.PeriodEnd, &b.TotalTransactions,
		&b.TotalAmount, &b.TotalVAT, &vatJSON, &paymentsJSON, &b.TipsTotal, &b.ChangeTotal,
		&b.FirstSequence, &b.LastSequence, &b.ClosureHash, &b.IsClosed, &b.ClosedAt, &b.CreatedAt); err != nil {
		return domain.ClosureBulletin{}, err
	}
	b.ClosureType = domain.ClosureType(closureType)
	if err := json.Unmarshal(vatJSON, &b.VATBreakdown); err != nil {
		return domain.ClosureBulletin{}, fmt.Errorf("closure %s vat breakdown: %w", b.ClosureID, err)
	}
	if err := json.Unmarshal(paymentsJSON, &b.PaymentMethodsBreakdown); err != nil {
		return domain.ClosureBulletin{}, fmt.Errorf("closure %s payment breakdown: %w", b.ClosureID, err)
	}
	return b, nil
}

// FindClosureByID retrieves a bulletin.
func (r *PgxClosureRepository) FindClosureByID(ctx context.Context, closureID string) (*domain.ClosureBulletin, error) {
	b, err := scanClosure(r.Pool.QueryRow(ctx, `SELECT `+closureColumns+` FROM closure_bulletins WHERE closure_id = $1`, closureID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("closure " + closureID)
		}
		return nil, apperrors.NewAppError(500, "failed to fetch closure", err)
	}
	return &b, nil
}

// ListClosures returns the most recent bulletins first.
func (r *PgxClosureRepository) ListClosures(ctx context.Context, closureType domain.ClosureType, limit int) ([]domain.ClosureBulletin, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT `+closureColumns+` FROM closure_bulletins
		WHERE ($1 = '' OR closure_type = $1)
		ORDER BY period_start DESC, created_at DESC
		LIMIT $2`, string(closureType), limit)
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
