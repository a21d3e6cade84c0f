package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

// Monetary columns are read as text so the aggregator parses them itself.
const orderColumns = `id, total_amount::text, total_tax::text, tax_amount::text, COALESCE(payment_method, ''),
	COALESCE(items, '[]'::jsonb), tips::text, change_amount::text, status, created_at`

// PgxOrderRepository reads the order collaborator's table.
type PgxOrderRepository struct {
	BaseRepository
}

func newPgxOrderRepository(pool *pgxpool.Pool) *PgxOrderRepository {
	return &PgxOrderRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.OrderReader = (*PgxOrderRepository)(nil)

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                                           domain.Order
		totalAmount, totalTax, taxAmt, tips, change *string
		items                                       []byte
	)
	if err := row.Scan(&o.ID, &totalAmount, &totalTax, &taxAmt, &o.PaymentMethod, &items,
		&tips, &change, &o.Status, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	o.TotalAmount = rawAmount(totalAmount)
	o.TotalTax = rawAmount(totalTax)
	o.TaxAmount = rawAmount(taxAmt)
	o.Tips = rawAmount(tips)
	o.Change = rawAmount(change)
	o.SetItemsJSON(items)
	return o, nil
}

func rawAmount(s *string) domain.RawAmount {
	if s == nil {
		return ""
	}
	return domain.RawAmount(*s)
}

// FindOrderByID retrieves an order.
func (r *PgxOrderRepository) FindOrderByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, err := scanOrder(r.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d", orderID))
		}
		return nil, apperrors.NewAppError(500, "failed to fetch order", err)
	}
	return &o, nil
}

// ListSettledOrders returns completed or paid orders created within [start, end], oldest first.
func (r *PgxOrderRepository) ListSettledOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE lower(status) IN ('completed', 'paid') AND created_at BETWEEN $1 AND $2
		ORDER BY id`, start, end)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list settled orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to read orders", err)
	}
	return out, nil
}
