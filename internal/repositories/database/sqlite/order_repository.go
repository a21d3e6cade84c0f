package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

const orderColumns = `id, total_amount, total_tax, tax_amount, payment_method, items, tips, change_amount, status, created_at`

func nullableAmount(r domain.RawAmount) sql.NullString {
	if r.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(r), Valid: true}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                             domain.Order
		totalAmount, totalTax, taxAmt sql.NullString
		tips, change                  sql.NullString
		items, createdAt              string
	)
	if err := row.Scan(&o.ID, &totalAmount, &totalTax, &taxAmt, &o.PaymentMethod, &items,
		&tips, &change, &o.Status, &createdAt); err != nil {
		return domain.Order{}, err
	}
	o.TotalAmount = domain.RawAmount(totalAmount.String)
	o.TotalTax = domain.RawAmount(totalTax.String)
	o.TaxAmount = domain.RawAmount(taxAmt.String)
	o.Tips = domain.RawAmount(tips.String)
	o.Change = domain.RawAmount(change.String)
	o.SetItemsJSON([]byte(items))
	ts, err := parseTime(createdAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %d created_at: %w", o.ID, err)
	}
	o.CreatedAt = ts
	return o, nil
}

// AddOrder upserts an order record. Orders belong to the order collaborator;
// this exists for local development and tests.
func (s *Store) AddOrder(ctx context.Context, o domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	if o.Items == nil {
		items = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, nullableAmount(o.TotalAmount), nullableAmount(o.TotalTax), nullableAmount(o.TaxAmount),
		o.PaymentMethod, string(items), nullableAmount(o.Tips), nullableAmount(o.Change),
		o.Status, formatTime(o.CreatedAt))
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("order %d", o.ID))
	}
	return nil
}

// FindOrderByID retrieves an order.
func (s *Store) FindOrderByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d", orderID))
		}
		return nil, apperrors.NewAppError(500, "failed to fetch order", err)
	}
	return &o, nil
}

// ListSettledOrders returns completed or paid orders created within [start, end], oldest first.
func (s *Store) ListSettledOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE lower(status) IN ('completed', 'paid') AND created_at >= ? AND created_at <= ?
		ORDER BY id`, formatTime(start), formatTime(end))
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
