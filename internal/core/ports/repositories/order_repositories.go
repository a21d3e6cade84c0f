package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// OrderReader exposes the order collaborator's records. The fiscal core never writes orders.
type OrderReader interface {
	FindOrderByID(ctx context.Context, orderID int64) (*domain.Order, error)

	// ListSettledOrders returns completed or paid orders created within [start, end].
	ListSettledOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error)
}
