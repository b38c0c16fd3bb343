package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer order with its pricing breakdown and lifecycle status.
type Order struct {
	ID        string
	UserID    string
	Items     []OrderItem
	Status    Status
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a single line item. Discount is a percentage in [0, 100],
// expected but not enforced at this layer.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
