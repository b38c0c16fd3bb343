package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusCaptured Status = "captured"
	StatusRefunded Status = "refunded"
)

// Payment is a captured charge against an order. Only the last four digits
// of the card are retained.
type Payment struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	CardLast4 string
	Status    Status
	CreatedAt time.Time
}

// Repository defines persistence operations for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
