package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/arula-ai/commerce-api/internal/domain/order"
)

// Sentinel errors for payment operations.
var (
	ErrNotFound       = fmt.Errorf("payment not found")
	ErrOrderNotDue    = fmt.Errorf("order is not awaiting payment")
	ErrNotRefundable  = fmt.Errorf("order is not refundable")
	ErrAlreadyCharged = fmt.Errorf("order already paid")
)

// OrderFlow is the slice of the order service the payment service drives:
// reading an order and requesting status transitions.
type OrderFlow interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	ChangeStatus(ctx context.Context, id string, target order.Status) (*order.Order, error)
}

// Service charges and refunds orders. It owns no pricing: the charge amount
// is always the order's stored total.
type Service struct {
	payments Repository
	orders   OrderFlow
	now      func() time.Time
}

// NewService creates a payment Service.
func NewService(payments Repository, orders OrderFlow) *Service {
	return &Service{payments: payments, orders: orders, now: time.Now}
}

// Charge validates the card, records a captured payment for the order's
// total, and advances the order from pending to confirmed. Orders in any
// other status are not awaiting payment.
func (s *Service) Charge(ctx context.Context, orderID string, card Card) (*Payment, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, ErrOrderNotDue
	}

	if _, err := s.payments.GetByOrder(ctx, orderID); err == nil {
		return nil, ErrAlreadyCharged
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check existing payment")
	}

	if err := card.Validate(s.now()); err != nil {
		return nil, err
	}

	p := &Payment{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Amount:    o.Total,
		CardLast4: card.Last4(),
		Status:    StatusCaptured,
		CreatedAt: s.now(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	if _, err := s.orders.ChangeStatus(ctx, orderID, order.StatusConfirmed); err != nil {
		return nil, errors.Wrap(err, "confirm order")
	}
	return p, nil
}

// Refund advances a delivered order to refunded and marks its payment
// accordingly. The transition table decides refundability: only delivered
// orders have refunded in their allowed-next set.
func (s *Service) Refund(ctx context.Context, orderID string) (*Payment, error) {
	p, err := s.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusRefunded {
		return nil, ErrNotRefundable
	}

	if _, err := s.orders.ChangeStatus(ctx, orderID, order.StatusRefunded); err != nil {
		var itErr *order.InvalidTransitionError
		if errors.As(err, &itErr) {
			return nil, ErrNotRefundable
		}
		return nil, errors.Wrap(err, "refund order")
	}

	if err := s.payments.UpdateStatus(ctx, p.ID, StatusRefunded); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	p.Status = StatusRefunded
	return p, nil
}
