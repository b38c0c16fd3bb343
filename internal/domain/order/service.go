package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Sentinel errors for order validation and lookup.
var (
	ErrEmptyItems       = fmt.Errorf("items required")
	ErrNotFound         = fmt.Errorf("order not found")
	ErrDuplicateRequest = fmt.Errorf("duplicate request in flight")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// StockKeeper reserves and releases inventory for order items.
type StockKeeper interface {
	Reserve(ctx context.Context, items []OrderItem) error
	Release(ctx context.Context, items []OrderItem) error
}

// Notifier is told about successful status changes. Implementations must not
// block; delivery happens out of band.
type Notifier interface {
	OrderStatusChanged(o *Order, previous Status)
}

// IdempotencyStore deduplicates order creation requests by client-supplied key.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

const idempotencyScope = "order-create"

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	UserID         string
	Items          []OrderItem
	IdempotencyKey string
}

// Service encapsulates the order lifecycle: creation with pricing, and
// status changes validated by the transition table.
type Service struct {
	orders   Repository
	stock    StockKeeper
	notifier Notifier
	idemp    IdempotencyStore

	now func() time.Time
}

// NewService creates an order Service. notifier and idemp may be nil, in
// which case status notifications and request deduplication are disabled.
func NewService(orders Repository, stock StockKeeper, notifier Notifier, idemp IdempotencyStore) *Service {
	return &Service{
		orders:   orders,
		stock:    stock,
		notifier: notifier,
		idemp:    idemp,
		now:      time.Now,
	}
}

// Create validates the request, prices the items, and persists a new order
// in draft. When an idempotency key is supplied and a previous request with
// the same key already created an order, that order is returned instead.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	if s.idemp != nil && req.IdempotencyKey != "" {
		locked, err := s.idemp.TryLock(ctx, idempotencyScope, req.IdempotencyKey)
		if err != nil {
			return nil, errors.Wrap(err, "idempotency lock")
		}
		if !locked {
			id, ok, err := s.idemp.Recall(ctx, idempotencyScope, req.IdempotencyKey)
			if err != nil {
				return nil, errors.Wrap(err, "idempotency recall")
			}
			if !ok {
				return nil, ErrDuplicateRequest
			}
			return s.Get(ctx, id)
		}
	}

	totals := ComputeTotals(req.Items)
	o := &Order{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Items:     req.Items,
		Status:    StatusDraft,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Shipping:  totals.Shipping,
		Total:     totals.Total,
		CreatedAt: s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if s.idemp != nil && req.IdempotencyKey != "" {
		if err := s.idemp.Remember(ctx, idempotencyScope, req.IdempotencyKey, o.ID); err != nil {
			return nil, errors.Wrap(err, "idempotency remember")
		}
	}

	return o, nil
}

// Get returns the order with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// ListByUser returns all orders placed by the given user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ChangeStatus applies a single requested transition to the order.
//
// The transition table is the only authority: a disallowed change fails with
// *InvalidTransitionError and nothing is persisted. Side effects are tied to
// specific edges: entering confirmed reserves stock, and cancelling an order
// that had stock reserved releases it. Every applied change is announced to
// the notifier.
func (s *Service) ChangeStatus(ctx context.Context, id string, target Status) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := o.Status
	next, err := Transition(previous, target)
	if err != nil {
		return nil, err
	}

	switch {
	case next == StatusConfirmed:
		if err := s.stock.Reserve(ctx, o.Items); err != nil {
			return nil, errors.Wrap(err, "reserve stock")
		}
	case next == StatusCancelled && stockHeld(previous):
		if err := s.stock.Release(ctx, o.Items); err != nil {
			return nil, errors.Wrap(err, "release stock")
		}
	}

	if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	o.Status = next
	o.UpdatedAt = s.now()
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(o, previous)
	}
	return o, nil
}

// Cancel requests a transition to cancelled. Whether the order may still be
// cancelled is decided by transition-table membership alone.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	return s.ChangeStatus(ctx, id, StatusCancelled)
}

// stockHeld reports whether an order in the given status has stock reserved.
// Reservation happens on the pending->confirmed edge and is consumed when
// the order ships.
func stockHeld(s Status) bool {
	return s == StatusConfirmed || s == StatusProcessing
}
