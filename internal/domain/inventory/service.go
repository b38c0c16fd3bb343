package inventory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/arula-ai/commerce-api/internal/domain/order"
)

// Service exposes stock operations and adapts order items to reservation
// lines. It satisfies order.StockKeeper.
type Service struct {
	stock Repository
}

var _ order.StockKeeper = (*Service)(nil)

// NewService creates an inventory Service backed by the given repository.
func NewService(stock Repository) *Service {
	return &Service{stock: stock}
}

// Get returns the stock level for a product.
func (s *Service) Get(ctx context.Context, productID string) (*StockLevel, error) {
	return s.stock.Get(ctx, productID)
}

// Adjust changes the available count for a product by delta, creating the
// stock row when it does not exist yet.
func (s *Service) Adjust(ctx context.Context, productID string, delta int) (*StockLevel, error) {
	return s.stock.Adjust(ctx, productID, delta)
}

// Reserve moves stock from available to reserved for every order item.
func (s *Service) Reserve(ctx context.Context, items []order.OrderItem) error {
	if err := s.stock.Reserve(ctx, toLines(items)); err != nil {
		return errors.Wrap(err, "reserve")
	}
	return nil
}

// Release returns previously reserved stock to available.
func (s *Service) Release(ctx context.Context, items []order.OrderItem) error {
	if err := s.stock.Release(ctx, toLines(items)); err != nil {
		return errors.Wrap(err, "release")
	}
	return nil
}

func toLines(items []order.OrderItem) []Line {
	lines := make([]Line, len(items))
	for i, item := range items {
		lines[i] = Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}
