package inventory

import (
	"context"
	"fmt"
)

// StockLevel is the current inventory position for a product.
type StockLevel struct {
	ProductID string
	Available int
	Reserved  int
}

// Line is a (product, quantity) pair in a reservation request.
type Line struct {
	ProductID string
	Quantity  int
}

// Sentinel errors for inventory operations.
var (
	ErrNotFound          = fmt.Errorf("product not stocked")
	ErrInsufficientStock = fmt.Errorf("insufficient stock")
)

// Repository defines persistence operations for stock levels. Reserve and
// Release must apply all lines atomically: a single short line fails the
// whole request with ErrInsufficientStock and changes nothing.
type Repository interface {
	Get(ctx context.Context, productID string) (*StockLevel, error)
	Adjust(ctx context.Context, productID string, delta int) (*StockLevel, error)
	Reserve(ctx context.Context, lines []Line) error
	Release(ctx context.Context, lines []Line) error
}
