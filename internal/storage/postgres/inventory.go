package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arula-ai/commerce-api/internal/domain/inventory"
)

const (
	getStockSQL = `SELECT product_id, available, reserved FROM stock_levels WHERE product_id = $1`

	adjustStockSQL = `INSERT INTO stock_levels (product_id, available, reserved)
		VALUES ($1, $2, 0)
		ON CONFLICT (product_id) DO UPDATE SET available = stock_levels.available + $2
		RETURNING product_id, available, reserved`

	reserveStockSQL = `UPDATE stock_levels
		SET available = available - $2, reserved = reserved + $2
		WHERE product_id = $1 AND available >= $2`

	releaseStockSQL = `UPDATE stock_levels
		SET available = available + $2, reserved = reserved - $2
		WHERE product_id = $1 AND reserved >= $2`
)

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Get returns the stock level for a product, or inventory.ErrNotFound.
func (r *InventoryRepository) Get(ctx context.Context, productID string) (*inventory.StockLevel, error) {
	var level inventory.StockLevel
	err := r.pool.QueryRow(ctx, getStockSQL, productID).
		Scan(&level.ProductID, &level.Available, &level.Reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock for %q: %w", productID, err)
	}
	return &level, nil
}

// Adjust changes the available count by delta, creating the row on first use.
func (r *InventoryRepository) Adjust(ctx context.Context, productID string, delta int) (*inventory.StockLevel, error) {
	var level inventory.StockLevel
	err := r.pool.QueryRow(ctx, adjustStockSQL, productID, delta).
		Scan(&level.ProductID, &level.Available, &level.Reserved)
	if err != nil {
		return nil, fmt.Errorf("adjusting stock for %q: %w", productID, err)
	}
	return &level, nil
}

// Reserve moves stock from available to reserved for every line in a single
// transaction. Any line with insufficient available stock rolls the whole
// reservation back with inventory.ErrInsufficientStock.
func (r *InventoryRepository) Reserve(ctx context.Context, lines []inventory.Line) error {
	return r.moveAll(ctx, reserveStockSQL, lines, inventory.ErrInsufficientStock)
}

// Release returns previously reserved stock to available, transactionally.
func (r *InventoryRepository) Release(ctx context.Context, lines []inventory.Line) error {
	return r.moveAll(ctx, releaseStockSQL, lines, inventory.ErrNotFound)
}

func (r *InventoryRepository) moveAll(ctx context.Context, sql string, lines []inventory.Line, missErr error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin stock tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, line := range lines {
		tag, err := tx.Exec(ctx, sql, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("moving stock for %q: %w", line.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return missErr
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit stock tx: %w", err)
	}
	return nil
}
