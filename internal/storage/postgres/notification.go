package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arula-ai/commerce-api/internal/domain/notification"
)

const (
	createNotificationSQL = `INSERT INTO notifications (id, user_id, order_id, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listNotificationsByUserSQL = `SELECT id, user_id, order_id, subject, body, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
)

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notification.Repository backed by PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create persists a dispatched notification.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, createNotificationSQL,
		n.ID, n.UserID, n.OrderID, n.Subject, n.Body, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating notification %q: %w", n.ID, err)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := r.pool.Query(ctx, listNotificationsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for user %q: %w", userID, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.Notification, error) {
		var n notification.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.OrderID, &n.Subject, &n.Body, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing notifications for user %q: %w", userID, err)
	}
	return out, nil
}
