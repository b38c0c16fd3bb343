package notification

import (
	"context"
	"time"
)

// Notification is a message queued for delivery to a user about an order
// status change.
type Notification struct {
	ID        string
	UserID    string
	OrderID   string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Repository persists a record of every dispatched notification.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
}

// Sender delivers a notification to the user. Implementations decide the
// channel (email, SMS, log).
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}
