package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arula-ai/commerce-api/internal/domain/order"
)

// Dispatcher queues order status notifications and delivers them from a
// fixed pool of background workers. Enqueueing never blocks the caller: when
// the queue is full the notification is dropped and logged.
type Dispatcher struct {
	repo   Repository
	sender Sender
	lg     *zap.Logger

	queue chan *Notification
	g     *errgroup.Group
	now   func() time.Time
}

var _ order.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with the given queue capacity.
func NewDispatcher(lg *zap.Logger, repo Repository, sender Sender, capacity int) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		sender: sender,
		lg:     lg,
		queue:  make(chan *Notification, capacity),
		now:    time.Now,
	}
}

// Start launches workers consuming the queue until Stop closes it. The
// context carries the delivery logger; its cancellation does not interrupt
// the workers, so notifications queued before shutdown still go out.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	ctx = context.WithoutCancel(ctx)
	d.g = &errgroup.Group{}
	for range workers {
		d.g.Go(func() error {
			return d.work(ctx)
		})
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (d *Dispatcher) Stop() error {
	close(d.queue)
	if d.g == nil {
		return nil
	}
	return d.g.Wait()
}

// OrderStatusChanged queues a notification describing the transition.
func (d *Dispatcher) OrderStatusChanged(o *order.Order, previous order.Status) {
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    o.UserID,
		OrderID:   o.ID,
		Subject:   fmt.Sprintf("Order %s is now %s", o.ID, o.Status),
		Body:      fmt.Sprintf("Your order moved from %s to %s.", previous, o.Status),
		CreatedAt: d.now(),
	}

	select {
	case d.queue <- n:
	default:
		// Queue full: notifications are best-effort, never backpressure
		// the order flow.
		d.lg.Warn("notification queue full, dropping",
			zap.String("order_id", o.ID),
			zap.String("status", o.Status.String()),
		)
	}
}

func (d *Dispatcher) work(ctx context.Context) error {
	for n := range d.queue {
		d.deliver(ctx, n)
	}
	return nil
}

// deliver persists the notification and hands it to the sender. Failures are
// logged, not returned: one bad notification must not stop the workers.
func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	lg := zctx.From(ctx)

	if err := d.repo.Create(ctx, n); err != nil {
		lg.Error("persist notification", zap.String("order_id", n.OrderID), zap.Error(err))
		return
	}
	if err := d.sender.Send(ctx, n); err != nil {
		lg.Error("send notification", zap.String("order_id", n.OrderID), zap.Error(err))
	}
}

// LogSender writes notifications to the service log. It is the default
// delivery channel when no external provider is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, n *Notification) error {
	zctx.From(ctx).Info("notification",
		zap.String("user_id", n.UserID),
		zap.String("order_id", n.OrderID),
		zap.String("subject", n.Subject),
	)
	return nil
}
