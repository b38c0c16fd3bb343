package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arula-ai/commerce-api/internal/domain/order"
)

type mockPaymentRepo struct {
	byOrder map[string]*Payment
	updated []Status
}

func newMockPaymentRepo(payments ...*Payment) *mockPaymentRepo {
	m := &mockPaymentRepo{byOrder: make(map[string]*Payment)}
	for _, p := range payments {
		m.byOrder[p.OrderID] = p
	}
	return m
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.byOrder[p.OrderID] = p
	return nil
}

func (m *mockPaymentRepo) GetByOrder(_ context.Context, orderID string) (*Payment, error) {
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) UpdateStatus(_ context.Context, id string, status Status) error {
	for _, p := range m.byOrder {
		if p.ID == id {
			p.Status = status
		}
	}
	m.updated = append(m.updated, status)
	return nil
}

// mockOrderFlow applies the real transition table so payment tests exercise
// the same rules as production.
type mockOrderFlow struct {
	orders map[string]*order.Order
}

func newMockOrderFlow(orders ...*order.Order) *mockOrderFlow {
	m := &mockOrderFlow{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderFlow) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderFlow) ChangeStatus(_ context.Context, id string, target order.Status) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	next, err := order.Transition(o.Status, target)
	if err != nil {
		return nil, err
	}
	o.Status = next
	cp := *o
	return &cp, nil
}

func validCard() Card {
	return Card{Number: "4242424242424242", Expiry: "12/27", CVV: "123"}
}

func pendingOrder(id string) *order.Order {
	return &order.Order{
		ID:     id,
		Status: order.StatusPending,
		Total:  decimal.NewFromFloat(112.59),
	}
}

func newTestService(repo *mockPaymentRepo, flow *mockOrderFlow) *Service {
	s := NewService(repo, flow)
	s.now = func() time.Time { return testNow }
	return s
}

func TestService_Charge(t *testing.T) {
	flow := newMockOrderFlow(pendingOrder("o1"))
	repo := newMockPaymentRepo()
	svc := newTestService(repo, flow)

	p, err := svc.Charge(context.Background(), "o1", validCard())
	require.NoError(t, err)

	assert.Equal(t, StatusCaptured, p.Status)
	assert.Equal(t, "4242", p.CardLast4)
	assert.True(t, p.Amount.Equal(decimal.NewFromFloat(112.59)), "amount %s", p.Amount)
	assert.Equal(t, order.StatusConfirmed, flow.orders["o1"].Status)
}

func TestService_Charge_OrderNotDue(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusDraft
	svc := newTestService(newMockPaymentRepo(), newMockOrderFlow(o))

	_, err := svc.Charge(context.Background(), "o1", validCard())
	assert.ErrorIs(t, err, ErrOrderNotDue)
}

func TestService_Charge_InvalidCard(t *testing.T) {
	flow := newMockOrderFlow(pendingOrder("o1"))
	repo := newMockPaymentRepo()
	svc := newTestService(repo, flow)

	card := validCard()
	card.Expiry = "01/20"

	_, err := svc.Charge(context.Background(), "o1", card)
	assert.ErrorIs(t, err, ErrCardExpired)

	// No payment recorded and the order was not advanced.
	assert.Empty(t, repo.byOrder)
	assert.Equal(t, order.StatusPending, flow.orders["o1"].Status)
}

func TestService_Charge_AlreadyCharged(t *testing.T) {
	flow := newMockOrderFlow(pendingOrder("o1"))
	repo := newMockPaymentRepo(&Payment{ID: "pay1", OrderID: "o1", Status: StatusCaptured})
	svc := newTestService(repo, flow)

	_, err := svc.Charge(context.Background(), "o1", validCard())
	assert.ErrorIs(t, err, ErrAlreadyCharged)
}

func TestService_Refund(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusDelivered
	flow := newMockOrderFlow(o)
	repo := newMockPaymentRepo(&Payment{ID: "pay1", OrderID: "o1", Status: StatusCaptured})
	svc := newTestService(repo, flow)

	p, err := svc.Refund(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, StatusRefunded, p.Status)
	assert.Equal(t, order.StatusRefunded, flow.orders["o1"].Status)
}

func TestService_Refund_NotDelivered(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusShipped
	flow := newMockOrderFlow(o)
	repo := newMockPaymentRepo(&Payment{ID: "pay1", OrderID: "o1", Status: StatusCaptured})
	svc := newTestService(repo, flow)

	_, err := svc.Refund(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, order.StatusShipped, flow.orders["o1"].Status)
}

func TestService_Refund_AlreadyRefunded(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusRefunded
	flow := newMockOrderFlow(o)
	repo := newMockPaymentRepo(&Payment{ID: "pay1", OrderID: "o1", Status: StatusRefunded})
	svc := newTestService(repo, flow)

	_, err := svc.Refund(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrNotRefundable)
}
