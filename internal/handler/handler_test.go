package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arula-ai/commerce-api/internal/domain/auth"
	"github.com/arula-ai/commerce-api/internal/domain/inventory"
	"github.com/arula-ai/commerce-api/internal/domain/notification"
	"github.com/arula-ai/commerce-api/internal/domain/order"
	"github.com/arula-ai/commerce-api/internal/domain/payment"
	"github.com/arula-ai/commerce-api/internal/domain/user"
	"github.com/arula-ai/commerce-api/internal/validate"
)

// In-memory repositories backing the services under test.

type memUsers struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[string]*user.User)} }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Get(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: make(map[string]*order.Order)} }

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

type memPayments struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{payments: make(map[string]*payment.Payment)}
}

func (m *memPayments) Create(_ context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPayments) GetByOrder(_ context.Context, orderID string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, payment.ErrNotFound
}

func (m *memPayments) UpdateStatus(_ context.Context, id string, status payment.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return payment.ErrNotFound
	}
	p.Status = status
	return nil
}

type memStock struct {
	mu     sync.Mutex
	levels map[string]*inventory.StockLevel
}

func newMemStock() *memStock {
	return &memStock{levels: make(map[string]*inventory.StockLevel)}
}

func (m *memStock) Get(_ context.Context, productID string) (*inventory.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.levels[productID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, inventory.ErrNotFound
}

func (m *memStock) Adjust(_ context.Context, productID string, delta int) (*inventory.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.levels[productID]
	if !ok {
		s = &inventory.StockLevel{ProductID: productID}
		m.levels[productID] = s
	}
	if s.Available+delta < 0 {
		return nil, inventory.ErrInsufficientStock
	}
	s.Available += delta
	cp := *s
	return &cp, nil
}

func (m *memStock) Reserve(_ context.Context, lines []inventory.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		s, ok := m.levels[l.ProductID]
		if !ok || s.Available < l.Quantity {
			return inventory.ErrInsufficientStock
		}
	}
	for _, l := range lines {
		s := m.levels[l.ProductID]
		s.Available -= l.Quantity
		s.Reserved += l.Quantity
	}
	return nil
}

func (m *memStock) Release(_ context.Context, lines []inventory.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		s, ok := m.levels[l.ProductID]
		if !ok {
			return inventory.ErrNotFound
		}
		s.Reserved -= l.Quantity
		s.Available += l.Quantity
	}
	return nil
}

type memNotifs struct {
	mu    sync.Mutex
	saved []notification.Notification
}

func (m *memNotifs) Create(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *n)
	return nil
}

func (m *memNotifs) ListByUser(_ context.Context, userID string) ([]notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.saved {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type memAPIKeys struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *memAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if info, ok := m.keys[hash]; ok {
		return info, nil
	}
	return nil, auth.ErrUnauthorized
}

const (
	testAPIKey = "admin-key"
	testPepper = "pepper"
)

type env struct {
	router http.Handler
	stock  *memStock
	orders *order.Service
	notifs *memNotifs
}

func newEnv(t *testing.T) *env {
	t.Helper()

	users := user.NewService(newMemUsers())
	stock := newMemStock()
	inv := inventory.NewService(stock)
	orders := order.NewService(newMemOrders(), inv, nil, nil)
	payments := payment.NewService(newMemPayments(), orders)

	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(testAPIKey))
	hash := hex.EncodeToString(mac.Sum(nil))
	verifier := auth.NewVerifier(&memAPIKeys{keys: map[string]*auth.APIKeyInfo{
		hash: {ID: "key-1", KeyHash: hash, Name: "admin"},
	}}, []byte(testPepper))

	notifs := &memNotifs{}
	h := NewHandler(users, orders, payments, inv, notifs, verifier, validate.New())
	return &env{router: h.Routes(), stock: stock, orders: orders, notifs: notifs}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) registerUser(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
		"email":     "jane@example.com",
		"password":  "Str0ngPass",
		"full_name": "Jane Doe",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func (e *env) placeOrder(t *testing.T, userID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": "sku-1", "quantity": 2, "unit_price": "10.00", "discount": "0"},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func TestRegisterUser(t *testing.T) {
	e := newEnv(t)

	t.Run("success", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":       "new@example.com",
			"password":    "Str0ngPass",
			"full_name":   "New User",
			"postal_code": "94107",
			"birth_date":  "1990-04-01",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "new@example.com")
		assert.NotContains(t, rec.Body.String(), "Str0ngPass")
	})

	t.Run("weak password", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":     "weak@example.com",
			"password":  "password",
			"full_name": "Weak",
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("bad postal code", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":       "zip@example.com",
			"password":    "Str0ngPass",
			"full_name":   "Zip",
			"postal_code": "9410",
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("future birth date", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":      "young@example.com",
			"password":   "Str0ngPass",
			"full_name":  "Young",
			"birth_date": time.Now().AddDate(5, 0, 0).Format("2006-01-02"),
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "age between 18 and 120")
	})

	t.Run("under age", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":      "teen@example.com",
			"password":   "Str0ngPass",
			"full_name":  "Teen",
			"birth_date": time.Now().AddDate(-17, 0, 0).Format("2006-01-02"),
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		payload := map[string]any{
			"email":     "dup@example.com",
			"password":  "Str0ngPass",
			"full_name": "Dup",
		}
		require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/users", payload, nil).Code)
		assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/api/users", payload, nil).Code)
	})
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t)

	rec := e.do(t, http.MethodPost, "/api/login", map[string]any{
		"email":    "jane@example.com",
		"password": "Str0ngPass",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/login", map[string]any{
		"email":    "jane@example.com",
		"password": "WrongPass1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUserNotifications(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)

	e.notifs.saved = []notification.Notification{
		{ID: "n1", UserID: userID, OrderID: "o1", Subject: "Order o1 is confirmed"},
		{ID: "n2", UserID: "someone-else", OrderID: "o2", Subject: "Order o2 is shipped"},
	}

	rec := e.do(t, http.MethodGet, "/api/users/"+userID+"/notifications", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp []struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
		Subject string `json:"subject"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "n1", resp[0].ID)
	assert.Equal(t, "o1", resp[0].OrderID)

	rec = e.do(t, http.MethodGet, "/api/users/missing/notifications", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)

	t.Run("success with totals", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
			"user_id": userID,
			"items": []map[string]any{
				{"product_id": "sku-1", "quantity": 2, "unit_price": "25.00", "discount": "10"},
				{"product_id": "sku-2", "quantity": 1, "unit_price": "50.00", "discount": "0"},
			},
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp orderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, order.StatusDraft, resp.Status)
		assert.Equal(t, "95", resp.Subtotal.String())
		assert.Equal(t, "7.6", resp.Tax.String())
		assert.Equal(t, "9.99", resp.Shipping.String())
		assert.Equal(t, "112.59", resp.Total.String())
	})

	t.Run("no items", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
			"user_id": userID,
			"items":   []map[string]any{},
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("zero quantity", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
			"user_id": userID,
			"items": []map[string]any{
				{"product_id": "sku-1", "quantity": 0, "unit_price": "10.00"},
			},
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
			"user_id": "nope",
			"items": []map[string]any{
				{"product_id": "sku-1", "quantity": 1, "unit_price": "10.00"},
			},
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)
	orderID := e.placeOrder(t, userID)
	_, err := e.stock.Adjust(context.Background(), "sku-1", 10)
	require.NoError(t, err)

	setStatus := func(status string) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, "/api/orders/"+orderID+"/status",
			map[string]any{"status": status}, nil)
	}

	require.Equal(t, http.StatusOK, setStatus("pending").Code)

	// Charging confirms the order and reserves stock.
	rec := e.do(t, http.MethodPost, "/api/orders/"+orderID+"/payment", map[string]any{
		"card_number": "4242 4242 4242 4242",
		"expiry":      "12/49",
		"cvv":         "123",
		"holder":      "Jane Doe",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	level, err := e.stock.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 8, level.Available)
	assert.Equal(t, 2, level.Reserved)

	// Double charge rejected.
	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/payment", map[string]any{
		"card_number": "4242 4242 4242 4242",
		"expiry":      "12/49",
		"cvv":         "123",
		"holder":      "Jane Doe",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, setStatus("processing").Code)
	require.Equal(t, http.StatusOK, setStatus("shipped").Code)

	// Shipped orders cannot be cancelled.
	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot transition order from shipped to cancelled")

	require.Equal(t, http.StatusOK, setStatus("delivered").Code)

	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/refund", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"refunded"`)

	// A second refund has nowhere to go.
	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/refund", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChargeValidation(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)
	orderID := e.placeOrder(t, userID)

	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "luhn failure",
			body: map[string]any{
				"card_number": "4242424242424241",
				"expiry":      "12/49",
				"cvv":         "123",
				"holder":      "Jane Doe",
			},
		},
		{
			name: "expired card",
			body: map[string]any{
				"card_number": "4242424242424242",
				"expiry":      "01/20",
				"cvv":         "123",
				"holder":      "Jane Doe",
			},
		},
		{
			name: "bad cvv",
			body: map[string]any{
				"card_number": "4242424242424242",
				"expiry":      "12/49",
				"cvv":         "12",
				"holder":      "Jane Doe",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/orders/"+orderID+"/payment", tt.body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}
}

func TestCancelReleasesStock(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)
	orderID := e.placeOrder(t, userID)
	_, err := e.stock.Adjust(context.Background(), "sku-1", 5)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.orders.ChangeStatus(ctx, orderID, order.StatusPending)
	require.NoError(t, err)
	_, err = e.orders.ChangeStatus(ctx, orderID, order.StatusConfirmed)
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	level, err := e.stock.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 5, level.Available)
	assert.Equal(t, 0, level.Reserved)
}

func TestConfirmWithoutStock(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)
	orderID := e.placeOrder(t, userID)

	_, err := e.orders.ChangeStatus(context.Background(), orderID, order.StatusPending)
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/orders/"+orderID+"/status",
		map[string]any{"status": "confirmed"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The failed reservation left the order untouched.
	got := e.do(t, http.MethodGet, "/api/orders/"+orderID, nil, nil)
	assert.Contains(t, got.Body.String(), `"status":"pending"`)
}

func TestUnknownStatus(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)
	orderID := e.placeOrder(t, userID)

	rec := e.do(t, http.MethodPost, "/api/orders/"+orderID+"/status",
		map[string]any{"status": "teleported"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	e := newEnv(t)

	t.Run("adjust requires api key", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/inventory/adjust", map[string]any{
			"product_id": "sku-9", "delta": 5,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = e.do(t, http.MethodPost, "/api/inventory/adjust", map[string]any{
			"product_id": "sku-9", "delta": 5,
		}, map[string]string{"X-API-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("adjust and read back", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/inventory/adjust", map[string]any{
			"product_id": "sku-9", "delta": 7,
		}, map[string]string{"Authorization": "Bearer " + testAPIKey})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = e.do(t, http.MethodGet, "/api/inventory/sku-9", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp stockResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 7, resp.Available)
	})

	t.Run("unknown product", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/inventory/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestIdempotentCreate(t *testing.T) {
	e := newEnv(t)
	userID := e.registerUser(t)

	body := map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": "sku-1", "quantity": 1, "unit_price": "10.00"},
		},
	}
	headers := map[string]string{"Idempotency-Key": "req-1"}

	// Without a store the key is ignored; both creates succeed with
	// distinct IDs.
	first := e.do(t, http.MethodPost, "/api/orders", body, headers)
	second := e.do(t, http.MethodPost, "/api/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
}
