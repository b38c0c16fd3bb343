package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/arula-ai/commerce-api/internal/domain/inventory"
	"github.com/arula-ai/commerce-api/internal/domain/order"
	"github.com/arula-ai/commerce-api/internal/domain/user"
)

type orderItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	Discount  decimal.Decimal `json:"discount"`
}

type createOrderRequest struct {
	UserID string             `json:"user_id" validate:"required"`
	Items  []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Items     []order.OrderItem `json:"items"`
	Status    order.Status      `json:"status"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Tax       decimal.Decimal   `json:"tax"`
	Shipping  decimal.Decimal   `json:"shipping"`
	Total     decimal.Decimal   `json:"total"`
	CreatedAt time.Time         `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     o.Items,
		Status:    o.Status,
		Subtotal:  o.Subtotal,
		Tax:       o.Tax,
		Shipping:  o.Shipping,
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
	}
}

// CreateOrder places a new order in draft. Repeated requests carrying the
// same Idempotency-Key header return the first request's order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.users.Get(r.Context(), req.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "unknown user")
			return
		}
		serverError(w, r, err)
		return
	}

	items := make([]order.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:         req.UserID,
		Items:          items,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrEmptyItems):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, order.ErrDuplicateRequest):
			writeError(w, http.StatusConflict, err.Error())
		default:
			var qErr *order.InvalidQuantityError
			if errors.As(err, &qErr) {
				writeError(w, http.StatusUnprocessableEntity, qErr.Error())
				return
			}
			serverError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns an order by ID.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListOrders returns the orders of the user given by the user_id query
// parameter.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	list, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// ChangeOrderStatus applies a requested lifecycle transition.
func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	target := order.Status(req.Status)
	if !target.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "unknown status "+req.Status)
		return
	}

	o, err := h.orders.ChangeStatus(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		h.writeStatusChangeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder requests a transition to cancelled.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStatusChangeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) writeStatusChangeError(w http.ResponseWriter, r *http.Request, err error) {
	var itErr *order.InvalidTransitionError
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &itErr):
		writeError(w, http.StatusConflict, itErr.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, inventory.ErrInsufficientStock.Error())
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, inventory.ErrNotFound.Error())
	default:
		serverError(w, r, err)
	}
}
