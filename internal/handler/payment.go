package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/arula-ai/commerce-api/internal/domain/order"
	"github.com/arula-ai/commerce-api/internal/domain/payment"
)

type chargeRequest struct {
	CardNumber string `json:"card_number" validate:"required,luhn"`
	Expiry     string `json:"expiry" validate:"required,card_expiry"`
	CVV        string `json:"cvv" validate:"required,cvv"`
	Holder     string `json:"holder" validate:"required"`
}

type paymentResponse struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	CardLast4 string          `json:"card_last4"`
	Status    payment.Status  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		CardLast4: p.CardLast4,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

// ChargeOrder captures a payment for a pending order and confirms it.
func (h *Handler) ChargeOrder(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.payments.Charge(r.Context(), chi.URLParam(r, "id"), payment.Card{
		Number: req.CardNumber,
		Expiry: req.Expiry,
		CVV:    req.CVV,
		Holder: req.Holder,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, payment.ErrOrderNotDue),
			errors.Is(err, payment.ErrAlreadyCharged):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, payment.ErrInvalidCardNumber),
			errors.Is(err, payment.ErrInvalidExpiry),
			errors.Is(err, payment.ErrCardExpired),
			errors.Is(err, payment.ErrInvalidCVV):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.writeStatusChangeError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// RefundOrder refunds a delivered order's payment.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Refund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound), errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, payment.ErrNotRefundable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			serverError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}
