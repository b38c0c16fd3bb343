// Package handler exposes the HTTP API. Handlers decode and validate
// requests, delegate to the domain services, and map domain errors onto
// HTTP status codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arula-ai/commerce-api/internal/domain/auth"
	"github.com/arula-ai/commerce-api/internal/domain/inventory"
	"github.com/arula-ai/commerce-api/internal/domain/notification"
	"github.com/arula-ai/commerce-api/internal/domain/order"
	"github.com/arula-ai/commerce-api/internal/domain/payment"
	"github.com/arula-ai/commerce-api/internal/domain/user"
)

// maxBodyBytes caps request bodies to keep JSON decoding bounded.
const maxBodyBytes = 1 << 20

// Handler carries the domain services behind the HTTP surface.
type Handler struct {
	users         *user.Service
	orders        *order.Service
	payments      *payment.Service
	inventory     *inventory.Service
	notifications notification.Repository
	verifier      *auth.Verifier
	validate      *validator.Validate
}

// NewHandler constructs a Handler. verifier may be nil, which leaves the
// administrative inventory endpoints rejecting every request.
func NewHandler(
	users *user.Service,
	orders *order.Service,
	payments *payment.Service,
	inv *inventory.Service,
	notifications notification.Repository,
	verifier *auth.Verifier,
	validate *validator.Validate,
) *Handler {
	return &Handler{
		users:         users,
		orders:        orders,
		payments:      payments,
		inventory:     inv,
		notifications: notifications,
		verifier:      verifier,
		validate:      validate,
	}
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// serverError logs the unexpected error and answers with a generic 500 so
// internals never leak to clients.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("handler error",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decode reads the JSON body into dst and runs the struct validators.
// A false return means the response was already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			writeError(w, http.StatusUnprocessableEntity, validationMessage(vErrs[0]))
			return false
		}
		writeError(w, http.StatusUnprocessableEntity, "validation failed")
		return false
	}
	return true
}

// validationMessage turns the first failed rule into a client-readable
// message without exposing validator internals.
func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "strong_password":
		return field + " must be at least 8 characters with upper case, lower case, and a digit"
	case "luhn":
		return field + " is not a valid card number"
	case "card_expiry":
		return field + " must be a valid MM/YY expiry in the future"
	case "cvv":
		return field + " must be a 3 or 4 digit code"
	case "postal_code":
		return field + " must be a 5 digit or ZIP+4 postal code"
	case "age_bounds":
		return field + " must correspond to an age between 18 and 120"
	case "gte":
		return field + " must be at least " + fe.Param()
	case "lte":
		return field + " must be at most " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "min":
		return field + " is too short"
	default:
		return field + " is invalid"
	}
}
