package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arula-ai/commerce-api/internal/domain/auth"
)

// Routes mounts the API on a chi router. Health endpoints are registered
// by the caller so probes skip the API middleware chain.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(labelRoute)

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.RegisterUser)
		r.Post("/login", h.Login)
		r.Get("/users/{id}", h.GetUser)
		r.Get("/users/{id}/notifications", h.ListUserNotifications)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/{id}/status", h.ChangeOrderStatus)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
		r.Post("/orders/{id}/payment", h.ChargeOrder)
		r.Post("/orders/{id}/refund", h.RefundOrder)

		r.Get("/inventory/{productID}", h.GetStock)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey)
			r.Post("/inventory/adjust", h.AdjustStock)
		})
	})

	return r
}

// labelRoute tags HTTP metrics with the matched route pattern so telemetry
// groups by route template instead of raw paths with IDs in them.
func labelRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		if pattern := rctx.RoutePattern(); pattern != "" {
			labeler, _ := otelhttp.LabelerFromContext(r.Context())
			labeler.Add(attribute.String("http.route", pattern))
		}
	})
}

// requireAPIKey guards administrative endpoints. The key is read from the
// Authorization bearer token or the X-API-Key header.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if key == "" || h.verifier == nil {
			writeError(w, http.StatusUnauthorized, "api key required")
			return
		}

		if _, err := h.verifier.Verify(r.Context(), key); err != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
