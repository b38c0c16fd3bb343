package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/arula-ai/commerce-api/internal/domain/inventory"
)

type adjustStockRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Delta     int    `json:"delta" validate:"required"`
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

func toStockResponse(s *inventory.StockLevel) stockResponse {
	return stockResponse{
		ProductID: s.ProductID,
		Available: s.Available,
		Reserved:  s.Reserved,
	}
}

// GetStock returns the stock level for a product.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	s, err := h.inventory.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(s))
}

// AdjustStock changes a product's available count by a signed delta.
// Requires an API key.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.inventory.Adjust(r.Context(), req.ProductID, req.Delta)
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(s))
}
