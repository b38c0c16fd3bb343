package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/arula-ai/commerce-api/internal/domain/notification"
	"github.com/arula-ai/commerce-api/internal/domain/user"
)

type notificationResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationResponse(n notification.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		OrderID:   n.OrderID,
		Subject:   n.Subject,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}
}

// ListUserNotifications returns the user's notifications, newest first.
func (h *Handler) ListUserNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.users.Get(r.Context(), id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		serverError(w, r, err)
		return
	}

	list, err := h.notifications.ListByUser(r.Context(), id)
	if err != nil {
		serverError(w, r, err)
		return
	}

	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}
