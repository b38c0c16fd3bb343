package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/arula-ai/commerce-api/internal/domain/user"
)

type registerUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,strong_password"`
	FullName   string `json:"full_name" validate:"required"`
	PostalCode string `json:"postal_code" validate:"omitempty,postal_code"`
	BirthDate  string `json:"birth_date" validate:"omitempty,datetime=2006-01-02,age_bounds"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	PostalCode string    `json:"postal_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		PostalCode: u.PostalCode,
		CreatedAt:  u.CreatedAt,
	}
}

// RegisterUser creates an account.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	var birthDate time.Time
	if req.BirthDate != "" {
		birthDate, _ = time.Parse("2006-01-02", req.BirthDate)
	}

	u, err := h.users.Register(r.Context(), user.RegisterRequest{
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		PostalCode: req.PostalCode,
		BirthDate:  birthDate,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login verifies credentials and returns the account.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GetUser returns an account by ID.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
