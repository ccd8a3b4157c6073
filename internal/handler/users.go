package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/logger"
)

// UserStore defines the database methods needed by user handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	ListUsersByRole(ctx context.Context, isStaff bool) ([]database.User, error)
}

// UserHandler serves the staff-only user directory.
type UserHandler struct {
	store UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore) *UserHandler {
	return &UserHandler{store: store}
}

// RegisterRoutes registers user endpoints. Expected to be mounted at /users
// behind RequireStaff.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/customers", h.ListCustomers)
	r.Get("/staff", h.ListStaff)
}

// ListCustomers handles GET /users/customers.
func (h *UserHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListStaff handles GET /users/staff.
func (h *UserHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request, isStaff bool) {
	users, err := h.store.ListUsersByRole(r.Context(), isStaff)
	if err != nil {
		logger.FromCtx(r.Context()).Error("list users", zap.Bool("is_staff", isStaff), zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}
