package handler_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/handler"
	"github.com/repairhub/api/internal/middleware"
)

type mockUserStore struct {
	listUsersByRoleFn func(ctx context.Context, isStaff bool) ([]database.User, error)
}

func (m *mockUserStore) ListUsersByRole(ctx context.Context, isStaff bool) ([]database.User, error) {
	return m.listUsersByRoleFn(ctx, isStaff)
}

func setupUserRouter(store *mockUserStore) chi.Router {
	h := handler.NewUserHandler(store)
	r := chi.NewRouter()
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.Use(middleware.RequireStaff)
		h.RegisterRoutes(r)
	})
	return r
}

func TestListUsers_ByRole(t *testing.T) {
	store := &mockUserStore{
		listUsersByRoleFn: func(_ context.Context, isStaff bool) ([]database.User, error) {
			name := "customer"
			if isStaff {
				name = "staff"
			}
			return []database.User{{ID: uuid.New(), Username: name, IsStaff: isStaff, IsActive: true}}, nil
		},
	}
	r := setupUserRouter(store)
	token := accessToken(t, uuid.New(), true)

	tests := []struct {
		path string
		want string
	}{
		{"/users/customers", "customer"},
		{"/users/staff", "staff"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := doJSON(t, r, "GET", tt.path, token, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
			}
			if body := rr.Body.String(); !containsJSONField(body, "username", tt.want) {
				t.Errorf("body: %s", body)
			}
		})
	}
}

func TestListUsers_CustomerForbidden(t *testing.T) {
	store := &mockUserStore{
		listUsersByRoleFn: func(context.Context, bool) ([]database.User, error) {
			t.Fatal("store should not be called")
			return nil, nil
		},
	}
	r := setupUserRouter(store)

	rr := doJSON(t, r, "GET", "/users/customers", accessToken(t, uuid.New(), false), nil)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestListUsers_StoreError(t *testing.T) {
	store := &mockUserStore{
		listUsersByRoleFn: func(context.Context, bool) ([]database.User, error) {
			return nil, errors.New("db down")
		},
	}
	r := setupUserRouter(store)

	rr := doJSON(t, r, "GET", "/users/staff", accessToken(t, uuid.New(), true), nil)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func containsJSONField(body, field, value string) bool {
	return strings.Contains(body, `"`+field+`":"`+value+`"`)
}
