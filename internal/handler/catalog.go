package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/repairhub/api/internal/catalog"
)

// KindLister lists appliance kinds. Satisfied by *catalog.Catalog.
type KindLister interface {
	Kinds() []catalog.Kind
}

// CatalogHandler serves public reference data.
type CatalogHandler struct {
	kinds KindLister
}

func NewCatalogHandler(kinds KindLister) *CatalogHandler {
	return &CatalogHandler{kinds: kinds}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog/appliances", h.Appliances)
}

// Appliances handles GET /catalog/appliances.
func (h *CatalogHandler) Appliances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kinds.Kinds())
}
