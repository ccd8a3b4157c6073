package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/repairhub/api/internal/middleware"
	"github.com/repairhub/api/internal/service"
)

const (
	// imagePartPrefix names multipart file parts: "image:<client_key or item id>".
	imagePartPrefix = "image:"
	payloadPart     = "payload"
	multipartMemory = 8 << 20
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Create(ctx context.Context, caller service.Caller, req service.CreateOrderRequest) (*service.OrderDetail, error)
	Get(ctx context.Context, caller service.Caller, id uuid.UUID) (*service.OrderDetail, error)
	List(ctx context.Context, caller service.Caller, req service.ListOrdersRequest) ([]service.OrderDetail, error)
	Update(ctx context.Context, caller service.Caller, id uuid.UUID, req service.UpdateOrderRequest) (*service.OrderDetail, error)
	Cancel(ctx context.Context, caller service.Caller, id uuid.UUID) (*service.OrderDetail, error)
	Delete(ctx context.Context, caller service.Caller, id uuid.UUID) error
}

// MediaURLs resolves blob keys to public URLs. Satisfied by blob.Store.
type MediaURLs interface {
	URL(key string) string
}

// KindLabels resolves appliance kind codes. Satisfied by *catalog.Catalog.
type KindLabels interface {
	Label(code string) string
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	media     MediaURLs
	kinds     KindLabels
	maxUpload int64
}

// NewOrderHandler creates a new OrderHandler. maxUpload caps the request
// body of create and update calls.
func NewOrderHandler(svc OrderServicer, media MediaURLs, kinds KindLabels, maxUpload int64) *OrderHandler {
	return &OrderHandler{svc: svc, media: media, kinds: kinds, maxUpload: maxUpload}
}

// RegisterRoutes registers order endpoints. Expected to be mounted at /orders
// behind Authenticate.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type orderPayload struct {
	Status *string        `json:"status"`
	Items  *[]itemPayload `json:"items"`
}

type itemPayload struct {
	ID            *uuid.UUID       `json:"id"`
	ClientKey     string           `json:"client_key"`
	ApplianceKind *string          `json:"appliance_kind"`
	Details       *string          `json:"details"`
	Quantity      *int32           `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	KeepImageIDs  *[]uuid.UUID     `json:"keep_image_ids"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     uuid.UUID           `json:"owner_id"`
	OwnerName   string              `json:"owner_name"`
	Status      string              `json:"status"`
	StatusLabel string              `json:"status_label"`
	TotalPrice  string              `json:"total_price"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Items       []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID             uuid.UUID       `json:"id"`
	ApplianceKind  string          `json:"appliance_kind"`
	ApplianceLabel string          `json:"appliance_label"`
	Details        string          `json:"details"`
	Quantity       int32           `json:"quantity"`
	UnitPrice      string          `json:"unit_price"`
	LineTotal      string          `json:"line_total"`
	Position       int32           `json:"position"`
	Images         []imageResponse `json:"images"`
}

type imageResponse struct {
	ID           uuid.UUID `json:"id"`
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int32           `json:"limit"`
	Offset int32           `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	body, err := h.readOrderWrite(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	defer body.Close()

	req := service.CreateOrderRequest{Images: body.images}
	if body.payload.Status != nil {
		req.Status = *body.payload.Status
	}
	if body.payload.Items != nil {
		req.Items = toItemInputs(*body.payload.Items)
	}

	detail, err := h.svc.Create(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toOrderResponse(detail))
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := service.ListOrdersRequest{Status: q.Get("status")}

	req.Limit = service.DefaultListLimit
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			req.Limit = int32(min(v, service.MaxListLimit))
		}
	}
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			req.Offset = int32(min(v, 1<<30))
		}
	}
	if s := q.Get("owner"); s != "" {
		ownerID, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid owner ID")
			return
		}
		req.OwnerID = &ownerID
	}

	details, err := h.svc.List(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(details))
	for i := range details {
		resp[i] = h.toOrderResponse(&details[i])
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), caller, orderID)
	if err != nil {
		writeServiceError(w, r, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, h.toOrderResponse(detail))
}

// Update handles PUT and PATCH /orders/{id}. Omitted fields keep their
// stored values; a present items list replaces the order's items.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	body, err := h.readOrderWrite(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	defer body.Close()

	req := service.UpdateOrderRequest{Status: body.payload.Status, Images: body.images}
	if body.payload.Items != nil {
		items := toItemInputs(*body.payload.Items)
		req.Items = &items
	}

	detail, err := h.svc.Update(r.Context(), caller, orderID, req)
	if err != nil {
		writeServiceError(w, r, "update order", err)
		return
	}

	writeJSON(w, http.StatusOK, h.toOrderResponse(detail))
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Cancel(r.Context(), caller, orderID)
	if err != nil {
		writeServiceError(w, r, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, h.toOrderResponse(detail))
}

// Delete handles DELETE /orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), caller, orderID); err != nil {
		writeServiceError(w, r, "delete order", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Request body ---

// bodyError is a malformed request body, reported before the service runs.
type bodyError struct {
	status int
	msg    string
}

func (e *bodyError) Error() string { return e.msg }

func writeBodyError(w http.ResponseWriter, err error) {
	var be *bodyError
	if errors.As(err, &be) {
		writeError(w, be.status, kindValidation, be.msg)
		return
	}
	writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
}

// orderWrite is a decoded create or update body. Close releases uploaded
// files once the service is done reading them.
type orderWrite struct {
	payload orderPayload
	images  []service.ImageUpload
	files   []multipart.File
	form    *multipart.Form
}

func (b *orderWrite) Close() {
	for _, f := range b.files {
		f.Close()
	}
	if b.form != nil {
		b.form.RemoveAll() //nolint:errcheck
	}
}

// readOrderWrite accepts either a JSON body or multipart/form-data with a
// JSON "payload" part and "image:<key>" file parts.
func (h *OrderHandler) readOrderWrite(w http.ResponseWriter, r *http.Request) (*orderWrite, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	body := &orderWrite{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&body.payload); err != nil && !errors.Is(err, io.EOF) {
			if isTooLarge(err) {
				return nil, &bodyError{http.StatusRequestEntityTooLarge, "request body too large"}
			}
			return nil, &bodyError{http.StatusBadRequest, "invalid request body"}
		}
		return body, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, &bodyError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return nil, &bodyError{http.StatusBadRequest, "invalid multipart body"}
	}
	body.form = r.MultipartForm

	if vals := body.form.Value[payloadPart]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		if err := json.Unmarshal([]byte(vals[0]), &body.payload); err != nil {
			body.Close()
			return nil, &bodyError{http.StatusBadRequest, "invalid payload part"}
		}
	}

	parts := make([]string, 0, len(body.form.File))
	for name := range body.form.File {
		if strings.HasPrefix(name, imagePartPrefix) {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)

	for _, name := range parts {
		key := strings.TrimPrefix(name, imagePartPrefix)
		if key == "" {
			body.Close()
			return nil, &bodyError{http.StatusBadRequest, "image part must name an item"}
		}
		for _, fh := range body.form.File[name] {
			filename := filepath.Base(fh.Filename)
			if !allowedImageExts[strings.ToLower(filepath.Ext(filename))] {
				body.Close()
				return nil, &bodyError{http.StatusBadRequest, "unsupported image type: " + filename}
			}
			f, err := fh.Open()
			if err != nil {
				body.Close()
				return nil, &bodyError{http.StatusBadRequest, "unreadable image: " + filename}
			}
			body.files = append(body.files, f)
			body.images = append(body.images, service.ImageUpload{
				ItemKey:  key,
				Filename: filename,
				Content:  f,
			})
		}
	}
	return body, nil
}

func toItemInputs(items []itemPayload) []service.ItemInput {
	out := make([]service.ItemInput, len(items))
	for i, it := range items {
		out[i] = service.ItemInput{
			ID:            it.ID,
			ClientKey:     strings.TrimSpace(it.ClientKey),
			ApplianceKind: it.ApplianceKind,
			Details:       it.Details,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			KeepImageIDs:  it.KeepImageIDs,
		}
	}
	return out
}

// --- Helpers ---

func callerFrom(w http.ResponseWriter, r *http.Request) (service.Caller, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "not authenticated")
		return service.Caller{}, false
	}
	return service.Caller{UserID: claims.UserID, IsStaff: claims.IsStaff}, true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrderHandler) toOrderResponse(d *service.OrderDetail) orderResponse {
	status := string(d.Order.Status)
	resp := orderResponse{
		ID:          d.Order.ID,
		OwnerID:     d.Order.OwnerID,
		OwnerName:   d.OwnerUsername,
		Status:      status,
		StatusLabel: service.StatusLabel(status),
		TotalPrice:  d.Total().StringFixed(service.MoneyPlaces),
		CreatedAt:   d.Order.CreatedAt,
		UpdatedAt:   d.Order.UpdatedAt,
		Items:       make([]orderItemResponse, len(d.Items)),
	}

	for i, it := range d.Items {
		unit := service.NumericToDecimal(it.Item.UnitPrice)
		line := service.Line{Quantity: it.Item.Quantity, UnitPrice: unit}
		images := make([]imageResponse, len(it.Images))
		for j, img := range it.Images {
			images[j] = imageResponse{
				ID:           img.ID,
				URL:          h.media.URL(img.StorageKey),
				OriginalName: img.OriginalName,
				SizeBytes:    img.SizeBytes,
			}
		}
		resp.Items[i] = orderItemResponse{
			ID:             it.Item.ID,
			ApplianceKind:  it.Item.ApplianceKind,
			ApplianceLabel: h.kinds.Label(it.Item.ApplianceKind),
			Details:        it.Item.Details,
			Quantity:       it.Item.Quantity,
			UnitPrice:      unit.StringFixed(service.MoneyPlaces),
			LineTotal:      line.Total().StringFixed(service.MoneyPlaces),
			Position:       it.Item.Position,
			Images:         images,
		}
	}
	return resp
}
