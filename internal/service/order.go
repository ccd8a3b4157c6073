package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/repairhub/api/internal/blob"
	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/enum"
	"github.com/repairhub/api/internal/logger"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DB runs single statements and opens transactions. Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.GetOrderRow, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) (database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error
	ListOrderItemsByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.OrderItem, error)

	CreateOrderItemImage(ctx context.Context, arg database.CreateOrderItemImageParams) (database.OrderItemImage, error)
	DeleteOrderItemImage(ctx context.Context, arg database.DeleteOrderItemImageParams) error
	ListOrderItemImagesByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.OrderItemImage, error)
	CountImagesByStorageKey(ctx context.Context, storageKey string) (int64, error)

	GetOrderSummary(ctx context.Context, arg database.GetOrderSummaryParams) (database.GetOrderSummaryRow, error)
	GetApplianceSummary(ctx context.Context, arg database.GetApplianceSummaryParams) ([]database.GetApplianceSummaryRow, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// KindCatalog validates appliance kinds. Satisfied by *catalog.Catalog.
type KindCatalog interface {
	Valid(code string) bool
	Label(code string) string
}

// ItemInput is one line item in a create or update payload. On update, nil
// fields keep the stored value; on create they take the defaults
// (quantity 1, unit_price 0, empty details).
type ItemInput struct {
	ID            *uuid.UUID
	ClientKey     string
	ApplianceKind *string
	Details       *string
	Quantity      *int32
	UnitPrice     *decimal.Decimal
	// KeepImageIDs lists the existing images to keep. nil keeps all of them.
	KeepImageIDs *[]uuid.UUID
}

// ImageUpload is an uploaded file addressed to an item by its client_key
// (new items) or its id (existing items).
type ImageUpload struct {
	ItemKey  string
	Filename string
	Content  io.Reader
}

type CreateOrderRequest struct {
	Status string
	Items  []ItemInput
	Images []ImageUpload
}

// UpdateOrderRequest changes an order. A nil Items leaves the items as
// they are; a non-nil Items is the complete desired list.
type UpdateOrderRequest struct {
	Status *string
	Items  *[]ItemInput
	Images []ImageUpload
}

type ListOrdersRequest struct {
	Status  string
	OwnerID *uuid.UUID
	Limit   int32
	Offset  int32
}

type OrderDetail struct {
	Order         database.Order
	OwnerUsername string
	Items         []ItemDetail
}

type ItemDetail struct {
	Item   database.OrderItem
	Images []database.OrderItemImage
}

func (d *OrderDetail) Total() decimal.Decimal {
	return numericToDecimal(d.Order.TotalPrice)
}

// OrderService handles order business logic.
type OrderService struct {
	pool     DB
	newStore NewOrderStore
	blobs    blob.Store
	catalog  KindCatalog
	events   EventPublisher
}

// NewOrderService creates a new OrderService. events may be nil.
func NewOrderService(pool DB, newStore NewOrderStore, blobs blob.Store, catalog KindCatalog, events EventPublisher) *OrderService {
	if events == nil {
		events = noopPublisher{}
	}
	return &OrderService{pool: pool, newStore: newStore, blobs: blobs, catalog: catalog, events: events}
}

// Create persists an order with its items and images in one transaction and
// prices it before commit. Non-staff callers always start at PENDING.
func (s *OrderService) Create(ctx context.Context, caller Caller, req CreateOrderRequest) (*OrderDetail, error) {
	if err := Authorize(caller, OpCreate, caller.UserID); err != nil {
		return nil, err
	}

	status := enum.OrderStatusPending
	if caller.IsStaff && req.Status != "" {
		st, err := ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}

	keys := make(map[string]int, len(req.Items))
	for i, in := range req.Items {
		if in.ID != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrItemIDOnCreate)
		}
		if err := s.validateItem(in, true); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		if in.ClientKey != "" {
			if _, dup := keys[in.ClientKey]; dup {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrDuplicateClientKey)
			}
			keys[in.ClientKey] = i
		}
	}
	uploads := make(map[int][]ImageUpload)
	for _, up := range req.Images {
		i, ok := keys[up.ItemKey]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnmatchedImage, up.ItemKey)
		}
		uploads[i] = append(uploads[i], up)
	}

	w := &writeTx{svc: s}
	detail, err := w.run(ctx, func(store OrderStore) (uuid.UUID, error) {
		order, err := store.CreateOrder(ctx, database.CreateOrderParams{
			OwnerID: caller.UserID,
			Status:  database.OrderStatus(status),
		})
		if err != nil {
			return uuid.Nil, mapStoreErr("create order", err, nil)
		}

		for i, in := range req.Items {
			item, err := store.CreateOrderItem(ctx, newItemParams(order.ID, in, int32(i)))
			if err != nil {
				return uuid.Nil, mapStoreErr(fmt.Sprintf("item[%d]: create", i), err, nil)
			}
			if err := w.attach(ctx, store, item.ID, 0, uploads[i]); err != nil {
				return uuid.Nil, err
			}
		}

		if err := reprice(ctx, store, order.ID); err != nil {
			return uuid.Nil, err
		}
		return order.ID, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, enum.EventOrderCreated, detail)
	return detail, nil
}

// Get returns one order. Non-staff callers may only read their own.
func (s *OrderService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*OrderDetail, error) {
	var detail *OrderDetail
	err := s.readSnapshot(ctx, func(store OrderStore) error {
		row, err := store.GetOrder(ctx, id)
		if err != nil {
			return mapStoreErr("get order", err, ErrOrderNotFound)
		}
		if err := Authorize(caller, OpRead, row.Order.OwnerID); err != nil {
			return err
		}
		details, err := loadDetails(ctx, store, []database.GetOrderRow{row})
		if err != nil {
			return err
		}
		detail = &details[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns orders newest first. Non-staff callers only see their own.
func (s *OrderService) List(ctx context.Context, caller Caller, req ListOrdersRequest) ([]OrderDetail, error) {
	if err := Authorize(caller, OpList, uuid.Nil); err != nil {
		return nil, err
	}

	params := database.ListOrdersParams{Limit: req.Limit, Offset: req.Offset}
	if params.Limit <= 0 {
		params.Limit = DefaultListLimit
	}
	if params.Limit > MaxListLimit {
		params.Limit = MaxListLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	if req.Status != "" {
		st, err := ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		params.Status = database.NullOrderStatus{OrderStatus: database.OrderStatus(st), Valid: true}
	}
	switch {
	case !caller.IsStaff:
		params.OwnerID = pgtype.UUID{Bytes: caller.UserID, Valid: true}
	case req.OwnerID != nil:
		params.OwnerID = pgtype.UUID{Bytes: *req.OwnerID, Valid: true}
	}

	var details []OrderDetail
	err := s.readSnapshot(ctx, func(store OrderStore) error {
		rows, err := store.ListOrders(ctx, params)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		headers := make([]database.GetOrderRow, len(rows))
		for i, r := range rows {
			headers[i] = database.GetOrderRow{Order: r.Order, OwnerUsername: r.OwnerUsername}
		}
		details, err = loadDetails(ctx, store, headers)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// readSnapshot runs fn in a read-only repeatable-read transaction so every
// statement in it sees the same committed state.
func (s *OrderService) readSnapshot(ctx context.Context, fn func(store OrderStore) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	return fn(s.newStore(tx))
}

func (s *OrderService) validateItem(in ItemInput, isNew bool) error {
	if in.ApplianceKind != nil {
		if !s.catalog.Valid(*in.ApplianceKind) {
			return fmt.Errorf("%w: %q", ErrInvalidApplianceKind, *in.ApplianceKind)
		}
	} else if isNew {
		return ErrMissingApplianceKind
	}
	if in.Quantity != nil && *in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if in.UnitPrice != nil && !validUnitPrice(*in.UnitPrice) {
		return ErrInvalidUnitPrice
	}
	return nil
}

func newItemParams(orderID uuid.UUID, in ItemInput, position int32) database.CreateOrderItemParams {
	p := database.CreateOrderItemParams{
		OrderID:   orderID,
		Quantity:  1,
		UnitPrice: decimalToNumeric(decimal.Zero),
		Position:  position,
	}
	if in.ApplianceKind != nil {
		p.ApplianceKind = *in.ApplianceKind
	}
	if in.Details != nil {
		p.Details = strings.TrimSpace(*in.Details)
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.UnitPrice != nil {
		p.UnitPrice = decimalToNumeric(*in.UnitPrice)
	}
	return p
}

// reprice recomputes the order total from the items currently stored and
// persists it. Runs inside the write transaction.
func reprice(ctx context.Context, store OrderStore, orderID uuid.UUID) error {
	items, err := store.ListOrderItemsByOrders(ctx, []uuid.UUID{orderID})
	if err != nil {
		return fmt.Errorf("list items for pricing: %w", err)
	}
	total := RecomputeTotal(linesOf(items))
	if _, err := store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:         orderID,
		TotalPrice: decimalToNumeric(total),
	}); err != nil {
		return mapStoreErr("update order total", err, ErrOrderNotFound)
	}
	return nil
}

// loadDetails attaches items and images to order headers with one query
// per table, preserving the header order.
func loadDetails(ctx context.Context, store OrderStore, headers []database.GetOrderRow) ([]OrderDetail, error) {
	details := make([]OrderDetail, len(headers))
	if len(headers) == 0 {
		return details, nil
	}
	ids := make([]uuid.UUID, len(headers))
	index := make(map[uuid.UUID]int, len(headers))
	for i, h := range headers {
		ids[i] = h.Order.ID
		index[h.Order.ID] = i
		details[i] = OrderDetail{Order: h.Order, OwnerUsername: h.OwnerUsername, Items: []ItemDetail{}}
	}

	items, err := store.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	images, err := store.ListOrderItemImagesByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list item images: %w", err)
	}

	byItem := make(map[uuid.UUID][]database.OrderItemImage)
	for _, img := range images {
		byItem[img.OrderItemID] = append(byItem[img.OrderItemID], img)
	}
	for _, it := range items {
		i, ok := index[it.OrderID]
		if !ok {
			continue
		}
		imgs := byItem[it.ID]
		if imgs == nil {
			imgs = []database.OrderItemImage{}
		}
		details[i].Items = append(details[i].Items, ItemDetail{Item: it, Images: imgs})
	}
	return details, nil
}

// writeTx runs one order write: a transaction, blob uploads made inside it,
// and blob cleanup once the outcome is known.
type writeTx struct {
	svc      *OrderService
	uploaded []string
	removed  []string
}

func (w *writeTx) run(ctx context.Context, fn func(store OrderStore) (uuid.UUID, error)) (*OrderDetail, error) {
	s := w.svc
	detail, err := func() (*OrderDetail, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		store := s.newStore(tx)
		id, err := fn(store)
		if err != nil {
			return nil, err
		}
		var detail *OrderDetail
		if id != uuid.Nil {
			row, err := store.GetOrder(ctx, id)
			if err != nil {
				return nil, mapStoreErr("reload order", err, ErrOrderNotFound)
			}
			details, err := loadDetails(ctx, store, []database.GetOrderRow{row})
			if err != nil {
				return nil, err
			}
			detail = &details[0]
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return detail, nil
	}()

	// Blobs referenced only by a rolled back write, or no longer referenced
	// after a committed one, are garbage.
	if err != nil {
		w.cleanup(context.WithoutCancel(ctx), w.uploaded)
		return nil, err
	}
	w.cleanup(context.WithoutCancel(ctx), w.removed)
	return detail, nil
}

// attach stores uploads and links them to itemID, numbering from start.
func (w *writeTx) attach(ctx context.Context, store OrderStore, itemID uuid.UUID, start int32, uploads []ImageUpload) error {
	for j, up := range uploads {
		obj, err := w.svc.blobs.Put(ctx, up.Filename, up.Content)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBlobStore, up.Filename, err)
		}
		w.uploaded = append(w.uploaded, obj.Key)
		if _, err := store.CreateOrderItemImage(ctx, database.CreateOrderItemImageParams{
			OrderItemID:  itemID,
			StorageKey:   obj.Key,
			OriginalName: up.Filename,
			SizeBytes:    obj.Size,
			Position:     start + int32(j),
		}); err != nil {
			return mapStoreErr("create item image", err, nil)
		}
	}
	return nil
}

func (w *writeTx) cleanup(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	store := w.svc.newStore(w.svc.pool)
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		n, err := store.CountImagesByStorageKey(ctx, key)
		if err != nil {
			logger.FromCtx(ctx).Warn("count blob references", zap.String("key", key), zap.Error(err))
			continue
		}
		if n > 0 {
			continue
		}
		if err := w.svc.blobs.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
			logger.FromCtx(ctx).Warn("delete unreferenced blob", zap.String("key", key), zap.Error(err))
		}
	}
}
