package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/repairhub/api/internal/blob"
	"github.com/repairhub/api/internal/catalog"
	"github.com/repairhub/api/internal/database"
)

// --- In-memory store ---

type memState struct {
	users  map[uuid.UUID]string
	orders map[uuid.UUID]database.Order
	items  map[uuid.UUID]database.OrderItem
	images map[uuid.UUID]database.OrderItemImage
}

func (s memState) clone() memState {
	c := memState{
		users:  make(map[uuid.UUID]string, len(s.users)),
		orders: make(map[uuid.UUID]database.Order, len(s.orders)),
		items:  make(map[uuid.UUID]database.OrderItem, len(s.items)),
		images: make(map[uuid.UUID]database.OrderItemImage, len(s.images)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.images {
		c.images[k] = v
	}
	return c
}

// memStore implements OrderStore over maps. A transaction snapshots the
// state on Begin and restores it on Rollback.
type memStore struct {
	mu    sync.Mutex
	st    memState
	snap  *memState
	clock time.Time
	calls map[string]int
	// failOn makes the n-th call (1-based) of a method fail.
	failOn map[string]failure
}

type failure struct {
	call int
	err  error
}

func newMemStore() *memStore {
	return &memStore{
		st:     memState{}.clone(),
		clock:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		calls:  map[string]int{},
		failOn: map[string]failure{},
	}
}

func (m *memStore) addUser(name string) uuid.UUID {
	id := uuid.New()
	m.st.users[id] = name
	return id
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) hit(method string) error {
	m.calls[method]++
	if f, ok := m.failOn[method]; ok && f.call == m.calls[method] {
		return f.err
	}
	return nil
}

func (m *memStore) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	m.snap = &snap
}

func (m *memStore) commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
}

func (m *memStore) rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap != nil {
		m.st = *m.snap
		m.snap = nil
	}
}

func (m *memStore) order(id uuid.UUID) database.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.orders[id]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.orders)
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	now := m.tick()
	o := database.Order{
		ID:         uuid.New(),
		OwnerID:    arg.OwnerID,
		Status:     arg.Status,
		TotalPrice: decimalToNumeric(decimal.Zero),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.st.orders[o.ID] = o
	return o, nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.GetOrderRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[id]
	if !ok {
		return database.GetOrderRow{}, pgx.ErrNoRows
	}
	return database.GetOrderRow{Order: o, OwnerUsername: m.st.users[o.OwnerID]}, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("GetOrderForUpdate"); err != nil {
		return database.Order{}, err
	}
	o, ok := m.st.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []database.ListOrdersRow
	for _, o := range m.st.orders {
		if arg.OwnerID.Valid && o.OwnerID != uuid.UUID(arg.OwnerID.Bytes) {
			continue
		}
		if arg.Status.Valid && o.Status != arg.Status.OrderStatus {
			continue
		}
		rows = append(rows, database.ListOrdersRow{Order: o, OwnerUsername: m.st.users[o.OwnerID]})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Order.CreatedAt.Equal(rows[j].Order.CreatedAt) {
			return rows[i].Order.CreatedAt.After(rows[j].Order.CreatedAt)
		}
		return rows[i].Order.ID.String() > rows[j].Order.ID.String()
	})
	start := min(int(arg.Offset), len(rows))
	end := min(start+int(arg.Limit), len(rows))
	return rows[start:end], nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = m.tick()
	m.st.orders[o.ID] = o
	return o, nil
}

func (m *memStore) UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.TotalPrice = arg.TotalPrice
	o.UpdatedAt = m.tick()
	m.st.orders[o.ID] = o
	return o, nil
}

func (m *memStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.orders, id)
	for itemID, it := range m.st.items {
		if it.OrderID == id {
			m.deleteItemLocked(itemID)
		}
	}
	return nil
}

func (m *memStore) deleteItemLocked(itemID uuid.UUID) {
	delete(m.st.items, itemID)
	for imgID, img := range m.st.images {
		if img.OrderItemID == itemID {
			delete(m.st.images, imgID)
		}
	}
}

func (m *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	if arg.Quantity <= 0 {
		return database.OrderItem{}, &pgconn.PgError{Code: "23514", ConstraintName: "order_items_quantity_check"}
	}
	if _, ok := m.st.orders[arg.OrderID]; !ok {
		return database.OrderItem{}, &pgconn.PgError{Code: "23503"}
	}
	now := m.tick()
	it := database.OrderItem{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		ApplianceKind: arg.ApplianceKind,
		Details:       arg.Details,
		Quantity:      arg.Quantity,
		UnitPrice:     arg.UnitPrice,
		Position:      arg.Position,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.st.items[it.ID] = it
	return it, nil
}

func (m *memStore) UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) (database.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.st.items[arg.ID]
	if !ok || it.OrderID != arg.OrderID {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	it.ApplianceKind = arg.ApplianceKind
	it.Details = arg.Details
	it.Quantity = arg.Quantity
	it.UnitPrice = arg.UnitPrice
	it.Position = arg.Position
	it.UpdatedAt = m.tick()
	m.st.items[it.ID] = it
	return it, nil
}

func (m *memStore) DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.st.items[arg.ID]; ok && it.OrderID == arg.OrderID {
		m.deleteItemLocked(arg.ID)
	}
	return nil
}

func (m *memStore) ListOrderItemsByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(orderIds))
	for _, id := range orderIds {
		want[id] = true
	}
	out := []database.OrderItem{}
	for _, it := range m.st.items {
		if want[it.OrderID] {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderID != out[j].OrderID {
			return out[i].OrderID.String() < out[j].OrderID.String()
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *memStore) CreateOrderItemImage(ctx context.Context, arg database.CreateOrderItemImageParams) (database.OrderItemImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("CreateOrderItemImage"); err != nil {
		return database.OrderItemImage{}, err
	}
	img := database.OrderItemImage{
		ID:           uuid.New(),
		OrderItemID:  arg.OrderItemID,
		StorageKey:   arg.StorageKey,
		OriginalName: arg.OriginalName,
		SizeBytes:    arg.SizeBytes,
		Position:     arg.Position,
		CreatedAt:    m.tick(),
	}
	m.st.images[img.ID] = img
	return img, nil
}

func (m *memStore) DeleteOrderItemImage(ctx context.Context, arg database.DeleteOrderItemImageParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.st.images[arg.ID]; ok && img.OrderItemID == arg.OrderItemID {
		delete(m.st.images, arg.ID)
	}
	return nil
}

func (m *memStore) ListOrderItemImagesByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.OrderItemImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(orderIds))
	for _, id := range orderIds {
		want[id] = true
	}
	out := []database.OrderItemImage{}
	for _, img := range m.st.images {
		if it, ok := m.st.items[img.OrderItemID]; ok && want[it.OrderID] {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderItemID != out[j].OrderItemID {
			return out[i].OrderItemID.String() < out[j].OrderItemID.String()
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *memStore) CountImagesByStorageKey(ctx context.Context, storageKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, img := range m.st.images {
		if img.StorageKey == storageKey {
			n++
		}
	}
	return n, nil
}

func inRange(t time.Time, start, end time.Time, hasStart, hasEnd bool) bool {
	if hasStart && t.Before(start) {
		return false
	}
	if hasEnd && !t.Before(end) {
		return false
	}
	return true
}

func (m *memStore) GetOrderSummary(ctx context.Context, arg database.GetOrderSummaryParams) (database.GetOrderSummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var row database.GetOrderSummaryRow
	revenue := decimal.Zero
	for _, o := range m.st.orders {
		if !inRange(o.CreatedAt, arg.StartDate.Time, arg.EndDate.Time, arg.StartDate.Valid, arg.EndDate.Valid) {
			continue
		}
		row.TotalOrders++
		switch o.Status {
		case database.OrderStatusCOMPLETED:
			row.Completed++
			revenue = revenue.Add(numericToDecimal(o.TotalPrice))
		case database.OrderStatusREJECTED:
			row.Rejected++
		case database.OrderStatusPENDING:
			row.Pending++
		case database.OrderStatusCANCELLED:
			row.Cancelled++
		}
	}
	row.TotalRevenue = decimalToNumeric(revenue)
	return row, nil
}

func (m *memStore) GetApplianceSummary(ctx context.Context, arg database.GetApplianceSummaryParams) ([]database.GetApplianceSummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := map[string]*database.GetApplianceSummaryRow{}
	revenue := map[string]decimal.Decimal{}
	for _, it := range m.st.items {
		o := m.st.orders[it.OrderID]
		if !inRange(o.CreatedAt, arg.StartDate.Time, arg.EndDate.Time, arg.StartDate.Valid, arg.EndDate.Valid) {
			continue
		}
		r, ok := agg[it.ApplianceKind]
		if !ok {
			r = &database.GetApplianceSummaryRow{ApplianceKind: it.ApplianceKind}
			agg[it.ApplianceKind] = r
		}
		r.ItemCount++
		r.Quantity += int64(it.Quantity)
		if o.Status == database.OrderStatusCOMPLETED {
			revenue[it.ApplianceKind] = revenue[it.ApplianceKind].Add(
				numericToDecimal(it.UnitPrice).Mul(decimal.NewFromInt32(it.Quantity)))
		}
	}
	out := []database.GetApplianceSummaryRow{}
	for kind, r := range agg {
		r.CompletedRevenue = decimalToNumeric(revenue[kind])
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemCount != out[j].ItemCount {
			return out[i].ItemCount > out[j].ItemCount
		}
		return out[i].ApplianceKind < out[j].ApplianceKind
	})
	return out, nil
}

// --- Transactions ---

// mockTx implements pgx.Tx on top of memStore snapshots.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	store     *memStore
	done      bool
	commitErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		m.store.rollback()
		m.done = true
		return m.commitErr
	}
	m.store.commit()
	m.done = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.done {
		m.store.rollback()
		m.done = true
	}
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockDB implements DB. Statements never reach it: the store factory
// ignores the DBTX it is given.
type mockDB struct {
	store     *memStore
	beginErr  error
	commitErr error
	txOptions []pgx.TxOptions
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	m.store.begin()
	return &mockTx{store: m.store, commitErr: m.commitErr}, nil
}

func (m *mockDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	m.txOptions = append(m.txOptions, opts)
	return m.Begin(ctx)
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

// --- Blob store ---

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	puts    int
	failPut int // 1-based Put call that fails; 0 never fails
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Put(ctx context.Context, filename string, r io.Reader) (blob.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failPut == b.puts {
		return blob.Object{}, fmt.Errorf("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Object{}, err
	}
	key := "blob/" + string(data)
	b.objects[key] = data
	return blob.Object{Key: key, Size: int64(len(data))}, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) URL(key string) string { return "/media/" + key }

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// --- Events ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// --- Fixture ---

type fixture struct {
	svc    *OrderService
	store  *memStore
	db     *mockDB
	blobs  *memBlobs
	events *recordingPublisher
	alice  Caller
	bob    Caller
	staff  Caller
}

func newFixture() *fixture {
	store := newMemStore()
	db := &mockDB{store: store}
	blobs := newMemBlobs()
	events := &recordingPublisher{}
	f := &fixture{
		store:  store,
		db:     db,
		blobs:  blobs,
		events: events,
		alice:  Caller{UserID: store.addUser("alice")},
		bob:    Caller{UserID: store.addUser("bob")},
		staff:  Caller{UserID: store.addUser("admin"), IsStaff: true},
	}
	newStore := func(database.DBTX) OrderStore { return store }
	f.svc = NewOrderService(db, newStore, blobs, catalog.Default(), events)
	return f
}
