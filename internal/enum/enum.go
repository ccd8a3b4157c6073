package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
)

// ── Group C: Borderline (boolean column, string in tokens and logs) ──

const (
	UserRoleStaff    = "STAFF"
	UserRoleCustomer = "CUSTOMER"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ── Group B: Event names pushed over the websocket feed ──

const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

const (
	RoomStaff       = "staff"
	RoomCustomerPfx = "user:"
)
