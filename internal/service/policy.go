package service

import "github.com/google/uuid"

// Caller is the authenticated identity an operation runs on behalf of.
type Caller struct {
	UserID  uuid.UUID
	IsStaff bool
}

type Operation string

const (
	OpCreate Operation = "create"
	OpList   Operation = "list"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpCancel Operation = "cancel"
	OpDelete Operation = "delete"
	OpReport Operation = "report"
)

// Authorize decides whether caller may run op against an order owned by
// ownerID. ownerID is ignored for create, list and report.
func Authorize(caller Caller, op Operation, ownerID uuid.UUID) error {
	switch op {
	case OpReport:
		if !caller.IsStaff {
			return ErrStaffOnly
		}
		return nil
	case OpCreate, OpList:
		return nil
	}
	if caller.IsStaff || caller.UserID == ownerID {
		return nil
	}
	return ErrNotOwner
}

// MaskUpdate drops fields the caller may not write. Dropped fields are
// ignored rather than rejected so the rest of the update still applies.
func MaskUpdate(caller Caller, req *UpdateOrderRequest) {
	if caller.IsStaff {
		return
	}
	req.Status = nil
}
