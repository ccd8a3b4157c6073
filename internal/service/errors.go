package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Every error returned by the service wraps exactly one of
// these, so callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrExternal          = errors.New("external failure")
)

var (
	ErrInvalidStatus        = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidApplianceKind = fmt.Errorf("%w: invalid appliance_kind", ErrValidation)
	ErrMissingApplianceKind = fmt.Errorf("%w: appliance_kind is required", ErrValidation)
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	ErrInvalidUnitPrice     = fmt.Errorf("%w: unit_price must be >= 0 with at most 2 decimal places", ErrValidation)
	ErrDuplicateClientKey   = fmt.Errorf("%w: duplicate client_key", ErrValidation)
	ErrDuplicateItemID      = fmt.Errorf("%w: item listed twice", ErrValidation)
	ErrItemIDOnCreate       = fmt.Errorf("%w: new orders cannot reference existing items", ErrValidation)
	ErrUnknownItem          = fmt.Errorf("%w: item does not belong to this order", ErrValidation)
	ErrUnknownImage         = fmt.Errorf("%w: image does not belong to this item", ErrValidation)
	ErrUnmatchedImage       = fmt.Errorf("%w: image does not match any item", ErrValidation)
	ErrInvalidDateRange     = fmt.Errorf("%w: start must be before end", ErrValidation)
	ErrValueOutOfRange      = fmt.Errorf("%w: value out of range", ErrValidation)

	ErrNotOwner       = fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	ErrStaffOnly      = fmt.Errorf("%w: staff only", ErrForbidden)
	ErrDeleteTerminal = fmt.Errorf("%w: completed, rejected or cancelled orders cannot be deleted", ErrForbidden)

	ErrOrderTerminal = fmt.Errorf("%w: order is already closed", ErrInvalidTransition)

	ErrOrderNotFound = fmt.Errorf("%w: order not found", ErrNotFound)

	ErrBlobStore = fmt.Errorf("%w: image storage failed", ErrExternal)
)

// Kind names the error kind of err for API responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternal):
		return "external_failure"
	}
	return "internal"
}

// mapStoreErr turns storage errors that describe bad input into error kinds.
func mapStoreErr(step string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22003":
			return fmt.Errorf("%w (%s)", ErrValueOutOfRange, step)
		case "23505", "23514":
			return fmt.Errorf("%w: %s violates %s", ErrValidation, step, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", step, err)
}
