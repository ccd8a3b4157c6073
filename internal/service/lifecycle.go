package service

import (
	"strings"

	"github.com/repairhub/api/internal/enum"
)

var statusLabels = map[string]string{
	enum.OrderStatusPending:   "Pending",
	enum.OrderStatusCompleted: "Completed",
	enum.OrderStatusRejected:  "Rejected",
	enum.OrderStatusCancelled: "Cancelled",
}

// legacyStatuses maps names used by older clients onto the current set.
var legacyStatuses = map[string]string{
	"ON_GOING": enum.OrderStatusPending,
}

func IsTerminal(status string) bool {
	switch status {
	case enum.OrderStatusCompleted, enum.OrderStatusRejected, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// ParseStatus normalizes a client-supplied status. Matching is
// case-insensitive.
func ParseStatus(s string) (string, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := statusLabels[up]; ok {
		return up, nil
	}
	if mapped, ok := legacyStatuses[up]; ok {
		return mapped, nil
	}
	return "", ErrInvalidStatus
}

// ValidateTransition reports whether an order in from may move to to.
// Nothing leaves a terminal status, not even a write of the same value.
func ValidateTransition(from, to string) error {
	if IsTerminal(from) {
		return ErrOrderTerminal
	}
	if _, ok := statusLabels[to]; !ok {
		return ErrInvalidStatus
	}
	return nil
}

func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}
