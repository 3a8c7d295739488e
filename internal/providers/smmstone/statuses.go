package smmstone

import (
	"strings"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// statusTable maps panel statuses onto the canonical lifecycle. PARTIAL is
// terminal on the panel side with the delivered count in the payload, so it
// maps to completed. REFUNDED means the panel refunded its own charge, which
// from this side is a failed delivery.
var statusTable = map[string]enums.OrderStatus{
	"PENDING":     enums.OrderStatusPending,
	"IN PROGRESS": enums.OrderStatusProcessing,
	"PROCESSING":  enums.OrderStatusProcessing,
	"COMPLETED":   enums.OrderStatusCompleted,
	"PARTIAL":     enums.OrderStatusCompleted,
	"CANCELED":    enums.OrderStatusCancelled,
	"CANCELLED":   enums.OrderStatusCancelled,
	"REFUNDED":    enums.OrderStatusFailed,
	"ERROR":       enums.OrderStatusFailed,
	"FAIL":        enums.OrderStatusFailed,
}

// MapStatus is total: unknown vendor statuses resolve to processing.
func MapStatus(vendorStatus string) enums.OrderStatus {
	if status, ok := statusTable[strings.ToUpper(strings.TrimSpace(vendorStatus))]; ok {
		return status
	}
	return enums.OrderStatusProcessing
}
