package esimgo

import (
	"strings"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// statusTable maps eSIM Go order statuses onto the canonical lifecycle.
// RELEASED means the profile is issued but not yet installed, which is still
// in-flight from the customer's point of view.
var statusTable = map[string]enums.OrderStatus{
	"PENDING":    enums.OrderStatusPending,
	"PROCESSING": enums.OrderStatusProcessing,
	"RELEASED":   enums.OrderStatusProcessing,
	"INSTALLED":  enums.OrderStatusCompleted,
	"COMPLETED":  enums.OrderStatusCompleted,
	"FAILED":     enums.OrderStatusFailed,
	"REVOKED":    enums.OrderStatusFailed,
	"CANCELLED":  enums.OrderStatusCancelled,
	"EXPIRED":    enums.OrderStatusExpired,
}

// MapStatus is total: unknown vendor statuses resolve to processing.
func MapStatus(vendorStatus string) enums.OrderStatus {
	if status, ok := statusTable[strings.ToUpper(strings.TrimSpace(vendorStatus))]; ok {
		return status
	}
	return enums.OrderStatusProcessing
}
