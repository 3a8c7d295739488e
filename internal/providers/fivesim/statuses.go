package fivesim

import (
	"strings"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// statusTable maps 5sim activation statuses onto the canonical lifecycle.
var statusTable = map[string]enums.OrderStatus{
	"PENDING":  enums.OrderStatusPending,
	"RECEIVED": enums.OrderStatusProcessing,
	"FINISHED": enums.OrderStatusCompleted,
	"CANCELED": enums.OrderStatusCancelled,
	"TIMEOUT":  enums.OrderStatusExpired,
	"BANNED":   enums.OrderStatusFailed,
}

// MapStatus is total: unknown vendor statuses resolve to processing so a
// misread signal can never trigger a refund or a premature completion.
func MapStatus(vendorStatus string) enums.OrderStatus {
	if status, ok := statusTable[strings.ToUpper(strings.TrimSpace(vendorStatus))]; ok {
		return status
	}
	return enums.OrderStatusProcessing
}
