package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// Order tracks one vendor purchase from wallet debit through to a terminal
// canonical status. Rows are never deleted; terminal states are final.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Category        enums.OrderCategory `gorm:"column:category;type:text;not null"`
	Provider        enums.ProviderID    `gorm:"column:provider;type:text;not null"`
	ProviderOrderID string              `gorm:"column:provider_order_id;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	// VendorStatus is the last vendor-native status string applied to this
	// order; the idempotency guard compares incoming events against it.
	VendorStatus string `gorm:"column:vendor_status;not null;default:''"`
	// ChargedCents is set at purchase time and never mutated afterwards.
	ChargedCents   int             `gorm:"column:charged_cents;not null"`
	SelectorCode   string          `gorm:"column:selector_code;not null;default:''"`
	Quantity       int             `gorm:"column:quantity;not null;default:1"`
	Target         *string         `gorm:"column:target"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	RefundIssuedAt *time.Time      `gorm:"column:refund_issued_at"`
	ExpiresAt      *time.Time      `gorm:"column:expires_at;index"`
	Version        int             `gorm:"column:version;not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPayload reports whether fulfillment value was ever attached.
func (o *Order) HasPayload() bool {
	return len(o.Payload) > 0 && string(o.Payload) != "null"
}
