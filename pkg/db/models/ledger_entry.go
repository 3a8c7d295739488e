package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// LedgerEntry records one immutable wallet movement. Balance before/after make
// refund accounting verifiable by ledger inspection alone. Append-only.
type LedgerEntry struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	// DeltaCents is positive for credits and negative for debits.
	DeltaCents         int                `gorm:"column:delta_cents;not null"`
	BalanceBeforeCents int                `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int                `gorm:"column:balance_after_cents;not null"`
	Reason             enums.LedgerReason `gorm:"column:reason;type:text;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
}
