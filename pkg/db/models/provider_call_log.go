package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// ProviderCallLog is the telemetry row written for every vendor API call,
// successful or not. Write failures are swallowed by the caller.
type ProviderCallLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider   enums.ProviderID  `gorm:"column:provider;type:text;not null;index"`
	Operation  string            `gorm:"column:operation;not null"`
	Outcome    enums.CallOutcome `gorm:"column:outcome;type:text;not null"`
	DurationMS int64             `gorm:"column:duration_ms;not null"`
	UserID     *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Detail     *string           `gorm:"column:detail"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
