package providers

import (
	"context"

	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/pkg/db/models"
)

type callLogRepository struct {
	db *gorm.DB
}

// NewCallLogRepository returns a call log repository bound to the provided database.
func NewCallLogRepository(db *gorm.DB) CallLogRepository {
	return &callLogRepository{db: db}
}

func (r *callLogRepository) Create(ctx context.Context, entry *models.ProviderCallLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
