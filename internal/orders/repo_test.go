package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  category TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_order_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  vendor_status TEXT NOT NULL DEFAULT '',
  charged_cents INTEGER NOT NULL,
  selector_code TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL DEFAULT 1,
  target TEXT,
  payload TEXT,
  refund_issued_at DATETIME,
  expires_at DATETIME,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func insertOrder(t *testing.T, conn *gorm.DB, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Category:        enums.OrderCategoryPhone,
		Provider:        enums.ProviderFiveSim,
		ProviderOrderID: uuid.NewString(),
		Status:          enums.OrderStatusPending,
		ChargedCents:    500,
		Quantity:        1,
		CreatedAt:       time.Now(),
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func TestRepositoryFindByProviderOrderID(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := insertOrder(t, conn, func(o *models.Order) {
		o.ProviderOrderID = "187001"
	})
	insertOrder(t, conn, func(o *models.Order) {
		o.Provider = enums.ProviderEsimGo
		o.ProviderOrderID = "187001"
	})

	found, err := repo.FindByProviderOrderID(ctx, enums.ProviderFiveSim, "187001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByProviderOrderID(ctx, enums.ProviderSmmStone, "187001")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySaveBumpsVersion(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := insertOrder(t, conn, nil)
	order.Status = enums.OrderStatusProcessing
	order.VendorStatus = "RECEIVED"

	require.NoError(t, repo.Save(ctx, order))
	assert.Equal(t, 1, order.Version)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	assert.Equal(t, "RECEIVED", stored.VendorStatus)
	assert.Equal(t, 1, stored.Version)
}

func TestRepositorySaveDetectsConcurrentModification(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := insertOrder(t, conn, nil)

	stale := *order
	order.Status = enums.OrderStatusProcessing
	require.NoError(t, repo.Save(ctx, order))

	stale.Status = enums.OrderStatusFailed
	err := repo.Save(ctx, &stale)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestRepositoryListByUserPaginates(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 4; i++ {
		insertOrder(t, conn, func(o *models.Order) {
			o.UserID = userID
			o.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}
	insertOrder(t, conn, nil) // different user

	page, err := repo.ListByUser(ctx, userID, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)

	last := page[len(page)-1]
	rest, err := repo.ListByUser(ctx, userID, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestRepositoryListExpiryCandidates(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now()

	pastExpiry := insertOrder(t, conn, func(o *models.Order) {
		expiry := now.Add(-time.Minute)
		o.ExpiresAt = &expiry
		o.Status = enums.OrderStatusProcessing
	})
	overCeiling := insertOrder(t, conn, func(o *models.Order) {
		o.CreatedAt = now.Add(-25 * time.Hour)
	})
	insertOrder(t, conn, func(o *models.Order) { // still inside its window
		expiry := now.Add(time.Hour)
		o.ExpiresAt = &expiry
	})
	insertOrder(t, conn, func(o *models.Order) { // terminal, never swept
		expiry := now.Add(-time.Minute)
		o.ExpiresAt = &expiry
		o.Status = enums.OrderStatusCompleted
	})
	insertOrder(t, conn, func(o *models.Order) { // other category
		expiry := now.Add(-time.Minute)
		o.ExpiresAt = &expiry
		o.Category = enums.OrderCategorySmm
	})

	candidates, err := repo.ListExpiryCandidates(ctx, enums.OrderCategoryPhone, now, 24*time.Hour, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	ids := []uuid.UUID{candidates[0].ID, candidates[1].ID}
	assert.Contains(t, ids, pastExpiry.ID)
	assert.Contains(t, ids, overCeiling.ID)
}
