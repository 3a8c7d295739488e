package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

type fakeOrderRepo struct {
	orders    map[uuid.UUID]*models.Order
	createErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrderRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrderRepo) FindByProviderOrderID(ctx context.Context, provider enums.ProviderID, providerOrderID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.Provider == provider && order.ProviderOrderID == providerOrderID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrderRepo) Save(ctx context.Context, order *models.Order) error {
	stored, ok := f.orders[order.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Version = stored.Version + 1
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID && len(out) < limit {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) ListExpiryCandidates(ctx context.Context, category enums.OrderCategory, now time.Time, ceiling time.Duration, limit int) ([]models.Order, error) {
	return nil, nil
}

type walletCall struct {
	kind   string
	amount int
	reason enums.LedgerReason
}

type fakeWallet struct {
	balance  int
	calls    []walletCall
	debitErr error
}

func (f *fakeWallet) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return f.balance, nil
}

func (f *fakeWallet) ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	return nil, "", nil
}

func (f *fakeWallet) Debit(ctx context.Context, input wallet.MovementInput) (*models.LedgerEntry, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	f.balance -= input.AmountCents
	f.calls = append(f.calls, walletCall{kind: "debit", amount: input.AmountCents, reason: input.Reason})
	return &models.LedgerEntry{}, nil
}

func (f *fakeWallet) Credit(ctx context.Context, input wallet.MovementInput) (*models.LedgerEntry, error) {
	f.balance += input.AmountCents
	f.calls = append(f.calls, walletCall{kind: "credit", amount: input.AmountCents, reason: input.Reason})
	return &models.LedgerEntry{}, nil
}

func (f *fakeWallet) RefundOrder(ctx context.Context, tx *gorm.DB, orderID, userID uuid.UUID, amountCents int) (*models.LedgerEntry, bool, error) {
	f.balance += amountCents
	f.calls = append(f.calls, walletCall{kind: "refund", amount: amountCents, reason: enums.LedgerReasonOrderRefund})
	return &models.LedgerEntry{}, true, nil
}

func (f *fakeWallet) HasRefund(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return false, nil
}

type scriptedProvider struct {
	id           enums.ProviderID
	enabled      bool
	placeResult  *providers.PlaceOrderResult
	placeErr     error
	terminateErr error
	terminated   []enums.TerminalAction
}

func (p *scriptedProvider) ID() enums.ProviderID           { return p.id }
func (p *scriptedProvider) Enabled() bool                  { return p.enabled }
func (p *scriptedProvider) MapSelector(code string) string { return code }

func (p *scriptedProvider) Balance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (p *scriptedProvider) Catalog(ctx context.Context) ([]providers.CatalogItem, error) {
	return nil, nil
}

func (p *scriptedProvider) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	if p.placeErr != nil {
		return nil, p.placeErr
	}
	return p.placeResult, nil
}

func (p *scriptedProvider) CheckStatus(ctx context.Context, vendorOrderID string) (*providers.StatusResult, error) {
	return &providers.StatusResult{VendorStatus: "PENDING", Status: enums.OrderStatusPending}, nil
}

func (p *scriptedProvider) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	p.terminated = append(p.terminated, action)
	return p.terminateErr
}

type recordedSchedule struct {
	orderID uuid.UUID
	at      time.Time
}

type fakeScheduler struct {
	scheduled []recordedSchedule
}

func (f *fakeScheduler) Schedule(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	f.scheduled = append(f.scheduled, recordedSchedule{orderID: orderID, at: at})
	return nil
}

type fixture struct {
	svc       Service
	repo      *fakeOrderRepo
	wallet    *fakeWallet
	provider  *scriptedProvider
	scheduler *fakeScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := &scriptedProvider{
		id:      enums.ProviderFiveSim,
		enabled: true,
		placeResult: &providers.PlaceOrderResult{
			VendorOrderID: "187001",
			Price:         decimal.NewFromFloat(4.5),
		},
	}
	registry, err := providers.NewRegistry(provider)
	require.NoError(t, err)

	repo := newFakeOrderRepo()
	fw := &fakeWallet{balance: 10_000}
	scheduler := &fakeScheduler{}

	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Wallet:   fw,
		Registry: registry,
		Routing: map[enums.OrderCategory]enums.ProviderID{
			enums.OrderCategoryPhone: enums.ProviderFiveSim,
		},
		Scheduler: scheduler,
		PollDelay: time.Minute,
		Logger:    logger.New(logger.Options{ServiceName: "orders-test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Now:       func() time.Time { return time.Unix(1_750_000_000, 0) },
	})
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, wallet: fw, provider: provider, scheduler: scheduler}
}

func TestPurchaseDebitsThenPlacesThenPersists(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	order, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       userID,
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "187001", order.ProviderOrderID)
	assert.Equal(t, 500, order.ChargedCents)
	assert.Equal(t, 9_500, fx.wallet.balance)

	require.Len(t, fx.wallet.calls, 1)
	assert.Equal(t, "debit", fx.wallet.calls[0].kind)
	assert.Equal(t, enums.LedgerReasonPurchaseDebit, fx.wallet.calls[0].reason)

	// phone orders get their first poll scheduled
	require.Len(t, fx.scheduler.scheduled, 1)
	assert.Equal(t, order.ID, fx.scheduler.scheduled[0].orderID)
}

func TestPurchaseVendorRejectionReversesDebit(t *testing.T) {
	fx := newFixture(t)
	fx.provider.placeErr = pkgerrors.New(pkgerrors.CodeVendorRejected, "no stock")

	_, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       uuid.New(),
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeVendorRejected, pkgerrors.As(err).Code())

	// debit then compensating credit, wallet net unchanged
	require.Len(t, fx.wallet.calls, 2)
	assert.Equal(t, "credit", fx.wallet.calls[1].kind)
	assert.Equal(t, enums.LedgerReasonPlacementReversal, fx.wallet.calls[1].reason)
	assert.Equal(t, 10_000, fx.wallet.balance)
	assert.Empty(t, fx.repo.orders)
}

func TestPurchaseInsufficientFundsNeverReachesVendor(t *testing.T) {
	fx := newFixture(t)
	fx.wallet.debitErr = pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance 0")

	_, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       uuid.New(),
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, pkgerrors.As(err).Code())
	assert.Empty(t, fx.wallet.calls)
	assert.Empty(t, fx.repo.orders)
}

func TestPurchaseValidation(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	cases := []PurchaseInput{
		{Category: enums.OrderCategoryPhone, SelectorCode: "us:tg", PriceCents: 1},
		{UserID: userID, Category: enums.OrderCategory("bogus"), SelectorCode: "us:tg", PriceCents: 1},
		{UserID: userID, Category: enums.OrderCategoryPhone, PriceCents: 1},
		{UserID: userID, Category: enums.OrderCategoryPhone, SelectorCode: "us:tg"},
		{UserID: userID, Category: enums.OrderCategorySmm, SelectorCode: "ig-likes", PriceCents: 1},
	}
	for _, input := range cases {
		_, err := fx.svc.Purchase(context.Background(), input)
		require.Error(t, err, "input %+v", input)
	}
	assert.Empty(t, fx.wallet.calls)
}

func TestPurchaseUnroutedCategory(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       uuid.New(),
		Category:     enums.OrderCategoryEsim,
		SelectorCode: "eu-10gb",
		PriceCents:   500,
	})
	require.Error(t, err)
	assert.Empty(t, fx.wallet.calls)
}

func TestPurchaseDisabledProvider(t *testing.T) {
	fx := newFixture(t)
	fx.provider.enabled = false

	_, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       uuid.New(),
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Empty(t, fx.wallet.calls)
}

func TestGetEnforcesOwnership(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	order, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       userID,
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.NoError(t, err)

	found, err := fx.svc.Get(context.Background(), userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = fx.svc.Get(context.Background(), uuid.New(), order.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestTerminalActionForwardsToVendor(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	order, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       userID,
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.NoError(t, err)

	_, err = fx.svc.TerminalAction(context.Background(), TerminalActionInput{
		UserID:  userID,
		OrderID: order.ID,
		Action:  enums.TerminalActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, []enums.TerminalAction{enums.TerminalActionCancel}, fx.provider.terminated)
}

func TestTerminalActionRejectsTerminalOrder(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	order, err := fx.svc.Purchase(context.Background(), PurchaseInput{
		UserID:       userID,
		Category:     enums.OrderCategoryPhone,
		SelectorCode: "us:tg",
		PriceCents:   500,
	})
	require.NoError(t, err)
	fx.repo.orders[order.ID].Status = enums.OrderStatusCompleted

	_, err = fx.svc.TerminalAction(context.Background(), TerminalActionInput{
		UserID:  userID,
		OrderID: order.ID,
		Action:  enums.TerminalActionCancel,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, fx.provider.terminated)
}
