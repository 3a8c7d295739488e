package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

// Service defines order-level operations: purchase, reads and explicit
// terminal actions. Background status changes go through the reconcile engine,
// never through this service.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, input ListInput) ([]models.Order, string, error)
	TerminalAction(ctx context.Context, input TerminalActionInput) (*models.Order, error)
}

// Reconciler applies one fresh vendor observation to an order. Implemented by
// the reconcile engine; narrowed here to avoid a dependency cycle.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID uuid.UUID) error
}

// PollScheduler enqueues the first status check for a freshly placed order.
type PollScheduler interface {
	Schedule(ctx context.Context, orderID uuid.UUID, at time.Time) error
}

// ServiceParams wires the orders service dependencies. Reconciler and
// Scheduler are optional; without them purchases still work, resolution then
// rides on the sweep.
type ServiceParams struct {
	Repo       Repository
	Wallet     wallet.Service
	Registry   *providers.Registry
	Routing    map[enums.OrderCategory]enums.ProviderID
	Reconciler Reconciler
	Scheduler  PollScheduler
	PollDelay  time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	wallet     wallet.Service
	registry   *providers.Registry
	routing    map[enums.OrderCategory]enums.ProviderID
	reconciler Reconciler
	scheduler  PollScheduler
	pollDelay  time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

// NewService validates dependencies and constructs the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if len(params.Routing) == 0 {
		return nil, fmt.Errorf("category routing required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	pollDelay := params.PollDelay
	if pollDelay <= 0 {
		pollDelay = time.Minute
	}
	return &service{
		repo:       params.Repo,
		wallet:     params.Wallet,
		registry:   params.Registry,
		routing:    params.Routing,
		reconciler: params.Reconciler,
		scheduler:  params.Scheduler,
		pollDelay:  pollDelay,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Purchase debits the wallet, places the vendor order, and persists the
// result. The debit commits before the vendor call so no lock is held while
// waiting on the network; a placement failure reverses the debit with a
// compensating credit.
func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*models.Order, error) {
	if err := validatePurchase(input); err != nil {
		return nil, err
	}
	provider, err := s.providerFor(input.Category)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	if _, err := s.wallet.Debit(ctx, wallet.MovementInput{
		UserID:      input.UserID,
		AmountCents: input.PriceCents,
		Reason:      enums.LedgerReasonPurchaseDebit,
	}); err != nil {
		return nil, err
	}

	placed, placeErr := provider.PlaceOrder(ctx, providers.PlaceOrderInput{
		UserID:       input.UserID,
		SelectorCode: input.SelectorCode,
		Quantity:     input.Quantity,
		Target:       input.Target,
	})
	if placeErr != nil {
		s.reverseDebit(ctx, input.UserID, input.PriceCents)
		return nil, placeErr
	}

	order := &models.Order{
		UserID:          input.UserID,
		Category:        input.Category,
		Provider:        provider.ID(),
		ProviderOrderID: placed.VendorOrderID,
		Status:          enums.OrderStatusPending,
		ChargedCents:    input.PriceCents,
		SelectorCode:    input.SelectorCode,
		Quantity:        normalizeQuantity(input.Quantity),
		Target:          input.Target,
		ExpiresAt:       placed.ExpiresAt,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		// The vendor order exists but the row does not; the charge stands
		// until an operator reconciles it by hand. Loud log, no rollback.
		s.logg.Error(s.logg.WithProvider(ctx, provider.ID().String()), "order persist failed after vendor placement", err)
		return nil, err
	}

	s.scheduleFirstPoll(ctx, order)
	return order, nil
}

func (s *service) reverseDebit(ctx context.Context, userID uuid.UUID, amountCents int) {
	if _, err := s.wallet.Credit(ctx, wallet.MovementInput{
		UserID:      userID,
		AmountCents: amountCents,
		Reason:      enums.LedgerReasonPlacementReversal,
	}); err != nil {
		s.logg.Error(ctx, "debit reversal failed after vendor rejection", err)
	}
}

func (s *service) scheduleFirstPoll(ctx context.Context, order *models.Order) {
	if s.scheduler == nil || order.Category != enums.OrderCategoryPhone {
		return
	}
	if err := s.scheduler.Schedule(ctx, order.ID, s.now().Add(s.pollDelay)); err != nil {
		// the sweep will pick the order up
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "first poll schedule failed")
	}
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Order, string, error) {
	if input.UserID == uuid.Nil {
		return nil, "", fmt.Errorf("user id is required")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	out, err := s.repo.ListByUser(ctx, input.UserID, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return out, next, nil
}

// TerminalAction forwards a finish/cancel/ban/refill request to the vendor,
// then reconciles once so the caller observes the resulting state.
func (s *service) TerminalAction(ctx context.Context, input TerminalActionInput) (*models.Order, error) {
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid terminal action %q", input.Action))
	}
	order, err := s.ownedOrder(ctx, input.UserID, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsFinal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is already %s", order.Status))
	}

	provider, err := s.registry.Get(order.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve provider")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := provider.Terminate(ctx, order.ProviderOrderID, input.Action); err != nil {
		return nil, err
	}

	if s.reconciler != nil {
		if err := s.reconciler.Reconcile(ctx, order.ID); err != nil {
			// the vendor accepted the action; polling or the sweep will
			// land the final status
			s.logg.Warn(ctx, "post-action reconcile failed")
		}
	}
	return s.repo.FindByID(ctx, order.ID)
}

func (s *service) ownedOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, fmt.Errorf("user id and order id are required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) providerFor(category enums.OrderCategory) (providers.Provider, error) {
	id, ok := s.routing[category]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no provider routes category %q", category))
	}
	provider, err := s.registry.Get(id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve provider")
	}
	if !provider.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("provider %s is disabled", id))
	}
	return provider, nil
}

func validatePurchase(input PurchaseInput) error {
	if input.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if !input.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid category %q", input.Category))
	}
	if input.SelectorCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "selector code is required")
	}
	if input.PriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.Category == enums.OrderCategorySmm && (input.Target == nil || *input.Target == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "target is required for smm orders")
	}
	return nil
}

func normalizeQuantity(quantity int) int {
	if quantity <= 0 {
		return 1
	}
	return quantity
}
