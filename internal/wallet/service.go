package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/pkg/db"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

// refundConstraint is the partial unique index that makes the per-order
// refund structurally exactly-once, independent of application checks.
const refundConstraint = "uq_ledger_entries_order_refund"

// Service defines wallet operations. Every movement is a row-locked
// read-modify-write on the balance plus one append-only ledger entry, both in
// the same transaction.
type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error)
	Debit(ctx context.Context, input MovementInput) (*models.LedgerEntry, error)
	Credit(ctx context.Context, input MovementInput) (*models.LedgerEntry, error)
	// RefundOrder credits an order's charge back at most once per order. It
	// joins the caller's transaction so the refund commits atomically with
	// the order's status flip. The boolean reports whether a refund was
	// issued now (false means one already existed).
	RefundOrder(ctx context.Context, tx *gorm.DB, orderID, userID uuid.UUID, amountCents int) (*models.LedgerEntry, bool, error)
	HasRefund(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MovementInput captures one wallet debit or credit.
type MovementInput struct {
	UserID      uuid.UUID
	AmountCents int
	Reason      enums.LedgerReason
	OrderID     *uuid.UUID
}

// ServiceParams wires the wallet service dependencies.
type ServiceParams struct {
	Repo Repository
	DB   TxRunner
}

type service struct {
	repo Repository
	db   TxRunner
}

// NewService validates dependencies and constructs the wallet service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{repo: params.Repo, db: params.DB}, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("user id is required")
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.BalanceCents, nil
}

func (s *service) ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	if userID == uuid.Nil {
		return nil, "", fmt.Errorf("user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	entries, err := s.repo.ListEntries(ctx, userID, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

func (s *service) Debit(ctx context.Context, input MovementInput) (*models.LedgerEntry, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}
	var entry *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.apply(ctx, tx, input.UserID, -input.AmountCents, input.Reason, input.OrderID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Credit(ctx context.Context, input MovementInput) (*models.LedgerEntry, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}
	var entry *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.apply(ctx, tx, input.UserID, input.AmountCents, input.Reason, input.OrderID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RefundOrder(ctx context.Context, tx *gorm.DB, orderID, userID uuid.UUID, amountCents int) (*models.LedgerEntry, bool, error) {
	if orderID == uuid.Nil {
		return nil, false, fmt.Errorf("order id is required")
	}
	if userID == uuid.Nil {
		return nil, false, fmt.Errorf("user id is required")
	}
	if amountCents <= 0 {
		return nil, false, fmt.Errorf("refund amount must be positive")
	}

	run := func(tx *gorm.DB) (*models.LedgerEntry, bool, error) {
		repo := s.repo.WithTx(tx)
		exists, err := repo.HasRefund(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		if exists {
			return nil, false, nil
		}
		entry, err := s.apply(ctx, tx, userID, amountCents, enums.LedgerReasonOrderRefund, &orderID)
		if err != nil {
			// A concurrent refund that slipped past the existence check
			// trips the partial unique index instead of double-crediting.
			if db.IsUniqueViolation(err, refundConstraint) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return entry, true, nil
	}

	if tx != nil {
		return run(tx)
	}

	var (
		entry  *models.LedgerEntry
		issued bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, issued, txErr = run(tx)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return entry, issued, nil
}

func (s *service) HasRefund(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	return s.repo.HasRefund(ctx, orderID)
}

// apply performs one balance movement under a row lock within tx.
func (s *service) apply(ctx context.Context, tx *gorm.DB, userID uuid.UUID, deltaCents int, reason enums.LedgerReason, orderID *uuid.UUID) (*models.LedgerEntry, error) {
	repo := s.repo.WithTx(tx)

	user, err := repo.FindUserForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	after := user.BalanceCents + deltaCents
	if after < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
			fmt.Sprintf("balance %d insufficient for debit of %d", user.BalanceCents, -deltaCents))
	}

	entry := &models.LedgerEntry{
		UserID:             userID,
		OrderID:            orderID,
		DeltaCents:         deltaCents,
		BalanceBeforeCents: user.BalanceCents,
		BalanceAfterCents:  after,
		Reason:             reason,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := repo.UpdateBalance(ctx, userID, after); err != nil {
		return nil, err
	}
	return entry, nil
}

func validateMovement(input MovementInput) error {
	if input.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if input.AmountCents <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !input.Reason.IsValid() {
		return fmt.Errorf("invalid ledger reason %q", input.Reason)
	}
	if input.Reason.IsRefund() {
		return fmt.Errorf("order refunds go through RefundOrder")
	}
	return nil
}
