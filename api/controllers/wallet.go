package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/api/responses"
	"github.com/virtuline/virtuline-backend/api/validators"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

type walletBalanceResponse struct {
	BalanceCents int `json:"balance_cents"`
}

type ledgerEntryResponse struct {
	ID                 uuid.UUID          `json:"id"`
	OrderID            *uuid.UUID         `json:"order_id,omitempty"`
	DeltaCents         int                `json:"delta_cents"`
	BalanceBeforeCents int                `json:"balance_before_cents"`
	BalanceAfterCents  int                `json:"balance_after_cents"`
	Reason             enums.LedgerReason `json:"reason"`
	CreatedAt          time.Time          `json:"created_at"`
}

type ledgerListResponse struct {
	Entries    []ledgerEntryResponse `json:"entries"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// WalletBalance returns the caller's current wallet balance.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletBalanceResponse{BalanceCents: balance})
	}
}

// WalletLedger returns a cursor page of the caller's ledger entries, newest
// first. Every balance movement appears here, including order refunds.
func WalletLedger(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, nextCursor, err := svc.ListEntries(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := ledgerListResponse{Entries: make([]ledgerEntryResponse, 0, len(entries)), NextCursor: nextCursor}
		for i := range entries {
			payload.Entries = append(payload.Entries, toLedgerEntryResponse(&entries[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}

func toLedgerEntryResponse(entry *models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:                 entry.ID,
		OrderID:            entry.OrderID,
		DeltaCents:         entry.DeltaCents,
		BalanceBeforeCents: entry.BalanceBeforeCents,
		BalanceAfterCents:  entry.BalanceAfterCents,
		Reason:             entry.Reason,
		CreatedAt:          entry.CreatedAt,
	}
}
