package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/api/middleware"
	"github.com/virtuline/virtuline-backend/api/responses"
	"github.com/virtuline/virtuline-backend/api/validators"
	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/pagination"
)

type purchaseRequest struct {
	Category     string  `json:"category" validate:"required"`
	SelectorCode string  `json:"selector_code" validate:"required"`
	Quantity     int     `json:"quantity"`
	Target       *string `json:"target,omitempty"`
	PriceCents   int     `json:"price_cents" validate:"required,gt=0"`
}

type terminalActionRequest struct {
	Action string `json:"action" validate:"required"`
}

type orderListResponse struct {
	Orders     []orders.OrderResponse `json:"orders"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// PurchaseOrder debits the caller's wallet and places the order with the
// routed vendor.
func PurchaseOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := enums.ParseOrderCategory(req.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}

		order, err := svc.Purchase(r.Context(), orders.PurchaseInput{
			UserID:       userID,
			Category:     category,
			SelectorCode: validators.SanitizeString(req.SelectorCode, 128),
			Quantity:     req.Quantity,
			Target:       req.Target,
			PriceCents:   req.PriceCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.ToOrderResponse(order))
	}
}

// GetOrder returns one of the caller's orders.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToOrderResponse(order))
	}
}

// ListOrders returns a cursor page of the caller's order history, newest
// first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		list, nextCursor, err := svc.List(r.Context(), orders.ListInput{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := orderListResponse{Orders: make([]orders.OrderResponse, 0, len(list)), NextCursor: nextCursor}
		for i := range list {
			payload.Orders = append(payload.Orders, orders.ToOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}

// OrderAction applies an explicit terminal action (cancel, refill, finish) to
// one of the caller's active orders.
func OrderAction(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req terminalActionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseTerminalAction(req.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		order, err := svc.TerminalAction(r.Context(), orders.TerminalActionInput{
			UserID:  userID,
			OrderID: orderID,
			Action:  action,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToOrderResponse(order))
	}
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return userID, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
