package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// PurchaseInput captures one wallet-funded purchase request. PriceCents is the
// storefront price already resolved by the pricing layer.
type PurchaseInput struct {
	UserID       uuid.UUID
	Category     enums.OrderCategory
	SelectorCode string
	Quantity     int
	Target       *string
	PriceCents   int
}

// ListInput carries cursor pagination for a user's order history.
type ListInput struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// TerminalActionInput is an explicit user/operator action against an active
// order.
type TerminalActionInput struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Action  enums.TerminalAction
}

// OrderResponse is the API-facing shape of an order.
type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Category        enums.OrderCategory `json:"category"`
	Provider        enums.ProviderID    `json:"provider"`
	ProviderOrderID string              `json:"provider_order_id"`
	Status          enums.OrderStatus   `json:"status"`
	ChargedCents    int                 `json:"charged_cents"`
	SelectorCode    string              `json:"selector_code"`
	Quantity        int                 `json:"quantity"`
	Target          *string             `json:"target,omitempty"`
	Payload         json.RawMessage     `json:"payload,omitempty"`
	RefundIssuedAt  *time.Time          `json:"refund_issued_at,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ToOrderResponse converts a persisted order into the API shape.
func ToOrderResponse(order *models.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID,
		Category:        order.Category,
		Provider:        order.Provider,
		ProviderOrderID: order.ProviderOrderID,
		Status:          order.Status,
		ChargedCents:    order.ChargedCents,
		SelectorCode:    order.SelectorCode,
		Quantity:        order.Quantity,
		Target:          order.Target,
		Payload:         order.Payload,
		RefundIssuedAt:  order.RefundIssuedAt,
		ExpiresAt:       order.ExpiresAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}
