package orders

import (
	"encoding/json"

	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// Observation is one reconciliation event for an order: a poll result, a
// webhook body, or a forced expiry. The vendor-native status string drives the
// idempotency guard; Status is its canonical mapping.
type Observation struct {
	VendorStatus string
	Status       enums.OrderStatus
	Payload      json.RawMessage
}

// SkipReason explains why an observation produced no mutation.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipTerminal  SkipReason = "order already terminal"
	SkipDuplicate SkipReason = "vendor status unchanged"
)

// Decision is the outcome of evaluating an observation against an order. It is
// a plan, not a mutation: the caller persists NextStatus, VendorStatus and
// AttachPayload atomically, and issues the refund when RefundDue is set.
type Decision struct {
	Skip       SkipReason
	NextStatus enums.OrderStatus
	// AttachPayload is the fulfillment value to persist, nil to leave the
	// stored payload untouched.
	AttachPayload json.RawMessage
	// RefundDue is set when the order lands on failed/expired with no
	// payload ever delivered. Issuing the credit moves the order to
	// refunded in the same update.
	RefundDue bool
	// HeldForPayload is set when the vendor reported completion without any
	// delivered value; the order stays processing until value arrives or
	// the expiry path resolves it.
	HeldForPayload bool
}

// Evaluate applies the transition guards to one observation. It is pure; the
// caller is responsible for serializing evaluations per order.
func Evaluate(order *models.Order, obs Observation) Decision {
	if order.Status.IsFinal() {
		return Decision{Skip: SkipTerminal, NextStatus: order.Status}
	}
	if obs.VendorStatus != "" && obs.VendorStatus == order.VendorStatus {
		return Decision{Skip: SkipDuplicate, NextStatus: order.Status}
	}

	decision := Decision{NextStatus: obs.Status, AttachPayload: obs.Payload}
	hasPayload := order.HasPayload() || len(obs.Payload) > 0

	switch obs.Status {
	case enums.OrderStatusPending:
		// A vendor cannot move an order backwards.
		if order.Status == enums.OrderStatusProcessing {
			decision.NextStatus = enums.OrderStatusProcessing
		}
	case enums.OrderStatusProcessing:
		// no guard
	case enums.OrderStatusCompleted:
		if !hasPayload {
			decision.NextStatus = enums.OrderStatusProcessing
			decision.HeldForPayload = true
		}
	case enums.OrderStatusFailed, enums.OrderStatusExpired:
		decision.RefundDue = !hasPayload
	case enums.OrderStatusCancelled:
		// cancellation ends the order without touching the wallet; refunds
		// are reserved for failed/expired outcomes
	default:
		// refunded (or anything unexpected) is never vendor-driven; the
		// mapping layer guarantees this, but hold at processing if it slips.
		decision.NextStatus = enums.OrderStatusProcessing
	}
	return decision
}

// ForcedExpiry is the sweep's observation for an order the vendor never
// resolved. The synthetic vendor status keeps the idempotency guard sound if
// two sweep passes race.
func ForcedExpiry() Observation {
	return Observation{VendorStatus: "forced_expiry", Status: enums.OrderStatusExpired}
}
