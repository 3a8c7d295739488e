package enums

import "fmt"

// LedgerReason explains why a wallet balance moved.
type LedgerReason string

const (
	LedgerReasonPurchaseDebit     LedgerReason = "purchase_debit"
	LedgerReasonPlacementReversal LedgerReason = "placement_reversal"
	LedgerReasonOrderRefund       LedgerReason = "order_refund"
	LedgerReasonWalletTopUp       LedgerReason = "wallet_topup"
	LedgerReasonManualCredit      LedgerReason = "manual_credit"
	LedgerReasonManualDebit       LedgerReason = "manual_debit"
	LedgerReasonPromotionBonus    LedgerReason = "promotion_bonus"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonPurchaseDebit,
	LedgerReasonPlacementReversal,
	LedgerReasonOrderRefund,
	LedgerReasonWalletTopUp,
	LedgerReasonManualCredit,
	LedgerReasonManualDebit,
	LedgerReasonPromotionBonus,
}

// String implements fmt.Stringer.
func (r LedgerReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known LedgerReason.
func (r LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsRefund reports whether entries with this reason count against the
// one-refund-per-order invariant.
func (r LedgerReason) IsRefund() bool {
	return r == LedgerReasonOrderRefund
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
