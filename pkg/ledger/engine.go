package ledger

import (
	"github.com/lendcore/loanledger/pkg/models"
	"github.com/shopspring/decimal"
)

// NewBalance applies a single ledger entry to a running balance and
// returns the new balance. The convention is debt-positive: a positive
// balance is money owed by the borrower.
//
// The amount is treated as a magnitude; its sign is discarded and the
// direction of the movement comes solely from the entry type.
// Disbursements, accrued interest, fees and penalties increase debt;
// received payments and adjustments (credits in the borrower's favor)
// decrease it. An unrecognized type leaves the balance unchanged.
//
// Overpayment is allowed: paying more than the current balance yields a
// negative balance (a credit owed back to the borrower), never an error.
func NewBalance(current, amount decimal.Decimal, entryType models.EntryType) decimal.Decimal {
	magnitude := amount.Abs()

	switch entryType {
	case models.EntryTypePrincipalDisbursed,
		models.EntryTypeInterestAccrued,
		models.EntryTypeFee,
		models.EntryTypePenalty:
		return current.Add(magnitude)
	case models.EntryTypePaymentReceived,
		models.EntryTypeAdjustment:
		return current.Sub(magnitude)
	default:
		return current
	}
}

// Outstanding derives a loan's outstanding balance from its total-payable
// snapshot and its approved payments:
//
//	outstanding = totalPayable - sum(payment amounts)
//
// The payments slice MUST already be filtered to approved payments; no
// filtering happens here. The result goes negative on overpayment. This
// is the single source of truth for "how much is owed" — the entry chain
// kept by the Ledger is an audit trail, not a second derivation.
func Outstanding(totalPayable decimal.Decimal, approvedPayments []*models.Payment) decimal.Decimal {
	outstanding := totalPayable
	for _, p := range approvedPayments {
		outstanding = outstanding.Sub(p.Amount)
	}
	return outstanding
}
