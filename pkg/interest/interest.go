// Package interest computes flat (non-compounding) simple interest for
// loan products quoted as a percentage per month.
package interest

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Quote is the immutable financial snapshot stored on a loan at
// submission time.
type Quote struct {
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Total     decimal.Decimal `json:"total"`
}

// Calculate returns the flat simple-interest quote for a principal at
// monthlyRatePct percent per month over durationMonths months.
//
//	interest = principal * rate/100 * months
//	total    = principal + interest
//
// Interest and total are each rounded to 2 decimal places. Negative
// inputs are floored to zero rather than rejected; this function cannot
// fail and callers treat it as infallible. Business validation of the
// inputs belongs to the calling layer.
func Calculate(principal, monthlyRatePct, durationMonths decimal.Decimal) Quote {
	principal = clampNonNegative(principal)
	monthlyRatePct = clampNonNegative(monthlyRatePct)
	durationMonths = clampNonNegative(durationMonths)

	interest := principal.Mul(monthlyRatePct.Div(hundred)).Mul(durationMonths).Round(2)
	total := principal.Add(interest).Round(2)

	return Quote{
		Principal: principal,
		Interest:  interest,
		Total:     total,
	}
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
