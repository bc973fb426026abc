package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "pending"
	LoanStatusActive   LoanStatus = "active"
	LoanStatusClosed   LoanStatus = "closed"
	LoanStatusRejected LoanStatus = "rejected"
)

// Loan carries the immutable financial snapshot computed once at submission:
// Principal, MonthlyRatePct, DurationMonths, Interest and TotalPayable are
// never recalculated, even if product rates later change.
type Loan struct {
	ID             uuid.UUID       `json:"id"`
	BorrowerKey    string          `json:"borrower_key"` // Link to external borrower system
	Principal      decimal.Decimal `json:"principal"`
	MonthlyRatePct decimal.Decimal `json:"monthly_rate_pct"` // Interest percent per month, fixed at submission
	DurationMonths decimal.Decimal `json:"duration_months"`  // May be fractional (e.g. weeks/4)
	Interest       decimal.Decimal `json:"interest"`
	TotalPayable   decimal.Decimal `json:"total_payable"`
	Charges        decimal.Decimal `json:"charges"` // Net fees + penalties - adjustments recorded after approval
	Status         LoanStatus      `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Payment is a repayment in a pending/approved/rejected lifecycle. Only
// approved payments ever count toward a loan's outstanding balance.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	LoanID    uuid.UUID       `json:"loan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type EntryType string

const (
	EntryTypePrincipalDisbursed EntryType = "principal_disbursed"
	EntryTypeInterestAccrued    EntryType = "interest_accrued"
	EntryTypePaymentReceived    EntryType = "payment_received"
	EntryTypeFee                EntryType = "fee"
	EntryTypePenalty            EntryType = "penalty"
	EntryTypeAdjustment         EntryType = "adjustment"
)

// LedgerEntry is one append-only audit record for a loan. Entries are never
// updated or deleted; BalanceAfter of entry n must equal BalanceBefore of
// entry n+1.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"` // Recorded magnitude; direction comes from Type
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}
