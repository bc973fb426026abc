package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendcore/loanledger/pkg/interest"
	"github.com/lendcore/loanledger/pkg/models"
	"github.com/lendcore/loanledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrLoanNotPending    = errors.New("loan is not pending")
	ErrLoanNotActive     = errors.New("loan is not active")
	ErrPaymentNotPending = errors.New("payment is not pending")
	ErrInvalidChargeType = errors.New("charge type must be fee, penalty or adjustment")
)

// Ledger handles the business logic for loans, payments and the
// append-only entry chain.
//
// Appends seed BalanceBefore from the previous entry's BalanceAfter (zero
// for the first entry). The chain stays gapless only while appends for a
// single loan are serialized; the Storage implementation enforces that by
// rejecting an append whose BalanceBefore no longer matches the stored
// tail. Each approval workflow hands all of its writes to the store as
// one transactional operation, so a failure mid-workflow leaves nothing
// half-recorded and the call can be retried.
type Ledger struct {
	storage store.Storage
	log     *zap.Logger
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		storage: s,
		log:     log,
	}
}

// SubmitLoan creates a pending loan with its financial snapshot. The
// snapshot (interest and total payable) is computed exactly once here and
// never recalculated, even if product rates later change.
func (l *Ledger) SubmitLoan(borrowerKey string, principal, monthlyRatePct, durationMonths decimal.Decimal) (*models.Loan, error) {
	quote := interest.Calculate(principal, monthlyRatePct, durationMonths)

	loan := &models.Loan{
		ID:             uuid.New(),
		BorrowerKey:    borrowerKey,
		Principal:      quote.Principal,
		MonthlyRatePct: monthlyRatePct,
		DurationMonths: durationMonths,
		Interest:       quote.Interest,
		TotalPayable:   quote.Total,
		Charges:        decimal.Zero,
		Status:         models.LoanStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.Info("loan submitted",
		zap.String("loan_id", loan.ID.String()),
		zap.String("borrower_key", borrowerKey),
		zap.String("principal", quote.Principal.StringFixed(2)),
		zap.String("total_payable", quote.Total.StringFixed(2)),
	)
	return loan, nil
}

// ApproveLoan activates a pending loan and records the disbursement: a
// principal_disbursed entry followed by an interest_accrued entry for the
// snapshot interest, so the ledger tail equals the total payable at
// activation. The status change and both entries commit in one storage
// transaction; a pending loan therefore never has disbursement entries,
// and a failed approval can be retried without duplicating them.
func (l *Ledger) ApproveLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusPending {
		return nil, ErrLoanNotPending
	}

	before, err := l.tail(loan.ID)
	if err != nil {
		return nil, err
	}

	entries := []*models.LedgerEntry{
		newEntry(loan.ID, models.EntryTypePrincipalDisbursed, loan.Principal, before),
	}
	if loan.Interest.IsPositive() {
		entries = append(entries, newEntry(loan.ID, models.EntryTypeInterestAccrued, loan.Interest, entries[0].BalanceAfter))
	}

	loan.Status = models.LoanStatusActive
	loan.UpdatedAt = time.Now()
	if err := l.storage.ApproveLoan(loan, entries); err != nil {
		return nil, fmt.Errorf("failed to approve loan: %w", err)
	}

	l.log.Info("loan approved",
		zap.String("loan_id", loan.ID.String()),
		zap.String("disbursed", loan.Principal.StringFixed(2)),
	)
	return loan, nil
}

// RejectLoan rejects a pending loan. No ledger activity is recorded.
func (l *Ledger) RejectLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusPending {
		return nil, ErrLoanNotPending
	}

	loan.Status = models.LoanStatusRejected
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to reject loan: %w", err)
	}
	return loan, nil
}

// SubmitPayment records a pending repayment for an active loan. Pending
// payments never touch the ledger or the outstanding balance.
func (l *Ledger) SubmitPayment(loanID uuid.UUID, amount decimal.Decimal) (*models.Payment, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, ErrLoanNotActive
	}

	payment := &models.Payment{
		ID:        uuid.New(),
		LoanID:    loanID,
		Amount:    amount,
		Status:    models.PaymentStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := l.storage.CreatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	l.log.Info("payment submitted",
		zap.String("payment_id", payment.ID.String()),
		zap.String("loan_id", loanID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return payment, nil
}

// ApprovePayment marks a pending payment approved and appends the
// payment_received entry; both writes (plus the loan closing, when the
// outstanding balance reaches zero) commit in one storage transaction, so
// an approved payment always has its ledger record. Overpayment leaves a
// negative outstanding balance (a credit owed back to the borrower)
// rather than an error.
func (l *Ledger) ApprovePayment(paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := l.storage.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}

	loan, err := l.storage.GetLoan(payment.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, ErrLoanNotActive
	}

	outstanding, err := l.OutstandingBalance(loan.ID)
	if err != nil {
		return nil, err
	}

	before, err := l.tail(loan.ID)
	if err != nil {
		return nil, err
	}
	entry := newEntry(loan.ID, models.EntryTypePaymentReceived, payment.Amount, before)

	payment.Status = models.PaymentStatusApproved
	payment.UpdatedAt = time.Now()

	remaining := outstanding.Sub(payment.Amount)
	closing := !remaining.IsPositive()
	if closing {
		loan.Status = models.LoanStatusClosed
	}
	loan.UpdatedAt = time.Now()

	if err := l.storage.ApprovePayment(payment, loan, entry); err != nil {
		return nil, fmt.Errorf("failed to approve payment: %w", err)
	}

	if closing {
		l.log.Info("loan fully repaid",
			zap.String("loan_id", loan.ID.String()),
			zap.String("outstanding", remaining.StringFixed(2)),
		)
	}
	l.log.Info("payment approved",
		zap.String("payment_id", payment.ID.String()),
		zap.String("loan_id", loan.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	return payment, nil
}

// RejectPayment marks a pending payment rejected. Rejected payments never
// appear in the ledger or in any balance derivation.
func (l *Ledger) RejectPayment(paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := l.storage.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}

	payment.Status = models.PaymentStatusRejected
	payment.UpdatedAt = time.Now()
	if err := l.storage.UpdatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to reject payment: %w", err)
	}
	return payment, nil
}

// RecordCharge appends a fee, penalty or adjustment entry for an active
// loan and folds it into the loan's running charges total, so the
// snapshot-based outstanding balance reflects it without reading the
// ledger. Fees and penalties increase the charges total; an adjustment is
// a credit in the borrower's favor and decreases it. Entry and charges
// update commit in one storage transaction.
func (l *Ledger) RecordCharge(loanID uuid.UUID, entryType models.EntryType, amount decimal.Decimal) (*models.LedgerEntry, error) {
	switch entryType {
	case models.EntryTypeFee, models.EntryTypePenalty, models.EntryTypeAdjustment:
	default:
		return nil, ErrInvalidChargeType
	}

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, ErrLoanNotActive
	}

	before, err := l.tail(loanID)
	if err != nil {
		return nil, err
	}
	entry := newEntry(loanID, entryType, amount, before)

	if entryType == models.EntryTypeAdjustment {
		loan.Charges = loan.Charges.Sub(entry.Amount)
	} else {
		loan.Charges = loan.Charges.Add(entry.Amount)
	}
	loan.UpdatedAt = time.Now()

	if err := l.storage.RecordCharge(loan, entry); err != nil {
		return nil, fmt.Errorf("failed to record charge: %w", err)
	}

	l.log.Info("charge recorded",
		zap.String("loan_id", loanID.String()),
		zap.String("type", string(entryType)),
		zap.String("amount", entry.Amount.StringFixed(2)),
	)
	return entry, nil
}

// OutstandingBalance derives how much is currently owed on a loan: the
// snapshot total payable plus net charges, minus all approved payments.
// Loans persisted before the snapshot existed may carry a zero total
// payable; those fall back to the principal.
func (l *Ledger) OutstandingBalance(loanID uuid.UUID) (decimal.Decimal, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}

	payments, err := l.storage.GetApprovedPaymentsForLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}

	base := loan.TotalPayable
	if base.IsZero() {
		base = loan.Principal
	}
	return Outstanding(base.Add(loan.Charges), payments), nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// Entries retrieves a loan's audit trail in append order.
func (l *Ledger) Entries(loanID uuid.UUID) ([]*models.LedgerEntry, error) {
	return l.storage.GetLedgerEntriesForLoan(loanID)
}

// tail returns the loan's current ledger tail balance, zero when the loan
// has no entries yet.
func (l *Ledger) tail(loanID uuid.UUID) (decimal.Decimal, error) {
	last, err := l.storage.LastLedgerEntry(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

// newEntry builds one ledger entry, seeding BalanceBefore from the given
// tail and computing BalanceAfter with the balance engine. The recorded
// amount is the magnitude; direction lives in the type.
func newEntry(loanID uuid.UUID, entryType models.EntryType, amount, before decimal.Decimal) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:            uuid.New(),
		LoanID:        loanID,
		Type:          entryType,
		Amount:        amount.Abs(),
		BalanceBefore: before,
		BalanceAfter:  NewBalance(before, amount, entryType),
		CreatedAt:     time.Now(),
	}
}
