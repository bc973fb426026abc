package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lendcore/loanledger/pkg/models"
)

var (
	ErrLoanNotFound    = errors.New("loan not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// Storage defines the interface for database operations related to loans,
// payments and ledger entries.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	GetAllLoans() ([]*models.Loan, error)
	GetLoansByStatus(status models.LoanStatus) ([]*models.Loan, error)

	CreatePayment(payment *models.Payment) error
	GetPayment(id uuid.UUID) (*models.Payment, error)
	UpdatePayment(payment *models.Payment) error
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)
	GetApprovedPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)

	// The approval workflows write several rows. Each runs in a single
	// transaction so a partial failure cannot leave the loan or payment
	// rows disagreeing with the ledger: either every row commits or none
	// does, and a failed call can simply be retried.
	ApproveLoan(loan *models.Loan, entries []*models.LedgerEntry) error
	ApprovePayment(payment *models.Payment, loan *models.Loan, entry *models.LedgerEntry) error
	RecordCharge(loan *models.Loan, entry *models.LedgerEntry) error

	// AppendLedgerEntry is the single-entry append primitive; entries are
	// never updated or deleted. The implementation must reject an entry
	// whose BalanceBefore does not match the stored last entry's
	// BalanceAfter, so two concurrent appends for one loan cannot lose an
	// update. The transactional operations above enforce the same check.
	AppendLedgerEntry(entry *models.LedgerEntry) error
	// LastLedgerEntry returns (nil, nil) when the loan has no entries yet.
	LastLedgerEntry(loanID uuid.UUID) (*models.LedgerEntry, error)
	GetLedgerEntriesForLoan(loanID uuid.UUID) ([]*models.LedgerEntry, error)

	Close() error
}
