package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendcore/loanledger/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
// ledger_entries carries a seq column so entry order never depends on
// timestamp resolution.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower_key TEXT NOT NULL,
		principal TEXT NOT NULL,
		monthly_rate_pct TEXT NOT NULL,
		duration_months TEXT NOT NULL,
		interest TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		charges TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer lets the row-level helpers run against the pool or a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, borrower_key, principal, monthly_rate_pct, duration_months, interest, total_payable, charges, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.BorrowerKey, loan.Principal, loan.MonthlyRatePct, loan.DurationMonths, loan.Interest, loan.TotalPayable, loan.Charges, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(
		`SELECT id, borrower_key, principal, monthly_rate_pct, duration_months, interest, total_payable, charges, status, created_at, updated_at
		FROM loans WHERE id = ?`, id.String())

	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database. The snapshot fields
// are written back as-is; callers never mutate them after creation.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	return updateLoan(s.db, loan)
}

func updateLoan(e execer, loan *models.Loan) error {
	result, err := e.Exec(
		`UPDATE loans SET borrower_key = ?, principal = ?, monthly_rate_pct = ?, duration_months = ?, interest = ?, total_payable = ?, charges = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.BorrowerKey, loan.Principal, loan.MonthlyRatePct, loan.DurationMonths, loan.Interest, loan.TotalPayable, loan.Charges, loan.Status, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, borrower_key, principal, monthly_rate_pct, duration_months, interest, total_payable, charges, status, created_at, updated_at FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// GetLoansByStatus retrieves all loans with the given status.
func (s *SQLiteStore) GetLoansByStatus(status models.LoanStatus) ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, borrower_key, principal, monthly_rate_pct, duration_months, interest, total_payable, charges, status, created_at, updated_at FROM loans WHERE status = ?`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans by status: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(r rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	var created, updated time.Time
	if err := r.Scan(&idStr, &loan.BorrowerKey, &loan.Principal, &loan.MonthlyRatePct, &loan.DurationMonths, &loan.Interest, &loan.TotalPayable, &loan.Charges, &loan.Status, &created, &updated); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreatePayment inserts a new payment into the database.
func (s *SQLiteStore) CreatePayment(payment *models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (id, loan_id, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Amount, payment.Status, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	row := s.db.QueryRow(`SELECT id, loan_id, amount, status, created_at, updated_at FROM payments WHERE id = ?`, id.String())

	payment, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// UpdatePayment updates an existing payment in the database.
func (s *SQLiteStore) UpdatePayment(payment *models.Payment) error {
	return updatePayment(s.db, payment)
}

func updatePayment(e execer, payment *models.Payment) error {
	result, err := e.Exec(
		`UPDATE payments SET amount = ?, status = ?, updated_at = ? WHERE id = ?`,
		payment.Amount, payment.Status, payment.UpdatedAt, payment.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// GetPaymentsForLoan retrieves all payments for a given loan ID.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, amount, status, created_at, updated_at FROM payments WHERE loan_id = ? ORDER BY created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// GetApprovedPaymentsForLoan retrieves only approved payments for a loan.
// Pending and rejected payments never reach the outstanding-balance
// derivation.
func (s *SQLiteStore) GetApprovedPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, amount, status, created_at, updated_at FROM payments WHERE loan_id = ? AND status = ? ORDER BY created_at ASC`, loanID.String(), models.PaymentStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to get approved payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

func scanPayment(r rowScanner) (*models.Payment, error) {
	var payment models.Payment
	var idStr, loanIDStr string
	var created, updated time.Time
	if err := r.Scan(&idStr, &loanIDStr, &payment.Amount, &payment.Status, &created, &updated); err != nil {
		return nil, err
	}
	payment.ID = uuid.MustParse(idStr)
	payment.LoanID = uuid.MustParse(loanIDStr)
	payment.CreatedAt = created
	payment.UpdatedAt = updated
	return &payment, nil
}

func scanPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// appendEntry inserts a ledger entry, re-checking that its BalanceBefore
// still matches the last stored entry's BalanceAfter (or zero for the
// first entry). Run inside a transaction, this means two concurrent
// approvals for the same loan that both read the old tail cannot both
// commit; the loser gets an error and must re-read and retry.
func appendEntry(e execer, entry *models.LedgerEntry) error {
	var tail decimal.Decimal
	row := e.QueryRow(`SELECT balance_after FROM ledger_entries WHERE loan_id = ? ORDER BY seq DESC LIMIT 1`, entry.LoanID.String())
	if err := row.Scan(&tail); err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to read ledger tail: %w", err)
		}
		tail = decimal.Zero
	}

	if !entry.BalanceBefore.Equal(tail) {
		return fmt.Errorf("ledger entry out of sequence for loan %s: balance_before %s, ledger tail %s", entry.LoanID, entry.BalanceBefore, tail)
	}

	_, err := e.Exec(
		`INSERT INTO ledger_entries (id, loan_id, type, amount, balance_before, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.LoanID.String(), entry.Type, entry.Amount, entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// AppendLedgerEntry appends a single chain-checked ledger entry in its own
// transaction.
func (s *SQLiteStore) AppendLedgerEntry(entry *models.LedgerEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendEntry(tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// ApproveLoan activates a loan and appends its disbursement entries in one
// transaction. A partial failure rolls everything back: the loan stays
// pending and no entry is recorded, so the call can simply be retried.
func (s *SQLiteStore) ApproveLoan(loan *models.Loan, entries []*models.LedgerEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if err := appendEntry(tx, entry); err != nil {
			return err
		}
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	return tx.Commit()
}

// ApprovePayment updates the payment and loan rows and appends the
// payment_received entry in one transaction, so an approved payment can
// never exist without its ledger record.
func (s *SQLiteStore) ApprovePayment(payment *models.Payment, loan *models.Loan, entry *models.LedgerEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updatePayment(tx, payment); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	if err := appendEntry(tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordCharge updates the loan's charges total and appends the charge
// entry in one transaction.
func (s *SQLiteStore) RecordCharge(loan *models.Loan, entry *models.LedgerEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendEntry(tx, entry); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	return tx.Commit()
}

// LastLedgerEntry retrieves the most recent ledger entry for a loan, or
// (nil, nil) when the loan has no entries yet.
func (s *SQLiteStore) LastLedgerEntry(loanID uuid.UUID) (*models.LedgerEntry, error) {
	row := s.db.QueryRow(
		`SELECT id, loan_id, type, amount, balance_before, balance_after, created_at
		FROM ledger_entries WHERE loan_id = ? ORDER BY seq DESC LIMIT 1`, loanID.String())

	entry, err := scanLedgerEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return entry, nil
}

// GetLedgerEntriesForLoan retrieves all ledger entries for a loan in
// append order.
func (s *SQLiteStore) GetLedgerEntriesForLoan(loanID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, type, amount, balance_before, balance_after, created_at
		FROM ledger_entries WHERE loan_id = ? ORDER BY seq ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(r rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var idStr, loanIDStr string
	var created time.Time
	if err := r.Scan(&idStr, &loanIDStr, &entry.Type, &entry.Amount, &entry.BalanceBefore, &entry.BalanceAfter, &created); err != nil {
		return nil, err
	}
	entry.ID = uuid.MustParse(idStr)
	entry.LoanID = uuid.MustParse(loanIDStr)
	entry.CreatedAt = created
	return &entry, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
