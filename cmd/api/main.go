package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lendcore/loanledger/pkg/config"
	"github.com/lendcore/loanledger/pkg/ledger"
	"github.com/lendcore/loanledger/pkg/models"
	"github.com/lendcore/loanledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server holds the ledger instance.
type Server struct {
	ledger   *ledger.Ledger
	storage  store.Storage // Keep a reference to the storage to close it
	validate *validator.Validate
	log      *zap.Logger
}

func NewServer(s store.Storage, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ledger:   ledger.NewLedger(s, log),
		storage:  s,
		validate: validator.New(),
		log:      log,
	}
}

// Business validation (positive amounts, sane rates) lives here in the
// calling layer. The engine itself is total: it clamps rather than
// rejecting, so anything that passes these tags computes without error.
type createLoanRequest struct {
	BorrowerKey    string  `json:"borrower_key" validate:"required"`
	Principal      float64 `json:"principal" validate:"required,gt=0"`
	MonthlyRatePct float64 `json:"monthly_rate_pct" validate:"gte=0,lte=100"`
	DurationMonths float64 `json:"duration_months" validate:"required,gt=0"`
}

type paymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type chargeRequest struct {
	Type   string  `json:"type" validate:"required,oneof=fee penalty adjustment"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.SubmitLoan(
		req.BorrowerKey,
		decimal.NewFromFloat(req.Principal),
		decimal.NewFromFloat(req.MonthlyRatePct),
		decimal.NewFromFloat(req.DurationMonths),
	)
	if err != nil {
		s.log.Error("failed to create loan", zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.ApproveLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) rejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.RejectLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) submitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment, err := s.ledger.SubmitPayment(loanID, decimal.NewFromFloat(req.Amount))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) approvePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}

	payment, err := s.ledger.ApprovePayment(paymentID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) rejectPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}

	payment, err := s.ledger.RejectPayment(paymentID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) recordChargeHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.ledger.RecordCharge(loanID, models.EntryType(req.Type), decimal.NewFromFloat(req.Amount))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	entries, err := s.ledger.Entries(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	outstanding, err := s.ledger.OutstandingBalance(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loan_id":     loanID,
		"outstanding": outstanding,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrLoanNotFound), errors.Is(err, store.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrLoanNotPending),
		errors.Is(err, ledger.ErrLoanNotActive),
		errors.Is(err, ledger.ErrPaymentNotPending),
		errors.Is(err, ledger.ErrInvalidChargeType):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/approve", s.approveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/reject", s.rejectLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.submitPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/charges", s.recordChargeHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/ledger", s.ledgerHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/balance", s.balanceHandler).Methods("GET")
	router.HandleFunc("/payments/{id}/approve", s.approvePaymentHandler).Methods("POST")
	router.HandleFunc("/payments/{id}/reject", s.rejectPaymentHandler).Methods("POST")

	return router
}

func newLogger(level string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, logger)

	logger.Info("server starting", zap.String("addr", cfg.ListenAddr), zap.String("db", cfg.DBPath))
	if err := http.ListenAndServe(cfg.ListenAddr, server.routes()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
