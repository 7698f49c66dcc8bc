package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/glowdesk/backend/internal/config"
	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/models"
)

// ErrInsufficientBalance is returned when a debit would drive the wallet
// balance negative. It maps to HTTP 402.
var ErrInsufficientBalance = errors.New("insufficient credits balance")

// ErrInvalidAmount is returned when an amount does not match its transaction
// type (e.g. a non-negative DEBIT). It maps to HTTP 400.
var ErrInvalidAmount = errors.New("invalid amount")

// CreditsService owns the per-tenant message-credit wallet and its
// append-only ledger. Every balance mutation goes through ApplyDeltaTx, which
// serializes on the wallet row lock.
type CreditsService struct {
	db        *sql.DB
	cfg       *config.CreditsConfig
	validator *ValidationHelper
}

func NewCreditsService(db *sql.DB, cfg *config.CreditsConfig) *CreditsService {
	return &CreditsService{
		db:        db,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// ApplyDelta applies one signed balance change in its own transaction.
func (s *CreditsService) ApplyDelta(accountID, locationID int, channel string, amount int64, txnType, reference string) (*models.Wallet, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := s.ApplyDeltaTx(tx, accountID, locationID, channel, amount, txnType, reference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wallet, nil
}

// ApplyDeltaTx locks the tenant+channel wallet row, recomputes the balance,
// rejects a negative result, writes the new balance and appends one ledger
// row carrying the post-transaction snapshot. Callers own the transaction, so
// composite operations (campaign creation) stay all-or-nothing.
func (s *CreditsService) ApplyDeltaTx(tx *sql.Tx, accountID, locationID int, channel string, amount int64, txnType, reference string) (*models.Wallet, error) {
	if err := validateTxnType(txnType, amount); err != nil {
		return nil, err
	}

	wallet, err := s.lockWallet(tx, accountID, locationID, channel)
	if err != nil {
		return nil, err
	}

	// Legacy wallets are currency-denominated; rescale to message counts
	// before the first mutation in the new unit system.
	if wallet.Unit == models.WalletUnitCurrency {
		if err := s.rescaleLegacyWallet(tx, wallet); err != nil {
			return nil, err
		}
	}

	newBalance := wallet.Balance + amount
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := s.updateWalletBalance(tx, wallet.ID, newBalance); err != nil {
		return nil, err
	}

	if err := s.appendLedgerEntry(tx, wallet, txnType, amount, newBalance, reference); err != nil {
		return nil, err
	}

	wallet.Balance = newBalance
	return wallet, nil
}

func validateTxnType(txnType string, amount int64) error {
	switch txnType {
	case models.TxnTypeTopup:
		if amount <= 0 {
			return fmt.Errorf("%w: topup amount must be positive", ErrInvalidAmount)
		}
	case models.TxnTypeDebit:
		if amount >= 0 {
			return fmt.Errorf("%w: debit amount must be negative", ErrInvalidAmount)
		}
	case models.TxnTypeAdjust:
		if amount == 0 {
			return fmt.Errorf("%w: adjust amount must be non-zero", ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidAmount, txnType)
	}
	return nil
}

func (s *CreditsService) lockWallet(tx *sql.Tx, accountID, locationID int, channel string) (*models.Wallet, error) {
	wallet := &models.Wallet{
		AccountID:  accountID,
		LocationID: locationID,
		Channel:    channel,
	}
	err := tx.QueryRow(`
		SELECT id, balance, unit, currency, updated_at
		FROM credit_wallets
		WHERE account_id = ? AND location_id = ? AND channel = ?
		FOR UPDATE`,
		accountID, locationID, channel).
		Scan(&wallet.ID, &wallet.Balance, &wallet.Unit, &wallet.Currency, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		return s.createWallet(tx, accountID, locationID, channel)
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *CreditsService) createWallet(tx *sql.Tx, accountID, locationID int, channel string) (*models.Wallet, error) {
	res, err := tx.Exec(`
		INSERT INTO credit_wallets (account_id, location_id, channel, balance, unit, currency, updated_at)
		VALUES (?, ?, ?, 0, ?, 'INR', ?)`,
		accountID, locationID, channel, models.WalletUnitMessages, time.Now())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Wallet{
		ID:         int(id),
		AccountID:  accountID,
		LocationID: locationID,
		Channel:    channel,
		Balance:    0,
		Unit:       models.WalletUnitMessages,
		Currency:   "INR",
	}, nil
}

// rescaleLegacyWallet converts a currency-denominated balance to message
// counts at the channel's per-message cost and records the conversion as an
// ADJUST ledger entry.
func (s *CreditsService) rescaleLegacyWallet(tx *sql.Tx, wallet *models.Wallet) error {
	unitCost := s.cfg.UnitCost(wallet.Channel)
	if unitCost <= 0 {
		return fmt.Errorf("invalid unit cost %d for channel %s", unitCost, wallet.Channel)
	}

	oldBalance := wallet.Balance
	newBalance := oldBalance / unitCost

	_, err := tx.Exec(`
		UPDATE credit_wallets SET balance = ?, unit = ?, updated_at = ? WHERE id = ?`,
		newBalance, models.WalletUnitMessages, time.Now(), wallet.ID)
	if err != nil {
		return err
	}

	wallet.Balance = newBalance
	wallet.Unit = models.WalletUnitMessages

	reference := fmt.Sprintf("legacy unit migration: %d %s rescaled at %d/message", oldBalance, wallet.Currency, unitCost)
	if err := s.appendLedgerEntry(tx, wallet, models.TxnTypeAdjust, newBalance-oldBalance, newBalance, reference); err != nil {
		return err
	}

	log.Printf("[CREDITS] Wallet %d rescaled from %d %s to %d messages", wallet.ID, oldBalance, wallet.Currency, newBalance)
	return nil
}

func (s *CreditsService) updateWalletBalance(tx *sql.Tx, walletID int, newBalance int64) error {
	_, err := tx.Exec(`
		UPDATE credit_wallets SET balance = ?, updated_at = ? WHERE id = ?`,
		newBalance, time.Now(), walletID)
	return err
}

func (s *CreditsService) appendLedgerEntry(tx *sql.Tx, wallet *models.Wallet, txnType string, amount, balance int64, reference string) error {
	_, err := tx.Exec(`
		INSERT INTO credit_ledger (account_id, location_id, channel, txn_type, amount, balance, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wallet.AccountID, wallet.LocationID, wallet.Channel, txnType, amount, balance, reference, time.Now())
	return err
}

type walletRequest struct {
	Channel   string `json:"channel" validate:"required,oneof=SMS EMAIL"`
	Amount    int64  `json:"amount" validate:"required"`
	Reference string `json:"reference" validate:"max=255"`
}

// Topup credits a wallet
// @Summary Top up message credits
// @Description Add message credits to the tenant wallet for a channel
// @Tags credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body walletRequest true "Topup request"
// @Success 200 {object} models.Wallet
// @Failure 400 {object} ErrorResponse
// @Router /credits/topup [post]
func (s *CreditsService) Topup(w http.ResponseWriter, r *http.Request) {
	s.handleDelta(w, r, models.TxnTypeTopup)
}

// Adjust applies an operator correction (either sign)
// @Summary Adjust message credits
// @Description Apply a signed operator adjustment to the tenant wallet
// @Tags credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body walletRequest true "Adjust request"
// @Success 200 {object} models.Wallet
// @Failure 400 {object} ErrorResponse
// @Router /credits/adjust [post]
func (s *CreditsService) Adjust(w http.ResponseWriter, r *http.Request) {
	s.handleDelta(w, r, models.TxnTypeAdjust)
}

func (s *CreditsService) handleDelta(w http.ResponseWriter, r *http.Request, txnType string) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req walletRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	wallet, err := s.ApplyDelta(accountID, locationID, req.Channel, req.Amount, txnType, req.Reference)
	if err != nil {
		log.Printf("[CREDITS] %s failed for tenant %d/%d: %v", txnType, accountID, locationID, err)
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, err.Error(), http.StatusPaymentRequired, nil)
		case errors.Is(err, ErrInvalidAmount):
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		default:
			SendErrorResponse(w, "Failed to update wallet", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[CREDITS] %s of %d applied for tenant %d/%d channel %s, balance now %d",
		txnType, req.Amount, accountID, locationID, req.Channel, wallet.Balance)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// GetWallet returns the wallet for a channel
// @Summary Get wallet balance
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Param channel query string true "Channel (SMS or EMAIL)"
// @Success 200 {object} models.Wallet
// @Failure 404 {object} ErrorResponse
// @Router /credits/wallet [get]
func (s *CreditsService) GetWallet(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = "SMS"
	}

	wallet := models.Wallet{AccountID: accountID, LocationID: locationID, Channel: channel}
	err := s.db.QueryRow(`
		SELECT id, balance, unit, currency, updated_at
		FROM credit_wallets
		WHERE account_id = ? AND location_id = ? AND channel = ?`,
		accountID, locationID, channel).
		Scan(&wallet.ID, &wallet.Balance, &wallet.Unit, &wallet.Currency, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CREDITS] Wallet lookup failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// GetLedger lists recent ledger entries for a channel
// @Summary List wallet ledger entries
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Param channel query string true "Channel (SMS or EMAIL)"
// @Success 200 {array} models.LedgerEntry
// @Router /credits/ledger [get]
func (s *CreditsService) GetLedger(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = "SMS"
	}

	rows, err := s.db.Query(`
		SELECT id, account_id, location_id, channel, txn_type, amount, balance, reference, created_at
		FROM credit_ledger
		WHERE account_id = ? AND location_id = ? AND channel = ?
		ORDER BY id DESC LIMIT 100`,
		accountID, locationID, channel)
	if err != nil {
		log.Printf("[CREDITS] Ledger query failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch ledger", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.LocationID, &e.Channel, &e.TxnType,
			&e.Amount, &e.Balance, &e.Reference, &e.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch ledger", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
