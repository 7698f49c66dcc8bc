package models

import (
	"time"
)

// Wallet unit systems. Legacy wallets were denominated in currency minor
// units; they are rescaled to message counts on first lock.
const (
	WalletUnitMessages = "MESSAGES"
	WalletUnitCurrency = "CURRENCY"
)

// Ledger transaction types
const (
	TxnTypeTopup  = "TOPUP"
	TxnTypeDebit  = "DEBIT"
	TxnTypeAdjust = "ADJUST"
)

// Campaign statuses
const (
	CampaignStatusCreated        = "CREATED"
	CampaignStatusSent           = "SENT"
	CampaignStatusFailedDelivery = "FAILED_DELIVERY"
)

// Wallet holds the message-credit balance for one tenant+channel pair.
type Wallet struct {
	ID         int       `json:"id" db:"id"`
	AccountID  int       `json:"account_id" db:"account_id"`
	LocationID int       `json:"location_id" db:"location_id"`
	Channel    string    `json:"channel" db:"channel"` // SMS or EMAIL
	Balance    int64     `json:"balance" db:"balance"` // message count, never negative
	Unit       string    `json:"unit" db:"unit"`
	Currency   string    `json:"currency" db:"currency"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is one immutable row in the wallet history. Amount is signed;
// Balance is the wallet balance after the entry was applied.
type LedgerEntry struct {
	ID         int       `json:"id" db:"id"`
	AccountID  int       `json:"account_id" db:"account_id"`
	LocationID int       `json:"location_id" db:"location_id"`
	Channel    string    `json:"channel" db:"channel"`
	TxnType    string    `json:"txn_type" db:"txn_type"` // TOPUP, DEBIT or ADJUST
	Amount     int64     `json:"amount" db:"amount"`
	Balance    int64     `json:"balance" db:"balance"`
	Reference  string    `json:"reference" db:"reference"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Campaign is a marketing blast paid for from the credits wallet. The row is
// inserted in the same transaction as its ledger debit.
type Campaign struct {
	ID             int        `json:"id" db:"id"`
	CampaignID     string     `json:"campaign_id" db:"campaign_id"`
	AccountID      int        `json:"account_id" db:"account_id"`
	LocationID     int        `json:"location_id" db:"location_id"`
	Name           string     `json:"name" db:"name"`
	Channel        string     `json:"channel" db:"channel"`
	Message        string     `json:"message" db:"message"`
	RecipientCount int        `json:"recipient_count" db:"recipient_count"`
	CreditsUsed    int64      `json:"credits_used" db:"credits_used"`
	Status         string     `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}
