package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/backend/internal/config"
	"github.com/glowdesk/backend/internal/models"
)

func testCreditsConfig() *config.CreditsConfig {
	return &config.CreditsConfig{
		SMSUnitCost:       25,
		EmailUnitCost:     5,
		GSMSegmentLen:     160,
		UnicodeSegmentLen: 70,
	}
}

func expectLockWallet(mock sqlmock.Sqlmock, accountID, locationID int, channel string, walletID int, balance int64, unit string) {
	mock.ExpectQuery("SELECT id, balance, unit, currency, updated_at FROM credit_wallets WHERE account_id = \\? AND location_id = \\? AND channel = \\? FOR UPDATE").
		WithArgs(accountID, locationID, channel).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "unit", "currency", "updated_at"}).
			AddRow(walletID, balance, unit, "INR", time.Now()))
}

func TestCreditsService_ApplyDelta(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCreditsService(db, testCreditsConfig())

	t.Run("successful topup", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWallet(mock, 1, 2, "SMS", 10, 500, models.WalletUnitMessages)

		mock.ExpectExec("UPDATE credit_wallets SET balance = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(int64(700), sqlmock.AnyArg(), 10).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(1, 2, "SMS", models.TxnTypeTopup, int64(200), int64(700), "recharge order 881", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		wallet, err := service.ApplyDelta(1, 2, "SMS", 200, models.TxnTypeTopup, "recharge order 881")
		assert.NoError(t, err)
		assert.Equal(t, int64(700), wallet.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit rejected when balance would go negative", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWallet(mock, 1, 2, "SMS", 10, 150, models.WalletUnitMessages)
		mock.ExpectRollback()

		_, err := service.ApplyDelta(1, 2, "SMS", -200, models.TxnTypeDebit, "campaign debit")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("amount sign must match transaction type", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := service.ApplyDelta(1, 2, "SMS", 200, models.TxnTypeDebit, "ref")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wallet created on first use", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, balance, unit, currency, updated_at FROM credit_wallets").
			WithArgs(9, 1, "EMAIL").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectExec("INSERT INTO credit_wallets").
			WithArgs(9, 1, "EMAIL", models.WalletUnitMessages, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(77, 1))

		mock.ExpectExec("UPDATE credit_wallets SET balance = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(int64(50), sqlmock.AnyArg(), 77).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(9, 1, "EMAIL", models.TxnTypeTopup, int64(50), int64(50), "first topup", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		wallet, err := service.ApplyDelta(9, 1, "EMAIL", 50, models.TxnTypeTopup, "first topup")
		assert.NoError(t, err)
		assert.Equal(t, int64(50), wallet.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreditsService_LegacyRescale(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCreditsService(db, testCreditsConfig())

	t.Run("currency wallet rescaled before mutation", func(t *testing.T) {
		// 5000 minor units at 25/message => 200 messages
		mock.ExpectBegin()
		expectLockWallet(mock, 1, 2, "SMS", 10, 5000, models.WalletUnitCurrency)

		mock.ExpectExec("UPDATE credit_wallets SET balance = \\?, unit = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(int64(200), models.WalletUnitMessages, sqlmock.AnyArg(), 10).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(1, 2, "SMS", models.TxnTypeAdjust, int64(-4800), int64(200), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// The requested debit applies on the rescaled balance
		mock.ExpectExec("UPDATE credit_wallets SET balance = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(int64(150), sqlmock.AnyArg(), 10).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(1, 2, "SMS", models.TxnTypeDebit, int64(-50), int64(150), "campaign debit", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		wallet, err := service.ApplyDelta(1, 2, "SMS", -50, models.TxnTypeDebit, "campaign debit")
		assert.NoError(t, err)
		assert.Equal(t, int64(150), wallet.Balance)
		assert.Equal(t, models.WalletUnitMessages, wallet.Unit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// Balance snapshots written to the ledger must track the running sum of
// applied amounts across a sequence of operations.
func TestCreditsService_BalanceTracksLedgerSum(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCreditsService(db, testCreditsConfig())

	deltas := []struct {
		amount  int64
		txnType string
	}{
		{300, models.TxnTypeTopup},
		{-120, models.TxnTypeDebit},
		{-30, models.TxnTypeDebit},
		{75, models.TxnTypeAdjust},
	}

	balance := int64(0)
	for _, d := range deltas {
		mock.ExpectBegin()
		expectLockWallet(mock, 4, 4, "SMS", 20, balance, models.WalletUnitMessages)

		balance += d.amount
		mock.ExpectExec("UPDATE credit_wallets SET balance = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(balance, sqlmock.AnyArg(), 20).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(4, 4, "SMS", d.txnType, d.amount, balance, "seq", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}

	running := int64(0)
	for _, d := range deltas {
		wallet, err := service.ApplyDelta(4, 4, "SMS", d.amount, d.txnType, "seq")
		assert.NoError(t, err)
		running += d.amount
		assert.Equal(t, running, wallet.Balance)
	}
	assert.Equal(t, int64(225), running)
	assert.NoError(t, mock.ExpectationsWereMet())
}
