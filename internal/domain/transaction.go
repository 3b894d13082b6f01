/**
 * @description
 * This file defines the core movement models for the transfer-service: the
 * Transaction record created for every attempted transfer and the paired
 * LedgerEntry rows that implement double-entry bookkeeping.
 *
 * @notes
 * - A Transaction is created as `pending` inside the atomic transfer unit and
 *   transitions exactly once to `completed` or `failed`, then never changes.
 * - LedgerEntry rows are immutable once written. Every completed transaction has
 *   exactly one debit and one credit entry with equal amounts.
 * - Amounts are `decimal.Decimal` with two fractional digits (smallest unit is
 *   0.01); floating-point never enters the arithmetic.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses. A transaction leaves `pending` exactly once.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// Ledger entry types.
const (
	EntryDebit  = "debit"
	EntryCredit = "credit"
)

// Transaction represents one attempted money movement between two accounts.
// This struct maps directly to the `transactions` table in the database.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID *uuid.UUID      `json:"from_account_id"` // nil only for external credits
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	RetryCount    int             `json:"retry_count"`
	IsDeleted     bool            `json:"is_deleted"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LedgerEntry records one side (debit or credit) of a transfer's effect on one
// account, with the account balance captured before and after the movement.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	EntryType     string          `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}
