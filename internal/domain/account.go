/**
 * @description
 * This file defines the account model used by the transfer-service. An account is
 * the unit of balance ownership: every transfer debits one account and credits
 * another, and the stored balance is the authoritative amount of money it holds.
 *
 * @notes
 * - Balances are `decimal.Decimal` with two fractional digits. Monetary amounts are
 *   never represented as floats anywhere in the service.
 * - An account's currency is fixed at creation time; transfers validate against it
 *   but never change it.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a single balance-holding account owned by a user.
// This struct maps directly to the `accounts` table in the database.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"` // ISO 4217, immutable after creation
	Balance   decimal.Decimal `json:"balance"`
	IsDeleted bool            `json:"is_deleted"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceVerification is the result of reconciling an account's stored balance
// against the sum of its ledger entries.
type BalanceVerification struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Matches        bool            `json:"matches"`
	AccountBalance decimal.Decimal `json:"account_balance"`
	LedgerBalance  decimal.Decimal `json:"ledger_balance"`
	Difference     decimal.Decimal `json:"difference"`
	Debits         decimal.Decimal `json:"debits"`
	Credits        decimal.Decimal `json:"credits"`
}
