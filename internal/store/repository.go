/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the transfer-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * The atomic part of a transfer runs through `InTransferUnit`: the callback receives a
 * `TransferUnit` bound to a single database transaction, and any error returned from
 * the callback rolls the whole unit back.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - github.com/shopspring/decimal: For exact monetary arithmetic.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByIDAndOwner(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) (*domain.Account, error)
	SoftDeleteAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) error
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)

	// Transaction history methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)

	// Transfer aggregates used by fraud screening. Both only count movements
	// where the user's account is on the debit side.
	SumCompletedOutgoingAmount(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error)
	CountOutgoingTransfers(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)

	// Ledger reconciliation
	VerifyBalance(ctx context.Context, accountID uuid.UUID) (*domain.BalanceVerification, error)

	// Audit methods. RecordFailedTransfer writes a failed transaction row and its
	// audit record together, outside any transfer unit.
	RecordAudit(ctx context.Context, record *domain.AuditRecord) error
	RecordFailedTransfer(ctx context.Context, tx *domain.Transaction, record *domain.AuditRecord) error

	// InTransferUnit runs fn inside a single database transaction. A nil return
	// commits; any error rolls back every write made through the unit.
	InTransferUnit(ctx context.Context, fn func(unit TransferUnit) error) error
}

// TransferUnit is the slice of the repository available inside one atomic
// transfer. All methods operate on the same underlying database transaction.
type TransferUnit interface {
	// LockAccount loads an account row with a row-level lock, excluding
	// soft-deleted accounts. Callers that lock two accounts must do so through
	// LockAccountPair so the lock order is consistent across transfers.
	LockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	LockAccountPair(ctx context.Context, firstID, secondID uuid.UUID) (map[uuid.UUID]*domain.Account, error)

	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	MarkTransactionCompleted(ctx context.Context, transactionID uuid.UUID) error

	DebitAccount(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	CreditAccount(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error

	// RecordLedgerEntries inserts the debit and credit legs of a transfer in a
	// single statement so a partial pair can never be committed.
	RecordLedgerEntries(ctx context.Context, debit, credit *domain.LedgerEntry) error

	RecordAudit(ctx context.Context, record *domain.AuditRecord) error
}
