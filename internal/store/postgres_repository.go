/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to accounts, transactions, ledger entries, and audit logs.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Exact monetary arithmetic.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Transfer units run at REPEATABLE READ. Serialization failures surface as
 *   SQLSTATE 40001 and are classified transient so the engine can retry them.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotEmpty     = errors.New("account balance is not zero")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// balanceTolerance is the largest stored-balance/ledger-sum discrepancy still
// treated as a match during reconciliation.
var balanceTolerance = decimal.RequireFromString("0.01")

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IsTransient reports whether a database error is worth retrying: serialization
// failures, deadlocks, lock timeouts, and unique violations from concurrent
// inserts. Validation and business errors are never transient.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03", "23505":
		return true
	}
	return false
}

// CreateAccount inserts a new account record and returns it with its
// database-assigned timestamps.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, user_id, currency, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, currency, balance, is_deleted, deleted_at, created_at, updated_at
	`
	var created domain.Account
	err := r.db.QueryRow(ctx, query, account.ID, account.UserID, account.Currency, account.Balance).Scan(
		&created.ID,
		&created.UserID,
		&created.Currency,
		&created.Balance,
		&created.IsDeleted,
		&created.DeletedAt,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// FindAccountByIDAndOwner retrieves a live account owned by a specific user.
func (r *PostgresRepository) FindAccountByIDAndOwner(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, user_id, currency, balance, is_deleted, deleted_at, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND user_id = $2 AND is_deleted = false
	`
	err := r.db.QueryRow(ctx, query, accountID, userID).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Balance,
		&account.IsDeleted,
		&account.DeletedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// SoftDeleteAccount marks an account as deleted. Only accounts with a zero
// balance can be deleted; the ledger history stays intact either way.
func (r *PostgresRepository) SoftDeleteAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) error {
	query := `
		UPDATE accounts
		SET is_deleted = true, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_deleted = false AND balance = 0
	`
	result, err := r.db.Exec(ctx, query, accountID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a missing account from one holding a balance.
	var exists bool
	err = r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND user_id = $2 AND is_deleted = false)",
		accountID, userID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrAccountNotEmpty
	}
	return ErrAccountNotFound
}

// ListAccountIDs returns the IDs of all live accounts, used by the
// reconciliation sweep.
func (r *PostgresRepository) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, "SELECT id FROM accounts WHERE is_deleted = false ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindTransactionByID retrieves a single transaction record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT id, from_account_id, to_account_id, amount, currency, status, failure_reason, retry_count, is_deleted, created_at
		FROM transactions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID,
		&tx.FromAccountID,
		&tx.ToAccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&tx.FailureReason,
		&tx.RetryCount,
		&tx.IsDeleted,
		&tx.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// SumCompletedOutgoingAmount totals the completed, not soft-deleted transfers
// debited from any of a user's accounts since the given instant.
func (r *PostgresRepository) SumCompletedOutgoingAmount(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM transactions t
		JOIN accounts a ON a.id = t.from_account_id
		WHERE a.user_id = $1 AND t.status = 'completed' AND t.is_deleted = false AND t.created_at >= $2
	`
	var total decimal.Decimal
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// CountOutgoingTransfers counts every not soft-deleted transfer attempt debited
// from any of a user's accounts since the given instant, regardless of outcome.
func (r *PostgresRepository) CountOutgoingTransfers(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.from_account_id
		WHERE a.user_id = $1 AND t.is_deleted = false AND t.created_at >= $2
	`
	var count int64
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// VerifyBalance reconciles an account's stored balance against the sum of its
// ledger entries (credits minus debits).
func (r *PostgresRepository) VerifyBalance(ctx context.Context, accountID uuid.UUID) (*domain.BalanceVerification, error) {
	query := `
		SELECT
			a.balance,
			COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'debit'), 0) AS debits,
			COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'credit'), 0) AS credits
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.balance
	`
	var balance, debits, credits decimal.Decimal
	err := r.db.QueryRow(ctx, query, accountID).Scan(&balance, &debits, &credits)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	ledgerBalance := credits.Sub(debits)
	difference := balance.Sub(ledgerBalance)
	return &domain.BalanceVerification{
		AccountID:      accountID,
		Matches:        difference.Abs().LessThanOrEqual(balanceTolerance),
		AccountBalance: balance,
		LedgerBalance:  ledgerBalance,
		Difference:     difference,
		Debits:         debits,
		Credits:        credits,
	}, nil
}

// RecordAudit inserts an audit log record.
func (r *PostgresRepository) RecordAudit(ctx context.Context, record *domain.AuditRecord) error {
	return insertAudit(ctx, r.db, record)
}

// RecordFailedTransfer writes a failed transaction row and its audit record in
// one database transaction, outside any transfer unit. It is called after a
// transfer unit has rolled back, so nothing here touches balances.
func (r *PostgresRepository) RecordFailedTransfer(ctx context.Context, failed *domain.Transaction, record *domain.AuditRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, failed); err != nil {
		return err
	}
	if record != nil {
		if err := insertAudit(ctx, tx, record); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// InTransferUnit runs fn inside one REPEATABLE READ database transaction.
func (r *PostgresRepository) InTransferUnit(ctx context.Context, fn func(unit TransferUnit) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTransferUnit{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// postgresTransferUnit implements TransferUnit on a pgx transaction.
type postgresTransferUnit struct {
	tx pgx.Tx
}

const lockedAccountColumns = "id, user_id, currency, balance, is_deleted, deleted_at, created_at, updated_at"

// LockAccount loads one live account row with FOR UPDATE.
func (u *postgresTransferUnit) LockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := "SELECT " + lockedAccountColumns + " FROM accounts WHERE id = $1 AND is_deleted = false FOR UPDATE"
	err := u.tx.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Balance,
		&account.IsDeleted,
		&account.DeletedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// LockAccountPair locks both accounts of a transfer in ascending ID order.
// Every transfer acquiring the same two rows takes the locks in the same
// order, which rules out lock-order deadlocks between opposing transfers.
func (u *postgresTransferUnit) LockAccountPair(ctx context.Context, firstID, secondID uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	query := "SELECT " + lockedAccountColumns + " FROM accounts WHERE id = ANY($1) AND is_deleted = false ORDER BY id ASC FOR UPDATE"
	rows, err := u.tx.Query(ctx, query, []uuid.UUID{firstID, secondID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make(map[uuid.UUID]*domain.Account, 2)
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Currency,
			&account.Balance,
			&account.IsDeleted,
			&account.DeletedAt,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts[account.ID] = &account
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, ok := accounts[firstID]; !ok {
		return nil, ErrAccountNotFound
	}
	if _, ok := accounts[secondID]; !ok {
		return nil, ErrAccountNotFound
	}
	return accounts, nil
}

// CreateTransaction inserts a new transaction record inside the unit.
func (u *postgresTransferUnit) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return insertTransaction(ctx, u.tx, tx)
}

// MarkTransactionCompleted transitions a pending transaction to completed.
func (u *postgresTransferUnit) MarkTransactionCompleted(ctx context.Context, transactionID uuid.UUID) error {
	query := `UPDATE transactions SET status = 'completed' WHERE id = $1 AND status = 'pending'`
	result, err := u.tx.Exec(ctx, query, transactionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// DebitAccount subtracts an amount from a locked account's balance. The balance
// guard in the WHERE clause is the last line of defense; callers check funds
// against the locked row first.
func (u *postgresTransferUnit) DebitAccount(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = false AND balance >= $1
	`
	result, err := u.tx.Exec(ctx, query, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// CreditAccount adds an amount to a locked account's balance.
func (u *postgresTransferUnit) CreditAccount(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = false
	`
	result, err := u.tx.Exec(ctx, query, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordLedgerEntries inserts both legs of a transfer in one statement.
func (u *postgresTransferUnit) RecordLedgerEntries(ctx context.Context, debit, credit *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			id, transaction_id, account_id, entry_type, amount, currency, balance_before, balance_after
		)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8),
			($9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := u.tx.Exec(ctx, query,
		debit.ID, debit.TransactionID, debit.AccountID, debit.EntryType,
		debit.Amount, debit.Currency, debit.BalanceBefore, debit.BalanceAfter,
		credit.ID, credit.TransactionID, credit.AccountID, credit.EntryType,
		credit.Amount, credit.Currency, credit.BalanceBefore, credit.BalanceAfter,
	)
	return err
}

// RecordAudit inserts an audit record inside the unit.
func (u *postgresTransferUnit) RecordAudit(ctx context.Context, record *domain.AuditRecord) error {
	return insertAudit(ctx, u.tx, record)
}

// querier covers the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTransaction(ctx context.Context, q querier, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, from_account_id, to_account_id, amount, currency, status, failure_reason, retry_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		tx.ID,
		tx.FromAccountID,
		tx.ToAccountID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.FailureReason,
		tx.RetryCount,
	)
	return err
}

func insertAudit(ctx context.Context, q querier, record *domain.AuditRecord) error {
	var details []byte
	if record.Details != nil {
		encoded, err := json.Marshal(record.Details)
		if err != nil {
			return err
		}
		details = encoded
	}
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id, ip_address, user_agent, request_id, details, status, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Action,
		record.ResourceType,
		record.ResourceID,
		record.IPAddress,
		record.UserAgent,
		record.RequestID,
		details,
		record.Status,
		record.ErrorMessage,
	)
	return err
}
