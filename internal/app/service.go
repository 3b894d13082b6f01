/**
 * @description
 * This file contains the core business logic for the transfer-service. The
 * `Service` struct orchestrates money movement end to end: request validation,
 * idempotency coordination, fraud screening, the atomic double-entry transfer
 * unit, retries on transient database failures, and event publication.
 *
 * Key behaviors:
 * - All balance mutation happens inside one database transaction through
 *   store.TransferUnit. Validation failures mutate nothing and leave no
 *   failure records; only failures during the mutation stage produce a failed
 *   transaction row and audit record, written after the unit rolls back.
 * - Transient database errors (serialization failures, deadlocks) are retried
 *   with linear backoff up to the configured attempt limit.
 * - Audit records and transfer events are best effort: their failure is logged
 *   but never fails a settled transfer.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Exact monetary arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For transfer lifecycle events.
 */

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/domain"
	"github.com/corebank/transfer-service/internal/store"
	"github.com/corebank/transfer-service/pkg/rabbitmq"
)

var minTransferAmount = decimal.RequireFromString("0.01")

// Service provides the core business logic for transfers.
type Service struct {
	repo        store.Repository
	fraud       *FraudGuard
	idempotency *IdempotencyCoordinator
	producer    rabbitmq.Publisher
	maxRetries  int
	retryDelay  time.Duration
	sleep       func(time.Duration)
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, fraud *FraudGuard, idempotency *IdempotencyCoordinator, producer rabbitmq.Publisher, maxRetries int, retryDelay time.Duration) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		repo:        repo,
		fraud:       fraud,
		idempotency: idempotency,
		producer:    producer,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		sleep:       time.Sleep,
	}
}

// TransferRequest carries everything needed to move money between two accounts.
type TransferRequest struct {
	UserID         uuid.UUID
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	IPAddress      string
	UserAgent      string
	RequestID      string
}

// fingerprint identifies the request parameters for idempotency conflict
// detection. Two requests with the same key must have the same fingerprint.
func (r TransferRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s",
		r.UserID, r.FromAccountID, r.ToAccountID, r.Amount, r.Currency)))
	return hex.EncodeToString(sum[:])
}

// Transfer moves money from one account to another. On success it returns the
// completed transaction; replays of a previously completed idempotency key
// return the original transaction without moving money again.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error) {
	currency, ok := domain.NormalizeCurrency(req.Currency)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, req.Currency)
	}
	req.Currency = currency

	// Positive and representable in whole cents; the 0.01 floor itself belongs
	// to fraud screening.
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(2)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount)
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}

	if req.IdempotencyKey == "" {
		return s.transfer(ctx, req)
	}
	if s.idempotency == nil {
		log.Printf("Transfer: no idempotency coordinator configured, running without replay protection")
		return s.transfer(ctx, req)
	}

	outcome, err := s.idempotency.Begin(ctx, req.UserID, req.IdempotencyKey, req.fingerprint())
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		log.Printf("Transfer: replaying idempotent outcome for transaction %s", outcome.TransactionID)
		return s.repo.FindTransactionByID(ctx, outcome.TransactionID)
	}

	transaction, err := s.transfer(ctx, req)
	if err != nil {
		s.idempotency.Abort(ctx, req.UserID, req.IdempotencyKey)
		return nil, err
	}

	if err := s.idempotency.Complete(ctx, req.UserID, req.IdempotencyKey, CachedOutcome{
		Fingerprint:   req.fingerprint(),
		TransactionID: transaction.ID,
		Status:        transaction.Status,
	}); err != nil {
		// The transfer is settled; a cache failure only costs replay coverage.
		log.Printf("Transfer: failed to cache idempotent outcome for %s: %v", transaction.ID, err)
	}
	return transaction, nil
}

func (s *Service) transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error) {
	if _, err := s.fraud.Evaluate(ctx, req.UserID, req.Amount, req.IPAddress); err != nil {
		var blocked *FraudBlockedError
		if errors.As(err, &blocked) {
			log.Printf("Transfer: blocked by fraud screening for user %s: %v", req.UserID, err)
			s.auditFraudBlock(ctx, req, blocked)
			return nil, err
		}
		return nil, fmt.Errorf("fraud screening: %w", err)
	}

	var transaction *domain.Transaction
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		attempts = attempt
		transaction, lastErr = s.executeTransfer(ctx, req, attempt)
		if lastErr == nil {
			break
		}
		if isBusinessError(lastErr) {
			// Nothing was mutated; report directly without failure records.
			return nil, lastErr
		}
		if !store.IsTransient(lastErr) {
			break
		}
		if attempt < s.maxRetries {
			backoff := time.Duration(attempt) * s.retryDelay
			log.Printf("Transfer: transient failure on attempt %d/%d, retrying in %s: %v", attempt, s.maxRetries, backoff, lastErr)
			s.sleep(backoff)
		}
	}

	if lastErr != nil {
		log.Printf("Transfer: failed after %d attempt(s) for user %s: %v", attempts, req.UserID, lastErr)
		s.recordFailure(ctx, req, attempts, lastErr)
		// The detailed cause stays in the logs and the failure record; callers
		// get a generic error that reveals nothing about the storage layer.
		return nil, fmt.Errorf("%w after %d attempt(s)", ErrTransferFailed, attempts)
	}

	s.publishEvent(ctx, transaction, "")
	return transaction, nil
}

// executeTransfer runs one attempt of the atomic transfer unit. Any error
// rolls back every write made during the attempt.
func (s *Service) executeTransfer(ctx context.Context, req TransferRequest, attempt int) (*domain.Transaction, error) {
	transaction := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: &req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        domain.TransactionPending,
		RetryCount:    attempt - 1,
	}

	err := s.repo.InTransferUnit(ctx, func(unit store.TransferUnit) error {
		accounts, err := unit.LockAccountPair(ctx, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		from := accounts[req.FromAccountID]
		to := accounts[req.ToAccountID]

		if from.UserID != req.UserID {
			return store.ErrAccountNotFound
		}
		if from.Currency != req.Currency || to.Currency != req.Currency {
			return fmt.Errorf("%w: transfer is %s, accounts are %s and %s",
				ErrCurrencyMismatch, req.Currency, from.Currency, to.Currency)
		}
		if from.Balance.LessThan(req.Amount) {
			return store.ErrInsufficientFunds
		}

		if err := unit.CreateTransaction(ctx, transaction); err != nil {
			return err
		}
		if err := unit.DebitAccount(ctx, from.ID, req.Amount); err != nil {
			return err
		}
		if err := unit.CreditAccount(ctx, to.ID, req.Amount); err != nil {
			return err
		}

		debit := &domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transaction.ID,
			AccountID:     from.ID,
			EntryType:     domain.EntryDebit,
			Amount:        req.Amount,
			Currency:      req.Currency,
			BalanceBefore: from.Balance,
			BalanceAfter:  from.Balance.Sub(req.Amount),
		}
		credit := &domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transaction.ID,
			AccountID:     to.ID,
			EntryType:     domain.EntryCredit,
			Amount:        req.Amount,
			Currency:      req.Currency,
			BalanceBefore: to.Balance,
			BalanceAfter:  to.Balance.Add(req.Amount),
		}
		if err := unit.RecordLedgerEntries(ctx, debit, credit); err != nil {
			return err
		}
		if err := unit.MarkTransactionCompleted(ctx, transaction.ID); err != nil {
			return err
		}

		// The success audit commits atomically with the transfer itself.
		record := s.auditRecord(req, domain.AuditActionTransfer, domain.AuditStatusSuccess, &transaction.ID)
		record.Details = map[string]any{
			"amount":   req.Amount.String(),
			"currency": req.Currency,
		}
		return unit.RecordAudit(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	transaction.Status = domain.TransactionCompleted
	return transaction, nil
}

// recordFailure writes a failed transaction row and audit record after the
// transfer unit has rolled back. Both are best effort.
func (s *Service) recordFailure(ctx context.Context, req TransferRequest, attempts int, cause error) {
	reason := cause.Error()
	failed := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: &req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        domain.TransactionFailed,
		FailureReason: &reason,
		RetryCount:    attempts - 1,
	}
	record := s.auditRecord(req, domain.AuditActionTransfer, domain.AuditStatusFailed, &failed.ID)
	record.ErrorMessage = &reason
	record.Details = map[string]any{
		"amount":   req.Amount.String(),
		"currency": req.Currency,
		"attempts": attempts,
	}
	if err := s.repo.RecordFailedTransfer(ctx, failed, record); err != nil {
		log.Printf("Transfer: failed to record failure for user %s: %v", req.UserID, err)
		return
	}
	s.publishEvent(ctx, failed, reason)
}

func (s *Service) auditFraudBlock(ctx context.Context, req TransferRequest, blocked *FraudBlockedError) {
	record := s.auditRecord(req, domain.AuditActionFraudCheck, domain.AuditStatusBlocked, nil)
	message := blocked.Error()
	record.ErrorMessage = &message
	record.Details = map[string]any{
		"amount":   req.Amount.String(),
		"currency": req.Currency,
		"checks":   blocked.Checks,
	}
	if err := s.repo.RecordAudit(ctx, record); err != nil {
		log.Printf("Transfer: failed to record fraud block audit for user %s: %v", req.UserID, err)
	}
}

func (s *Service) auditRecord(req TransferRequest, action, status string, resourceID *uuid.UUID) *domain.AuditRecord {
	record := &domain.AuditRecord{
		ID:           uuid.New(),
		UserID:       &req.UserID,
		Action:       action,
		ResourceType: "transaction",
		ResourceID:   resourceID,
		Status:       status,
	}
	if req.IPAddress != "" {
		record.IPAddress = &req.IPAddress
	}
	if req.UserAgent != "" {
		record.UserAgent = &req.UserAgent
	}
	if req.RequestID != "" {
		record.RequestID = &req.RequestID
	}
	return record
}

func (s *Service) publishEvent(ctx context.Context, transaction *domain.Transaction, reason string) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		TransactionID: transaction.ID,
		FromAccountID: transaction.FromAccountID,
		ToAccountID:   transaction.ToAccountID,
		Amount:        transaction.Amount,
		Currency:      transaction.Currency,
		Status:        transaction.Status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.producer.PublishTransferEvent(ctx, event); err != nil {
		log.Printf("Transfer: failed to publish event for transaction %s: %v", transaction.ID, err)
	}
}

// isBusinessError reports whether an error from the transfer unit means the
// request itself was invalid, as opposed to an infrastructure failure.
func isBusinessError(err error) bool {
	return errors.Is(err, store.ErrAccountNotFound) ||
		errors.Is(err, store.ErrInsufficientFunds) ||
		errors.Is(err, ErrCurrencyMismatch)
}
