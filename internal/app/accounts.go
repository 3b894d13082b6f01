/**
 * @description
 * This file holds the account lifecycle and ledger reconciliation operations of
 * the service: opening accounts, soft-deleting empty ones, and verifying stored
 * balances against the ledger.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/domain"
)

// CreateAccount opens a new account for a user with an opening balance.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID, currency string, openingBalance decimal.Decimal) (*domain.Account, error) {
	normalized, ok := domain.NormalizeCurrency(currency)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	if openingBalance.IsNegative() || !openingBalance.Equal(openingBalance.Truncate(2)) {
		return nil, fmt.Errorf("%w: opening balance %s", ErrInvalidAmount, openingBalance)
	}

	account, err := s.repo.CreateAccount(ctx, &domain.Account{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: normalized,
		Balance:  openingBalance,
	})
	if err != nil {
		return nil, err
	}

	record := &domain.AuditRecord{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionCreate,
		ResourceType: "account",
		ResourceID:   &account.ID,
		Status:       domain.AuditStatusSuccess,
		Details:      map[string]any{"currency": account.Currency},
	}
	if err := s.repo.RecordAudit(ctx, record); err != nil {
		log.Printf("CreateAccount: failed to record audit for account %s: %v", account.ID, err)
	}
	return account, nil
}

// GetAccount retrieves a live account owned by a user.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByIDAndOwner(ctx, accountID, userID)
}

// DeleteAccount soft-deletes an account with a zero balance. The account's
// ledger history remains intact.
func (s *Service) DeleteAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) error {
	if err := s.repo.SoftDeleteAccount(ctx, accountID, userID); err != nil {
		return err
	}

	record := &domain.AuditRecord{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionDelete,
		ResourceType: "account",
		ResourceID:   &accountID,
		Status:       domain.AuditStatusSuccess,
	}
	if err := s.repo.RecordAudit(ctx, record); err != nil {
		log.Printf("DeleteAccount: failed to record audit for account %s: %v", accountID, err)
	}
	return nil
}

// VerifyBalance reconciles one account's stored balance against its ledger.
func (s *Service) VerifyBalance(ctx context.Context, accountID uuid.UUID) (*domain.BalanceVerification, error) {
	return s.repo.VerifyBalance(ctx, accountID)
}

// VerifyAllBalances reconciles every live account and returns the results,
// mismatches included. It is used by the reconciliation sweep.
func (s *Service) VerifyAllBalances(ctx context.Context) ([]*domain.BalanceVerification, error) {
	ids, err := s.repo.ListAccountIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.BalanceVerification, 0, len(ids))
	for _, id := range ids {
		verification, err := s.repo.VerifyBalance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("verify balance for account %s: %w", id, err)
		}
		results = append(results, verification)
	}
	return results, nil
}
