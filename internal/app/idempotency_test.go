package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/store"
)

func TestTransfer_IdempotentReplayReturnsOriginalTransaction(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	from := h.repo.addAccount(userID, "USD", "100.00")
	to := h.repo.addAccount(uuid.New(), "USD", "0.00")

	req := TransferRequest{
		UserID:         userID,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         decimal.RequireFromString("30.00"),
		Currency:       "USD",
		IdempotencyKey: "order-42",
	}

	first, err := h.service.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("first transfer returned error: %v", err)
	}

	second, err := h.service.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different transaction: %s vs %s", second.ID, first.ID)
	}
	if second.Status != first.Status {
		t.Fatalf("replay status differs: %q vs %q", second.Status, first.Status)
	}

	// Money moved exactly once.
	if got := h.balance(t, from.ID); !got.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("expected source balance 70.00, got %s", got)
	}
	if count := h.transactionCount(); count != 1 {
		t.Fatalf("expected exactly one transaction, got %d", count)
	}
}

func TestTransfer_IdempotencyKeyReuseWithDifferentParamsConflicts(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	from := h.repo.addAccount(userID, "USD", "100.00")
	to := h.repo.addAccount(uuid.New(), "USD", "0.00")

	req := TransferRequest{
		UserID:         userID,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         decimal.RequireFromString("30.00"),
		Currency:       "USD",
		IdempotencyKey: "order-42",
	}
	if _, err := h.service.Transfer(context.Background(), req); err != nil {
		t.Fatalf("first transfer returned error: %v", err)
	}

	req.Amount = decimal.RequireFromString("31.00")
	_, err := h.service.Transfer(context.Background(), req)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	if got := h.balance(t, from.ID); !got.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("conflicting request must not move money, balance %s", got)
	}
}

func TestTransfer_IdempotencyKeyTooLong(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	from := h.repo.addAccount(userID, "USD", "100.00")
	to := h.repo.addAccount(uuid.New(), "USD", "0.00")

	_, err := h.service.Transfer(context.Background(), TransferRequest{
		UserID:         userID,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         decimal.RequireFromString("30.00"),
		Currency:       "USD",
		IdempotencyKey: strings.Repeat("k", 256),
	})
	if !errors.Is(err, ErrIdempotencyKeyTooLong) {
		t.Fatalf("expected ErrIdempotencyKeyTooLong, got %v", err)
	}
}

func TestTransfer_FailedAttemptReleasesKeyForRetry(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	from := h.repo.addAccount(userID, "USD", "10.00")
	to := h.repo.addAccount(uuid.New(), "USD", "0.00")

	req := TransferRequest{
		UserID:         userID,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         decimal.RequireFromString("60.00"),
		Currency:       "USD",
		IdempotencyKey: "order-7",
	}
	if _, err := h.service.Transfer(context.Background(), req); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	held, err := h.cache.Exists(context.Background(), processingKey(userID, "order-7"))
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if held {
		t.Fatalf("processing marker must be released after a failed attempt")
	}

	// After funding the account, the same key works.
	h.repo.mu.Lock()
	h.repo.accounts[from.ID].Balance = decimal.RequireFromString("100.00")
	h.repo.mu.Unlock()

	tx, err := h.service.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("retry with same key failed: %v", err)
	}
	if tx.Status != "completed" {
		t.Fatalf("expected completed transaction, got %q", tx.Status)
	}
}

func TestIdempotencyCoordinator_ConcurrentHolderReportsInProgress(t *testing.T) {
	cacheStore := newMemoryCache()
	coordinator := NewIdempotencyCoordinator(cacheStore, 24*time.Hour, 5*time.Minute)
	slept := 0
	coordinator.sleep = func(time.Duration) { slept++ }
	userID := uuid.New()

	// Another request holds the processing marker and has not finished.
	if _, err := cacheStore.SetIfAbsent(context.Background(), processingKey(userID, "order-9"), "1", 5*time.Minute); err != nil {
		t.Fatalf("failed to seed processing marker: %v", err)
	}

	_, err := coordinator.Begin(context.Background(), userID, "order-9", "fp")
	if !errors.Is(err, ErrRequestInProgress) {
		t.Fatalf("expected ErrRequestInProgress, got %v", err)
	}
	if slept != 1 {
		t.Fatalf("expected one recheck wait, got %d", slept)
	}
}

func TestIdempotencyCoordinator_RecheckFindsFreshOutcome(t *testing.T) {
	cacheStore := newMemoryCache()
	coordinator := NewIdempotencyCoordinator(cacheStore, 24*time.Hour, 5*time.Minute)
	userID := uuid.New()

	transactionID := uuid.New()
	// The first holder finishes while we wait for the recheck.
	coordinator.sleep = func(time.Duration) {
		outcome := CachedOutcome{Fingerprint: "fp", TransactionID: transactionID, Status: "completed"}
		if err := coordinator.Complete(context.Background(), userID, "order-9", outcome); err != nil {
			t.Fatalf("failed to complete outcome: %v", err)
		}
	}

	if _, err := cacheStore.SetIfAbsent(context.Background(), processingKey(userID, "order-9"), "1", 5*time.Minute); err != nil {
		t.Fatalf("failed to seed processing marker: %v", err)
	}

	outcome, err := coordinator.Begin(context.Background(), userID, "order-9", "fp")
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome == nil || outcome.TransactionID != transactionID {
		t.Fatalf("expected cached outcome for %s, got %+v", transactionID, outcome)
	}
}

func TestIdempotencyCoordinator_SameKeyDifferentUsersAreIndependent(t *testing.T) {
	cacheStore := newMemoryCache()
	coordinator := NewIdempotencyCoordinator(cacheStore, 24*time.Hour, 5*time.Minute)
	coordinator.sleep = func(time.Duration) {}
	userA := uuid.New()
	userB := uuid.New()

	outcome := CachedOutcome{Fingerprint: "fp-a", TransactionID: uuid.New(), Status: "completed"}
	if _, err := coordinator.Begin(context.Background(), userA, "order-1", "fp-a"); err != nil {
		t.Fatalf("Begin for first user returned error: %v", err)
	}
	if err := coordinator.Complete(context.Background(), userA, "order-1", outcome); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	// A different user reusing the same key starts fresh, not a replay.
	replay, err := coordinator.Begin(context.Background(), userB, "order-1", "fp-b")
	if err != nil {
		t.Fatalf("Begin for second user returned error: %v", err)
	}
	if replay != nil {
		t.Fatalf("expected a fresh reservation for the second user, got replay %+v", replay)
	}
}
