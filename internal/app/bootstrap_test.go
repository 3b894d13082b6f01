package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/config"
	"github.com/corebank/transfer-service/internal/domain"
)

func TestLimitsFromConfig_UsesConfiguredThresholds(t *testing.T) {
	limits := LimitsFromConfig(config.Config{
		MaxTransferAmount:     "250000.00",
		MaxDailyAmount:        "750000.00",
		MaxHourlyTransactions: 5,
		MaxDailyTransactions:  20,
		IPRateLimit:           3,
		IPRateWindowSeconds:   30,
	})

	if !limits.MaxTransferAmount.Equal(decimal.RequireFromString("250000.00")) {
		t.Fatalf("expected MaxTransferAmount 250000.00, got %s", limits.MaxTransferAmount)
	}
	if !limits.MaxDailyAmount.Equal(decimal.RequireFromString("750000.00")) {
		t.Fatalf("expected MaxDailyAmount 750000.00, got %s", limits.MaxDailyAmount)
	}
	if limits.MaxHourlyTransactions != 5 || limits.MaxDailyTransactions != 20 {
		t.Fatalf("expected frequency limits 5/20, got %d/%d", limits.MaxHourlyTransactions, limits.MaxDailyTransactions)
	}
	if limits.IPRateLimit != 3 || limits.IPRateWindow != 30*time.Second {
		t.Fatalf("expected IP limit 3 per 30s, got %d per %s", limits.IPRateLimit, limits.IPRateWindow)
	}
}

func TestLimitsFromConfig_UnparsableAmountsKeepDefaults(t *testing.T) {
	limits := LimitsFromConfig(config.Config{
		MaxTransferAmount:     "lots",
		MaxDailyAmount:        "",
		MaxHourlyTransactions: 50,
		MaxDailyTransactions:  200,
		IPRateLimit:           10,
		IPRateWindowSeconds:   60,
	})
	defaults := DefaultFraudLimits()

	if !limits.MaxTransferAmount.Equal(defaults.MaxTransferAmount) {
		t.Fatalf("expected default MaxTransferAmount, got %s", limits.MaxTransferAmount)
	}
	if !limits.MaxDailyAmount.Equal(defaults.MaxDailyAmount) {
		t.Fatalf("expected default MaxDailyAmount, got %s", limits.MaxDailyAmount)
	}
}

func TestNewServiceFromConfig_RunsWithoutOptionalBackends(t *testing.T) {
	repo := newMemoryRepo()
	service, cleanup, err := NewServiceFromConfig(config.Config{
		MaxTransferAmount:     "1000000.00",
		MaxDailyAmount:        "5000000.00",
		MaxHourlyTransactions: 50,
		MaxDailyTransactions:  200,
		IPRateLimit:           10,
		IPRateWindowSeconds:   60,
		MaxRetries:            3,
		RetryDelayMs:          1,
	}, repo)
	if err != nil {
		t.Fatalf("NewServiceFromConfig returned error: %v", err)
	}
	defer cleanup()

	userID := uuid.New()
	from := repo.addAccount(userID, "USD", "100.00")
	to := repo.addAccount(uuid.New(), "USD", "0.00")

	// With no Redis configured an idempotency key is accepted but not
	// deduplicated; the transfer itself still settles.
	tx, err := service.Transfer(context.Background(), TransferRequest{
		UserID:         userID,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "USD",
		IdempotencyKey: "order-1",
		IPAddress:      "198.51.100.9",
	})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if tx.Status != domain.TransactionCompleted {
		t.Fatalf("expected completed transaction, got %q", tx.Status)
	}
}

func TestNewServiceFromConfig_RejectsMalformedRedisURL(t *testing.T) {
	_, _, err := NewServiceFromConfig(config.Config{
		RedisURL:              "not-a-url",
		MaxTransferAmount:     "1000000.00",
		MaxDailyAmount:        "5000000.00",
		MaxHourlyTransactions: 50,
		MaxDailyTransactions:  200,
		IPRateLimit:           10,
		IPRateWindowSeconds:   60,
		MaxRetries:            3,
		RetryDelayMs:          1,
	}, newMemoryRepo())
	if err == nil {
		t.Fatalf("expected error for malformed redis url")
	}
}
