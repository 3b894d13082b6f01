package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"MAX_TRANSFER_AMOUNT", "MAX_DAILY_AMOUNT", "MAX_HOURLY_TRANSACTIONS",
		"MAX_DAILY_TRANSACTIONS", "IP_RATE_LIMIT", "IP_RATE_WINDOW_SECONDS",
		"IDEMPOTENCY_TTL_SECONDS", "PROCESSING_TTL_SECONDS", "MAX_RETRIES",
		"RETRY_DELAY_MS", "REDIS_KEY_PREFIX",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.MaxTransferAmount != "1000000.00" {
		t.Fatalf("expected default MaxTransferAmount 1000000.00, got %q", cfg.MaxTransferAmount)
	}
	if cfg.MaxDailyAmount != "5000000.00" {
		t.Fatalf("expected default MaxDailyAmount 5000000.00, got %q", cfg.MaxDailyAmount)
	}
	if cfg.MaxHourlyTransactions != 50 {
		t.Fatalf("expected default MaxHourlyTransactions 50, got %d", cfg.MaxHourlyTransactions)
	}
	if cfg.MaxDailyTransactions != 200 {
		t.Fatalf("expected default MaxDailyTransactions 200, got %d", cfg.MaxDailyTransactions)
	}
	if cfg.IPRateLimit != 10 || cfg.IPRateWindowSeconds != 60 {
		t.Fatalf("expected default IP rate limit 10/60s, got %d/%ds", cfg.IPRateLimit, cfg.IPRateWindowSeconds)
	}
	if cfg.IdempotencyTTLSeconds != 86400 {
		t.Fatalf("expected default IdempotencyTTLSeconds 86400, got %d", cfg.IdempotencyTTLSeconds)
	}
	if cfg.ProcessingTTLSeconds != 300 {
		t.Fatalf("expected default ProcessingTTLSeconds 300, got %d", cfg.ProcessingTTLSeconds)
	}
	if cfg.MaxRetries != 3 || cfg.RetryDelayMs != 1000 {
		t.Fatalf("expected default retries 3 with 1000ms delay, got %d/%dms", cfg.MaxRetries, cfg.RetryDelayMs)
	}
	if cfg.RedisKeyPrefix != "transfer" {
		t.Fatalf("expected default RedisKeyPrefix transfer, got %q", cfg.RedisKeyPrefix)
	}
}

func TestLoadConfig_EnvironmentOverridesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MAX_TRANSFER_AMOUNT", "250000.00")
	setEnvWithCleanup(t, "MAX_RETRIES", "5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxTransferAmount != "250000.00" {
		t.Fatalf("expected MaxTransferAmount from env, got %q", cfg.MaxTransferAmount)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("expected MaxRetries from env, got %d", cfg.MaxRetries)
	}
}

func TestLoadConfig_CoercesInvalidValuesToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MAX_RETRIES", "-2")
	setEnvWithCleanup(t, "IDEMPOTENCY_TTL_SECONDS", "0")
	setEnvWithCleanup(t, "REDIS_KEY_PREFIX", "   ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected non-positive MaxRetries coerced to 3, got %d", cfg.MaxRetries)
	}
	if cfg.IdempotencyTTLSeconds != 86400 {
		t.Fatalf("expected non-positive IdempotencyTTLSeconds coerced to 86400, got %d", cfg.IdempotencyTTLSeconds)
	}
	if cfg.RedisKeyPrefix != "transfer" {
		t.Fatalf("expected blank RedisKeyPrefix coerced to transfer, got %q", cfg.RedisKeyPrefix)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
