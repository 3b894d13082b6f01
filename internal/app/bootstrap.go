/**
 * @description
 * This file assembles the transfer engine from loaded configuration: the
 * Redis-backed cache store, fraud guard, idempotency coordinator, and the
 * RabbitMQ event producer. Binaries call NewServiceFromConfig instead of
 * wiring every dependency by hand.
 *
 * Key behaviors:
 * - A missing REDIS_URL degrades gracefully: the IP rate check is skipped and
 *   requests run without idempotency protection.
 * - A RabbitMQ connection failure at startup falls back to a logging no-op
 *   producer, matching how the engine treats event publication as best effort.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client construction from a URL.
 * - internal/cache, internal/config, internal/store, pkg/rabbitmq.
 */

package app

import (
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/cache"
	"github.com/corebank/transfer-service/internal/config"
	"github.com/corebank/transfer-service/internal/store"
	"github.com/corebank/transfer-service/pkg/rabbitmq"
)

// LimitsFromConfig builds the fraud screening thresholds from configuration.
// Amounts that fail to parse fall back to the defaults so a typo in an env
// var cannot disable a limit.
func LimitsFromConfig(cfg config.Config) FraudLimits {
	limits := DefaultFraudLimits()
	if amount, err := decimal.NewFromString(cfg.MaxTransferAmount); err == nil && amount.IsPositive() {
		limits.MaxTransferAmount = amount
	} else {
		log.Printf("LimitsFromConfig: invalid MAX_TRANSFER_AMOUNT %q, keeping %s", cfg.MaxTransferAmount, limits.MaxTransferAmount)
	}
	if amount, err := decimal.NewFromString(cfg.MaxDailyAmount); err == nil && amount.IsPositive() {
		limits.MaxDailyAmount = amount
	} else {
		log.Printf("LimitsFromConfig: invalid MAX_DAILY_AMOUNT %q, keeping %s", cfg.MaxDailyAmount, limits.MaxDailyAmount)
	}
	limits.MaxHourlyTransactions = cfg.MaxHourlyTransactions
	limits.MaxDailyTransactions = cfg.MaxDailyTransactions
	limits.IPRateLimit = cfg.IPRateLimit
	limits.IPRateWindow = time.Duration(cfg.IPRateWindowSeconds) * time.Second
	return limits
}

// NewServiceFromConfig wires a Service and its collaborators from
// configuration. The returned cleanup closes every connection the assembly
// opened and is safe to call even when some backends were not configured.
func NewServiceFromConfig(cfg config.Config, repo store.Repository) (*Service, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var cacheStore cache.Store
	var coordinator *IdempotencyCoordinator
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		cleanups = append(cleanups, func() {
			if err := client.Close(); err != nil {
				log.Printf("NewServiceFromConfig: failed to close redis client: %v", err)
			}
		})
		cacheStore = cache.NewRedisStore(client, cfg.RedisKeyPrefix)
		coordinator = NewIdempotencyCoordinator(cacheStore,
			time.Duration(cfg.IdempotencyTTLSeconds)*time.Second,
			time.Duration(cfg.ProcessingTTLSeconds)*time.Second)
	} else {
		log.Printf("NewServiceFromConfig: REDIS_URL not set, running without IP rate limiting or idempotency protection")
	}

	guard := NewFraudGuard(repo, cacheStore, LimitsFromConfig(cfg))

	var producer rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			producer = p
			cleanups = append(cleanups, p.Close)
		} else {
			log.Printf("NewServiceFromConfig: rabbitmq unavailable, using fallback producer: %v", err)
		}
	}

	service := NewService(repo, guard, coordinator, producer,
		cfg.MaxRetries, time.Duration(cfg.RetryDelayMs)*time.Millisecond)
	return service, cleanup, nil
}
