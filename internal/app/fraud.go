/**
 * @description
 * This file implements fraud screening for outgoing transfers. Every transfer
 * runs through a fixed set of checks before any money moves: a per-transfer
 * amount cap, a rolling daily amount cap, hourly and daily frequency caps, and
 * a per-IP rate limit backed by Redis.
 *
 * Key behaviors:
 * - Checks always run in the same order and all of them run, so a blocked
 *   transfer reports every failed check rather than just the first.
 * - The IP counter is incremented whenever the IP check itself passes, even
 *   when another check rejects the attempt; an attempt rejected by the IP
 *   check consumes nothing.
 * - A Redis outage degrades the IP check to a pass with a logged warning;
 *   screening never blocks legitimate transfers because the cache is down.
 *
 * @dependencies
 * - internal/cache: Windowed counters for IP rate limiting.
 * - internal/store: Transfer aggregates for amount and frequency checks.
 * - github.com/shopspring/decimal: Exact monetary comparison.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/transfer-service/internal/cache"
	"github.com/corebank/transfer-service/internal/store"
)

// Screening check names, stable identifiers used in audit details and events.
const (
	CheckAmount    = "amount_check"
	CheckDaily     = "daily_amount"
	CheckFrequency = "transaction_frequency"
	CheckIP        = "ip_check"
)

// CheckResult is the outcome of a single fraud screening check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// FraudLimits holds the thresholds applied during screening.
type FraudLimits struct {
	MaxTransferAmount     decimal.Decimal
	MaxDailyAmount        decimal.Decimal
	MaxHourlyTransactions int64
	MaxDailyTransactions  int64
	IPRateLimit           int64
	IPRateWindow          time.Duration
}

// DefaultFraudLimits returns the standard production thresholds.
func DefaultFraudLimits() FraudLimits {
	return FraudLimits{
		MaxTransferAmount:     decimal.RequireFromString("1000000.00"),
		MaxDailyAmount:        decimal.RequireFromString("5000000.00"),
		MaxHourlyTransactions: 50,
		MaxDailyTransactions:  200,
		IPRateLimit:           10,
		IPRateWindow:          60 * time.Second,
	}
}

// FraudGuard screens transfers against amount, frequency, and rate limits.
type FraudGuard struct {
	repo   store.Repository
	cache  cache.Store
	limits FraudLimits
	now    func() time.Time
}

// NewFraudGuard creates a fraud guard with the given thresholds.
func NewFraudGuard(repo store.Repository, cacheStore cache.Store, limits FraudLimits) *FraudGuard {
	return &FraudGuard{
		repo:   repo,
		cache:  cacheStore,
		limits: limits,
		now:    time.Now,
	}
}

// Evaluate runs every screening check for a prospective transfer. It returns
// the full set of check results; if any check failed the error is a
// *FraudBlockedError carrying the same results. A passing IP check consumes
// one unit of the sender IP's rate budget regardless of the other checks.
func (g *FraudGuard) Evaluate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, ipAddress string) ([]CheckResult, error) {
	now := g.now().UTC()

	results := make([]CheckResult, 0, 4)

	results = append(results, g.checkAmount(amount))

	daily, err := g.checkDailyAmount(ctx, userID, amount, now)
	if err != nil {
		return nil, fmt.Errorf("daily amount check: %w", err)
	}
	results = append(results, daily)

	frequency, err := g.checkFrequency(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("frequency check: %w", err)
	}
	results = append(results, frequency)

	results = append(results, g.checkIP(ctx, ipAddress))

	for _, result := range results {
		if !result.Passed {
			return results, &FraudBlockedError{Checks: results}
		}
	}
	return results, nil
}

func (g *FraudGuard) checkAmount(amount decimal.Decimal) CheckResult {
	if amount.LessThan(minTransferAmount) {
		return CheckResult{
			Name:   CheckAmount,
			Passed: false,
			Reason: fmt.Sprintf("amount %s is below the minimum of %s", amount, minTransferAmount),
		}
	}
	if amount.GreaterThan(g.limits.MaxTransferAmount) {
		return CheckResult{
			Name:   CheckAmount,
			Passed: false,
			Reason: fmt.Sprintf("amount %s exceeds the per-transfer limit of %s", amount, g.limits.MaxTransferAmount),
		}
	}
	return CheckResult{Name: CheckAmount, Passed: true}
}

func (g *FraudGuard) checkDailyAmount(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, now time.Time) (CheckResult, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	spentToday, err := g.repo.SumCompletedOutgoingAmount(ctx, userID, dayStart)
	if err != nil {
		return CheckResult{}, err
	}

	if spentToday.Add(amount).GreaterThan(g.limits.MaxDailyAmount) {
		return CheckResult{
			Name:   CheckDaily,
			Passed: false,
			Reason: fmt.Sprintf("daily total %s would exceed the limit of %s", spentToday.Add(amount), g.limits.MaxDailyAmount),
		}, nil
	}
	return CheckResult{Name: CheckDaily, Passed: true}, nil
}

func (g *FraudGuard) checkFrequency(ctx context.Context, userID uuid.UUID, now time.Time) (CheckResult, error) {
	hourlyCount, err := g.repo.CountOutgoingTransfers(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return CheckResult{}, err
	}
	if hourlyCount >= g.limits.MaxHourlyTransactions {
		return CheckResult{
			Name:   CheckFrequency,
			Passed: false,
			Reason: fmt.Sprintf("%d transfers in the last hour reaches the limit of %d", hourlyCount, g.limits.MaxHourlyTransactions),
		}, nil
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dailyCount, err := g.repo.CountOutgoingTransfers(ctx, userID, dayStart)
	if err != nil {
		return CheckResult{}, err
	}
	if dailyCount >= g.limits.MaxDailyTransactions {
		return CheckResult{
			Name:   CheckFrequency,
			Passed: false,
			Reason: fmt.Sprintf("%d transfers today reaches the limit of %d", dailyCount, g.limits.MaxDailyTransactions),
		}, nil
	}
	return CheckResult{Name: CheckFrequency, Passed: true}, nil
}

func (g *FraudGuard) checkIP(ctx context.Context, ipAddress string) CheckResult {
	if ipAddress == "" || g.cache == nil {
		return CheckResult{Name: CheckIP, Passed: true}
	}

	count, err := g.cache.GetCount(ctx, ipRateKey(ipAddress))
	if err != nil {
		log.Printf("FraudGuard: IP rate check degraded, passing: %v", err)
		return CheckResult{Name: CheckIP, Passed: true}
	}
	if count >= g.limits.IPRateLimit {
		return CheckResult{
			Name:   CheckIP,
			Passed: false,
			Reason: fmt.Sprintf("%d transfers from this address in the last %s reaches the limit of %d", count, g.limits.IPRateWindow, g.limits.IPRateLimit),
		}
	}

	// The slot is consumed by the check itself, so an attempt rejected by a
	// different check still counts against this address.
	if _, err := g.cache.Increment(ctx, ipRateKey(ipAddress), g.limits.IPRateWindow); err != nil {
		log.Printf("FraudGuard: failed to consume IP rate budget for %s: %v", ipAddress, err)
	}
	return CheckResult{Name: CheckIP, Passed: true}
}

func ipRateKey(ipAddress string) string {
	return "fraud:ip:" + ipAddress
}
