/**
 * @description
 * This file implements the idempotency coordinator for the transfer engine.
 * Clients supply an idempotency key with a transfer request; replays of the
 * same key return the originally settled transaction instead of moving money
 * again, and reuse of a key with different parameters is rejected.
 *
 * Key behaviors:
 * - Completed outcomes are cached in Redis with a fingerprint of the request
 *   parameters. A replay with a matching fingerprint returns the cached
 *   outcome; a mismatched fingerprint is a conflict.
 * - While a request is in flight a short-lived processing marker is held. A
 *   concurrent duplicate waits briefly for the first request to finish, then
 *   either returns its cached outcome or reports the request as in progress.
 * - Markers carry a TTL so a crashed process can never wedge a key forever.
 *
 * @dependencies
 * - internal/cache: Redis-backed key/value and SETNX operations.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/corebank/transfer-service/internal/cache"
)

const maxIdempotencyKeyLength = 255

// CachedOutcome is the replayable result of a completed transfer, stored under
// the client's idempotency key.
type CachedOutcome struct {
	Fingerprint   string    `json:"fingerprint"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
}

// IdempotencyCoordinator serializes duplicate requests that share a key.
type IdempotencyCoordinator struct {
	cache         cache.Store
	responseTTL   time.Duration
	processingTTL time.Duration
	recheckDelay  time.Duration
	sleep         func(time.Duration)
}

// NewIdempotencyCoordinator creates a coordinator. responseTTL bounds how long
// a completed outcome stays replayable; processingTTL bounds how long a
// crashed request can hold its key.
func NewIdempotencyCoordinator(cacheStore cache.Store, responseTTL, processingTTL time.Duration) *IdempotencyCoordinator {
	return &IdempotencyCoordinator{
		cache:         cacheStore,
		responseTTL:   responseTTL,
		processingTTL: processingTTL,
		recheckDelay:  100 * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// Begin claims an idempotency key for a request with the given fingerprint.
// Keys are scoped per user, so two users reusing the same key never collide.
// It returns a non-nil outcome when the key has already completed (a replay),
// or nil when the caller holds the key and should proceed with the transfer.
func (c *IdempotencyCoordinator) Begin(ctx context.Context, userID uuid.UUID, key string, fingerprint string) (*CachedOutcome, error) {
	if len(key) > maxIdempotencyKeyLength {
		return nil, ErrIdempotencyKeyTooLong
	}

	if outcome, err := c.lookup(ctx, userID, key, fingerprint); outcome != nil || err != nil {
		return outcome, err
	}

	acquired, err := c.cache.SetIfAbsent(ctx, processingKey(userID, key), "1", c.processingTTL)
	if err != nil {
		return nil, err
	}
	if acquired {
		return nil, nil
	}

	// Another request holds this key. Give it a moment to finish, then check
	// once for its cached outcome before giving up.
	c.sleep(c.recheckDelay)
	if outcome, err := c.lookup(ctx, userID, key, fingerprint); outcome != nil || err != nil {
		return outcome, err
	}
	return nil, ErrRequestInProgress
}

// Complete stores the outcome for replay and releases the processing marker.
func (c *IdempotencyCoordinator) Complete(ctx context.Context, userID uuid.UUID, key string, outcome CachedOutcome) error {
	encoded, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if err := c.cache.Set(ctx, outcomeKey(userID, key), string(encoded), c.responseTTL); err != nil {
		return err
	}
	return c.cache.Delete(ctx, processingKey(userID, key))
}

// Abort releases the processing marker without caching anything, so the client
// may retry the same key after a failure.
func (c *IdempotencyCoordinator) Abort(ctx context.Context, userID uuid.UUID, key string) {
	if err := c.cache.Delete(ctx, processingKey(userID, key)); err != nil {
		log.Printf("IdempotencyCoordinator: failed to release processing marker for key: %v", err)
	}
}

func (c *IdempotencyCoordinator) lookup(ctx context.Context, userID uuid.UUID, key string, fingerprint string) (*CachedOutcome, error) {
	value, found, err := c.cache.Get(ctx, outcomeKey(userID, key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var outcome CachedOutcome
	if err := json.Unmarshal([]byte(value), &outcome); err != nil {
		// A corrupt cached outcome cannot be replayed; drop it and run fresh.
		log.Printf("IdempotencyCoordinator: dropping corrupt cached outcome: %v", err)
		if delErr := c.cache.Delete(ctx, outcomeKey(userID, key)); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	if outcome.Fingerprint != fingerprint {
		return nil, ErrIdempotencyConflict
	}
	return &outcome, nil
}

func outcomeKey(userID uuid.UUID, key string) string {
	return "idempotency:outcome:" + userID.String() + ":" + key
}

func processingKey(userID uuid.UUID, key string) string {
	return "idempotency:processing:" + userID.String() + ":" + key
}
