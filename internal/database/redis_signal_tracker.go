// Package database persists signals and scan epochs, and mirrors active
// signal keys in Redis for fast dedup checks.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/signal"
)

// Redis key layout for active-signal tracking
const (
	// ActiveSignalKeyPrefix is the prefix for active signal markers.
	// Format: scanbot:active_signal:{symbol}:{side}:{strategy}
	ActiveSignalKeyPrefix = "scanbot:active_signal"
)

// ActiveSignalInfo is the payload mirrored into Redis for each active signal
type ActiveSignalInfo struct {
	SignalID  string    `json:"signal_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisSignalTracker mirrors active signal keys in Redis so the dedup fast
// path avoids a database round trip. The store remains authoritative; a
// tracker miss still falls through to the store.
type RedisSignalTracker struct {
	client *redis.Client
	log    *logging.Logger
}

// NewRedisSignalTracker creates a tracker over an open Redis client
func NewRedisSignalTracker(client *redis.Client, log *logging.Logger) *RedisSignalTracker {
	return &RedisSignalTracker{
		client: client,
		log:    log.WithComponent("signal_tracker"),
	}
}

func trackerKey(key signal.DedupKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", ActiveSignalKeyPrefix, key.Symbol, key.Side, key.Strategy)
}

// Track marks a dedup key active until the quiet window elapses
func (t *RedisSignalTracker) Track(ctx context.Context, s *signal.Signal, window time.Duration) error {
	if t.client == nil {
		return fmt.Errorf("redis client not available")
	}

	info := ActiveSignalInfo{
		SignalID:  s.ID,
		Symbol:    s.Symbol,
		Side:      string(s.Side),
		Strategy:  s.Strategy,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal signal info: %w", err)
	}

	if err := t.client.Set(ctx, trackerKey(s.Key()), data, window).Err(); err != nil {
		return fmt.Errorf("failed to track signal in Redis: %w", err)
	}
	return nil
}

// IsActive reports whether an active marker exists for the key. Errors are
// logged and reported as a miss so the caller falls back to the store.
func (t *RedisSignalTracker) IsActive(ctx context.Context, key signal.DedupKey) bool {
	if t.client == nil {
		return false
	}
	n, err := t.client.Exists(ctx, trackerKey(key)).Result()
	if err != nil {
		t.log.Warn("redis dedup check failed, falling back to store", "key", key.String(), "error", err.Error())
		return false
	}
	return n > 0
}

// Lookup returns the mirrored payload for a key, or nil when absent
func (t *RedisSignalTracker) Lookup(ctx context.Context, key signal.DedupKey) (*ActiveSignalInfo, error) {
	if t.client == nil {
		return nil, fmt.Errorf("redis client not available")
	}
	data, err := t.client.Get(ctx, trackerKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get signal info: %w", err)
	}
	var info ActiveSignalInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signal info: %w", err)
	}
	return &info, nil
}

// Release drops the active marker, e.g. after rejection or expiry
func (t *RedisSignalTracker) Release(ctx context.Context, key signal.DedupKey) {
	if t.client == nil {
		return
	}
	if err := t.client.Del(ctx, trackerKey(key)).Err(); err != nil {
		t.log.Warn("failed to release signal marker", "key", key.String(), "error", err.Error())
	}
}
