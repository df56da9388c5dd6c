package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"equity-trading-bot/internal/signal"
)

// MemoryStore is an in-memory signal.Store for mock mode and tests
type MemoryStore struct {
	mu      sync.Mutex
	signals map[string]*signal.Signal
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]*signal.Signal)}
}

var _ signal.Store = (*MemoryStore)(nil)

// Create stores a copy of the signal
func (m *MemoryStore) Create(ctx context.Context, s *signal.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.signals[s.ID]; exists {
		return fmt.Errorf("signal %s already exists", s.ID)
	}
	copied := *s
	m.signals[s.ID] = &copied
	return nil
}

// Get returns a copy of the signal by id
func (m *MemoryStore) Get(ctx context.Context, id string) (*signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, signal.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// SetStatus applies a compare-and-set status transition
func (m *MemoryStore) SetStatus(ctx context.Context, id string, from, to signal.Status) error {
	if !signal.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", signal.ErrConflict, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return signal.ErrNotFound
	}
	if s.Status != from {
		return fmt.Errorf("%w: signal %s is %s, not %s", signal.ErrConflict, id, s.Status, from)
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// FindActive returns the latest active signal for the dedup key after cutoff
func (m *MemoryStore) FindActive(ctx context.Context, key signal.DedupKey, cutoff time.Time) (*signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *signal.Signal
	for _, s := range m.signals {
		if !s.Status.Active() || s.Key() != key || s.CreatedAt.Before(cutoff) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

// ExpireOverdue marks overdue PENDING signals as EXPIRED and returns them
func (m *MemoryStore) ExpireOverdue(ctx context.Context, now time.Time) ([]*signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*signal.Signal
	for _, s := range m.signals {
		if s.Status == signal.StatusPending && !now.Before(s.ExpiresAt) {
			s.Status = signal.StatusExpired
			s.UpdatedAt = now
			copied := *s
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

// ListRecent returns signals created at or after the cutoff, newest first
func (m *MemoryStore) ListRecent(ctx context.Context, cutoff time.Time, limit int) ([]*signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*signal.Signal
	for _, s := range m.signals {
		if s.CreatedAt.Before(cutoff) {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
