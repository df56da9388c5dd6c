package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"equity-trading-bot/internal/strategy"
)

// Status is the lifecycle state of a persisted signal
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
	StatusExecuted Status = "EXECUTED"
	StatusFailed   Status = "FAILED"
)

// Terminal reports whether no further transition is allowed from the status
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// Active reports whether the signal still blocks duplicates for its key
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// CanTransition reports whether from -> to is a legal state change
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusExpired
	case StatusApproved:
		return to == StatusExecuted || to == StatusFailed
	}
	return false
}

// Signal is the persisted form of an accepted candidate
type Signal struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Side       strategy.Side     `json:"side"`
	Entry      float64           `json:"entry"`
	Stop       float64           `json:"stop"`
	Target     float64           `json:"target"`
	Confidence float64           `json:"confidence"`
	Strategy   string            `json:"strategy"`
	Category   strategy.Category `json:"category"`
	Status     Status            `json:"status"`
	Quantity   int               `json:"quantity"`
	RiskNotes  string            `json:"risk_notes,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	EpochID    string            `json:"epoch_id"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// FromCandidate builds a PENDING signal from a validated candidate
func FromCandidate(c *strategy.Candidate, epochID string, quantity int, riskNotes string, now time.Time, ttl time.Duration) *Signal {
	return &Signal{
		ID:         uuid.New().String(),
		Symbol:     c.Symbol,
		Side:       c.Side,
		Entry:      c.Entry,
		Stop:       c.Stop,
		Target:     c.Target,
		Confidence: c.Confidence,
		Strategy:   c.Strategy,
		Category:   c.Category,
		Status:     StatusPending,
		Quantity:   quantity,
		RiskNotes:  riskNotes,
		Reason:     c.Reason,
		EpochID:    epochID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		UpdatedAt:  now,
	}
}

// Key identifies the dedup scope of a signal
func (s *Signal) Key() DedupKey {
	return DedupKey{Symbol: s.Symbol, Side: s.Side, Strategy: s.Strategy}
}

// DedupKey scopes duplicate suppression: one active signal per
// (symbol, side, strategy) within the quiet window.
type DedupKey struct {
	Symbol   string
	Side     strategy.Side
	Strategy string
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Symbol, k.Side, k.Strategy)
}

// ErrNotFound is returned when a signal id does not exist
var ErrNotFound = errors.New("signal not found")

// ErrConflict is returned when a status change loses a compare-and-set race
// or requests an illegal transition.
var ErrConflict = errors.New("signal status conflict")

// Store persists signals. Implementations must make SetStatus a
// compare-and-set: the update applies only if the stored status still equals
// the expected one and the transition is legal.
type Store interface {
	Create(ctx context.Context, s *Signal) error
	Get(ctx context.Context, id string) (*Signal, error)
	SetStatus(ctx context.Context, id string, from, to Status) error

	// FindActive returns the most recent PENDING or APPROVED signal for the
	// key created at or after the cutoff, or nil when none exists.
	FindActive(ctx context.Context, key DedupKey, cutoff time.Time) (*Signal, error)

	// ExpireOverdue transitions every PENDING signal whose expiry has passed
	// to EXPIRED and returns the signals that changed, so callers can release
	// any per-key state held for them.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*Signal, error)

	// ListRecent returns signals created at or after the cutoff, newest first.
	ListRecent(ctx context.Context, cutoff time.Time, limit int) ([]*Signal, error)
}
