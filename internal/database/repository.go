package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"equity-trading-bot/internal/signal"
	"equity-trading-bot/internal/strategy"
)

const signalColumns = `id, symbol, side, entry_price, stop_price, target_price,
	confidence, strategy_name, category, status, quantity,
	COALESCE(risk_notes, ''), COALESCE(reason, ''), epoch_id,
	created_at, expires_at, updated_at`

// SignalRepository persists signals in PostgreSQL
type SignalRepository struct {
	db *DB
}

// NewSignalRepository creates a signal repository over an open pool
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db}
}

var _ signal.Store = (*SignalRepository)(nil)

// Create inserts a new signal row
func (r *SignalRepository) Create(ctx context.Context, s *signal.Signal) error {
	query := `
		INSERT INTO signals (id, symbol, side, entry_price, stop_price, target_price,
			confidence, strategy_name, category, status, quantity, risk_notes, reason,
			epoch_id, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.Pool.Exec(ctx, query,
		s.ID, s.Symbol, string(s.Side), s.Entry, s.Stop, s.Target,
		s.Confidence, s.Strategy, string(s.Category), string(s.Status), s.Quantity,
		s.RiskNotes, s.Reason, s.EpochID, s.CreatedAt, s.ExpiresAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}
	return nil
}

// Get fetches a signal by id
func (r *SignalRepository) Get(ctx context.Context, id string) (*signal.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	s, err := scanSignal(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signal.ErrNotFound
	}
	return s, err
}

// SetStatus applies a compare-and-set status transition
func (r *SignalRepository) SetStatus(ctx context.Context, id string, from, to signal.Status) error {
	if !signal.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", signal.ErrConflict, from, to)
	}

	query := `UPDATE signals SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.db.Pool.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update signal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: signal %s is no longer %s", signal.ErrConflict, id, from)
	}
	return nil
}

// FindActive returns the latest PENDING/APPROVED signal for the dedup key
// created at or after the cutoff.
func (r *SignalRepository) FindActive(ctx context.Context, key signal.DedupKey, cutoff time.Time) (*signal.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE symbol = $1 AND side = $2 AND strategy_name = $3
		  AND status IN ('PENDING', 'APPROVED')
		  AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1`

	s, err := scanSignal(r.db.Pool.QueryRow(ctx, query, key.Symbol, string(key.Side), key.Strategy, cutoff))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ExpireOverdue marks overdue PENDING signals as EXPIRED and returns them
func (r *SignalRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*signal.Signal, error) {
	query := `UPDATE signals SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'PENDING' AND expires_at <= $1
		RETURNING ` + signalColumns
	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire signals: %w", err)
	}
	defer rows.Close()

	var expired []*signal.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, s)
	}
	return expired, rows.Err()
}

// ListRecent returns signals created at or after the cutoff, newest first
func (r *SignalRepository) ListRecent(ctx context.Context, cutoff time.Time, limit int) ([]*signal.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var out []*signal.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSignal(row pgx.Row) (*signal.Signal, error) {
	var s signal.Signal
	var side, category, status string
	err := row.Scan(&s.ID, &s.Symbol, &side, &s.Entry, &s.Stop, &s.Target,
		&s.Confidence, &s.Strategy, &category, &status, &s.Quantity,
		&s.RiskNotes, &s.Reason, &s.EpochID,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Side, s.Category, s.Status = strategy.Side(side), strategy.Category(category), signal.Status(status)
	return &s, nil
}

// EpochRecord is the persisted summary of one completed scan epoch
type EpochRecord struct {
	EpochID      string
	TriggerName  string
	Categories   []string
	TriggeredAt  time.Time
	FinishedAt   time.Time
	SymbolsTotal int
	Fetched      int
	CacheHits    int
	Candidates   int
	Persisted    int
	Notified     int
	Failed       int
	TimedOut     int
	Duration     time.Duration
}

// SaveEpoch records the outcome of a finished scan epoch
func (r *SignalRepository) SaveEpoch(ctx context.Context, e *EpochRecord) error {
	query := `
		INSERT INTO scan_epochs (epoch_id, trigger_name, categories, triggered_at,
			finished_at, symbols_total, fetched, cache_hits, candidates, persisted,
			notified, failed, timed_out, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (epoch_id) DO NOTHING`

	_, err := r.db.Pool.Exec(ctx, query,
		e.EpochID, e.TriggerName, e.Categories, e.TriggeredAt, e.FinishedAt,
		e.SymbolsTotal, e.Fetched, e.CacheHits, e.Candidates, e.Persisted,
		e.Notified, e.Failed, e.TimedOut, e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save scan epoch: %w", err)
	}
	return nil
}
