package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/signal"
	"equity-trading-bot/internal/strategy"
)

// Type classifies a notification message
type Type string

const (
	TypeSignalBatch Type = "signal_batch"
	TypeAlert       Type = "alert"
	TypeInfo        Type = "info"
)

// Notification is a provider-agnostic message
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Category  strategy.Category
	EpochID   string
	Timestamp time.Time
}

// Provider delivers notifications over one channel
type Provider interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans a notification out to every enabled provider
type Manager struct {
	providers []Provider
	log       *logging.Logger
	enabled   bool
}

// NewManager creates an empty notification manager
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		log:     log.WithComponent("notification"),
		enabled: true,
	}
}

// AddProvider registers a delivery channel
func (m *Manager) AddProvider(p Provider) {
	m.providers = append(m.providers, p)
}

// Send delivers a notification to all enabled providers. Provider failures
// are collected; the last error is returned.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if !m.enabled {
		return nil
	}
	var lastErr error
	for _, p := range m.providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.Send(ctx, n); err != nil {
			m.log.Warn("notification delivery failed", "provider", p.Name(), "error", err.Error())
			lastErr = err
		}
	}
	return lastErr
}

// Notify sends one grouped message for all signals of a category produced in
// one scan epoch.
func (m *Manager) Notify(ctx context.Context, epochID string, category strategy.Category, signals []*signal.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	var b strings.Builder
	for _, s := range signals {
		emoji := "🟢"
		if s.Side == strategy.SideSell {
			emoji = "🔴"
		}
		fmt.Fprintf(&b, "%s %s %s @ %.2f\nSL: %.2f | TP: %.2f | Qty: %d | Conf: %.0f%%\n",
			emoji, s.Side, s.Symbol, s.Entry, s.Stop, s.Target, s.Quantity, s.Confidence*100)
		if s.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", s.Reason)
		}
		b.WriteString("\n")
	}

	return m.Send(ctx, &Notification{
		Type:      TypeSignalBatch,
		Title:     fmt.Sprintf("📊 %s: %d signal(s)", category, len(signals)),
		Message:   strings.TrimRight(b.String(), "\n"),
		Category:  category,
		EpochID:   epochID,
		Timestamp: time.Now(),
	})
}

// SendAlert delivers an operational warning, e.g. a broker auth failure
func (m *Manager) SendAlert(ctx context.Context, title, message string) error {
	return m.Send(ctx, &Notification{
		Type:      TypeAlert,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}
