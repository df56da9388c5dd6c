package signal

import (
	"testing"
	"time"

	"equity-trading-bot/internal/strategy"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusPending, StatusExpired},
		{StatusApproved, StatusExecuted},
		{StatusApproved, StatusFailed},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusExecuted},
		{StatusPending, StatusFailed},
		{StatusApproved, StatusPending},
		{StatusApproved, StatusRejected},
		{StatusRejected, StatusApproved},
		{StatusExpired, StatusPending},
		{StatusExecuted, StatusFailed},
		{StatusFailed, StatusExecuted},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusExecuted, StatusFailed}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal status %s allows transition to %s", from, to)
			}
		}
	}
}

func TestActiveStatuses(t *testing.T) {
	if !StatusPending.Active() || !StatusApproved.Active() {
		t.Error("PENDING and APPROVED must count as active")
	}
	for _, s := range []Status{StatusRejected, StatusExpired, StatusExecuted, StatusFailed} {
		if s.Active() {
			t.Errorf("%s must not count as active", s)
		}
	}
}

func TestFromCandidate(t *testing.T) {
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	c := &strategy.Candidate{
		Symbol: "RELIANCE", Side: strategy.SideBuy,
		Entry: 100, Stop: 95, Target: 110,
		Confidence: 0.7, Strategy: "ema_crossover",
		Category: strategy.CategoryDayTrading, Reason: "cross",
		ProducedAt: now,
	}

	s := FromCandidate(c, "epoch-1", 10, "risk ok", now, time.Hour)
	if s.ID == "" {
		t.Error("signal id not assigned")
	}
	if s.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", s.Status)
	}
	if !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expires_at = %s, want created+1h", s.ExpiresAt)
	}
	if s.Quantity != 10 || s.EpochID != "epoch-1" {
		t.Errorf("signal = %+v", s)
	}
	want := DedupKey{Symbol: "RELIANCE", Side: strategy.SideBuy, Strategy: "ema_crossover"}
	if s.Key() != want {
		t.Errorf("dedup key = %v, want %v", s.Key(), want)
	}
}
