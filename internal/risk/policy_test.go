package risk

import (
	"context"
	"testing"
	"time"

	"equity-trading-bot/internal/strategy"
)

func buyCandidate(entry, stop, target float64) *strategy.Candidate {
	return &strategy.Candidate{
		Symbol: "RELIANCE", Side: strategy.SideBuy,
		Entry: entry, Stop: stop, Target: target,
		Confidence: 0.7, Strategy: "ema_crossover",
		Category:   strategy.CategoryDayTrading,
		ProducedAt: time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}
}

func TestPercentRiskSizing(t *testing.T) {
	p := NewPercentRiskPolicy(&Config{
		Capital:          1_000_000,
		RiskPerTradePct:  1.0,
		MaxPositionPct:   100.0,
		MinRewardRisk:    1.5,
		MaxStopDistance:  0.10,
		AllowShortTrades: true,
	})

	// Risk budget 10000, 5 per share -> 2000 shares
	d, err := p.Evaluate(context.Background(), buyCandidate(100, 95, 110))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d == nil {
		t.Fatal("candidate rejected unexpectedly")
	}
	if d.Quantity != 2000 {
		t.Errorf("quantity = %d, want 2000", d.Quantity)
	}
	if d.Notes == "" {
		t.Error("expected risk notes")
	}
}

func TestMaxPositionCap(t *testing.T) {
	p := NewPercentRiskPolicy(&Config{
		Capital:          1_000_000,
		RiskPerTradePct:  1.0,
		MaxPositionPct:   10.0, // position value capped at 100000
		MinRewardRisk:    1.5,
		MaxStopDistance:  0.10,
		AllowShortTrades: true,
	})

	d, err := p.Evaluate(context.Background(), buyCandidate(100, 95, 110))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d == nil || d.Quantity != 1000 {
		t.Fatalf("decision = %+v, want quantity 1000 under position cap", d)
	}
}

func TestRejectWideStop(t *testing.T) {
	p := NewPercentRiskPolicy(DefaultConfig())

	// Stop 20% away exceeds the 10% max stop distance
	d, err := p.Evaluate(context.Background(), buyCandidate(100, 80, 140))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d != nil {
		t.Errorf("decision = %+v, want rejection for wide stop", d)
	}
}

func TestRejectPoorRewardRisk(t *testing.T) {
	p := NewPercentRiskPolicy(DefaultConfig())

	// Reward 5 on risk 5 = 1.0 R/R, below the 1.5 minimum
	d, err := p.Evaluate(context.Background(), buyCandidate(100, 95, 105))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d != nil {
		t.Errorf("decision = %+v, want rejection for poor reward/risk", d)
	}
}

func TestRejectShortWhenDisallowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowShortTrades = false
	p := NewPercentRiskPolicy(cfg)

	c := &strategy.Candidate{
		Symbol: "INFY", Side: strategy.SideSell,
		Entry: 110, Stop: 112, Target: 104,
		Confidence: 0.7, Strategy: "overbought_rejection",
		Category:   strategy.CategoryShortSelling,
		ProducedAt: time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}
	d, err := p.Evaluate(context.Background(), c)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d != nil {
		t.Errorf("decision = %+v, want rejection of short trade", d)
	}
}

func TestInvalidCandidateErrors(t *testing.T) {
	p := NewPercentRiskPolicy(DefaultConfig())
	c := buyCandidate(100, 105, 110) // stop above entry
	if _, err := p.Evaluate(context.Background(), c); err == nil {
		t.Error("expected error for invalid candidate")
	}
}
