package risk

import (
	"context"
	"fmt"
	"math"

	"equity-trading-bot/internal/strategy"
)

// Decision is the sizing outcome for an accepted candidate
type Decision struct {
	Quantity int
	Notes    string
}

// Policy sizes candidate trades. A nil decision with a nil error means the
// candidate is rejected; an error is treated as a rejection by callers.
type Policy interface {
	Evaluate(ctx context.Context, c *strategy.Candidate) (*Decision, error)
}

// Config holds the percent-risk sizing parameters
type Config struct {
	Capital          float64 `json:"capital"`            // Account capital in currency units
	RiskPerTradePct  float64 `json:"risk_per_trade_pct"` // Capital fraction risked per trade, e.g. 1.0
	MaxPositionPct   float64 `json:"max_position_pct"`   // Cap on position value as a capital fraction
	MinRewardRisk    float64 `json:"min_reward_risk"`    // Minimum target/stop distance ratio
	MaxStopDistance  float64 `json:"max_stop_distance"`  // Max stop distance as a fraction of entry, e.g. 0.10
	AllowShortTrades bool    `json:"allow_short_trades"`
}

// DefaultConfig returns the standard sizing policy
func DefaultConfig() *Config {
	return &Config{
		Capital:          1_000_000,
		RiskPerTradePct:  1.0,
		MaxPositionPct:   20.0,
		MinRewardRisk:    1.5,
		MaxStopDistance:  0.10,
		AllowShortTrades: true,
	}
}

// PercentRiskPolicy sizes positions so each trade risks a fixed fraction of
// capital, capped by a maximum position value.
type PercentRiskPolicy struct {
	config *Config
}

// NewPercentRiskPolicy creates the default sizing policy
func NewPercentRiskPolicy(config *Config) *PercentRiskPolicy {
	if config == nil {
		config = DefaultConfig()
	}
	return &PercentRiskPolicy{config: config}
}

// Evaluate computes the quantity for a candidate or rejects it
func (p *PercentRiskPolicy) Evaluate(ctx context.Context, c *strategy.Candidate) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	if c.Side == strategy.SideSell && !p.config.AllowShortTrades {
		return nil, nil
	}

	riskPerShare := c.RiskPerShare()
	if riskPerShare <= 0 {
		return nil, nil
	}
	if riskPerShare/c.Entry > p.config.MaxStopDistance {
		return nil, nil
	}

	reward := math.Abs(c.Target - c.Entry)
	if reward/riskPerShare < p.config.MinRewardRisk {
		return nil, nil
	}

	riskBudget := p.config.Capital * p.config.RiskPerTradePct / 100
	quantity := int(riskBudget / riskPerShare)
	if quantity < 1 {
		return nil, nil
	}

	maxValue := p.config.Capital * p.config.MaxPositionPct / 100
	if float64(quantity)*c.Entry > maxValue {
		quantity = int(maxValue / c.Entry)
		if quantity < 1 {
			return nil, nil
		}
	}

	notes := fmt.Sprintf("risk %.0f (%.2f%% of capital), %.1f per share, R/R %.2f",
		float64(quantity)*riskPerShare, p.config.RiskPerTradePct, riskPerShare, reward/riskPerShare)
	return &Decision{Quantity: quantity, Notes: notes}, nil
}
