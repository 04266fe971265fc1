// Package admission turns a signal plus account state into a ticket size.
// The ticket ratio throttles how much of the computed notional is actually
// committed, tiered by the instrument's historical edge.
package admission

import "math"

// Ticket ratio tiers. Missing or toxic stats always fall to the minimum.
const (
	RatioToxic    = 0.05
	RatioWeak     = 0.06
	RatioModerate = 0.08
	RatioStrong   = 0.10
)

// Profit-factor boundaries between the tiers.
const (
	pfWeak     = 1.0
	pfModerate = 1.3
	pfStrong   = 1.8
)

// PerfStats is the per-instrument historical edge supplied by the account
// feed. Samples == 0 means no history.
type PerfStats struct {
	Expectancy   float64 `mapstructure:"expectancy" yaml:"expectancy"`
	ProfitFactor float64 `mapstructure:"profit_factor" yaml:"profit_factor"`
	Samples      int     `mapstructure:"samples" yaml:"samples"`
}

// Sizing is the admission result for one ticket.
type Sizing struct {
	Qty      float64
	Leverage int
	Score    float64
}

// TicketRatio returns the committed fraction of notional for an instrument,
// always within [RatioToxic, RatioStrong]. Missing stats get the fail-safe
// minimum; a negative expectancy or sub-1.0 profit factor is toxic.
func TicketRatio(stats *PerfStats) float64 {
	if stats == nil || stats.Samples <= 0 {
		return RatioToxic
	}
	if stats.Expectancy < 0 || stats.ProfitFactor < pfWeak {
		return RatioToxic
	}
	switch {
	case stats.ProfitFactor >= pfStrong:
		return RatioStrong
	case stats.ProfitFactor >= pfModerate:
		return RatioModerate
	default:
		return RatioWeak
	}
}

// TicketQty computes the admitted quantity, leverage and composite score for
// one ticket.
//
// Composite score blends the signal strength with a secondary (context)
// score, boosted by the historical score, clamped to [0, 1]. The margin
// fraction ramps 1%..10% with the score, leverage ramps 1x..20x and is then
// damped by the market-risk scalar (clamped to [0.3, 1.0]).
func TicketQty(balance, price, scoreSignal, scoreSecondary, scoreHistorical, marketRisk, ticketRatio float64) Sizing {
	if balance <= 0 || price <= 0 || ticketRatio <= 0 {
		return Sizing{}
	}
	score := clamp(((math.Abs(scoreSignal)+scoreSecondary)/2)*(0.5+scoreHistorical), 0, 1)
	marginFrac := 0.01 + score*0.09
	riskClamp := clamp(marketRisk, 0.3, 1.0)
	lev := int(math.Round(math.Round(1+score*19) * riskClamp))
	if lev < 1 {
		lev = 1
	}
	notional := balance * marginFrac * float64(lev) * riskClamp
	qty := notional / price * ticketRatio
	return Sizing{Qty: qty, Leverage: lev, Score: score}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
