// Package costmodel prices a taker execution from a quoted mid price and
// spread: half-spread crossing, a stochastic slippage draw bounded by the
// spread, and a flat taker fee. Pure functions, no I/O.
package costmodel

import (
	"math"
	"math/rand"

	"remora/internal/types"
)

// TakerFeeRate is the flat taker fee applied to executed notional.
const TakerFeeRate = 0.0006

// Slippage is drawn uniformly from this fraction range of the quoted spread.
const (
	SlippageMinFrac = 0.10
	SlippageMaxFrac = 0.35
)

// Rand is the random source consumed by SlippageBps. Tests pin it.
type Rand interface {
	Float64() float64
}

// NewRand returns a seeded default source.
func NewRand(seed int64) Rand {
	return rand.New(rand.NewSource(seed))
}

// ExecutedPrice applies the half-spread against the taker: a buy pays above
// mid, a sell receives below mid. A zero or negative spread leaves mid
// unchanged. Behavior is undefined for a non-positive mid; callers must not
// price without a quote.
func ExecutedPrice(dir types.Direction, mid, spreadBps float64) float64 {
	if spreadBps <= 0 {
		return mid
	}
	half := spreadBps / 2 / 10000
	if dir == types.DirectionBuy {
		return mid * (1 + half)
	}
	return mid * (1 - half)
}

// SlippageBps draws a slippage bounded to a fraction of the quoted spread.
// Returns 0 when the spread is absent.
func SlippageBps(spreadBps float64, rng Rand) float64 {
	if spreadBps <= 0 || rng == nil {
		return 0
	}
	frac := SlippageMinFrac + rng.Float64()*(SlippageMaxFrac-SlippageMinFrac)
	return spreadBps * frac
}

// ApplySlippage moves price further against the taker.
func ApplySlippage(dir types.Direction, price, slippageBps float64) float64 {
	if slippageBps <= 0 {
		return price
	}
	move := slippageBps / 10000
	if dir == types.DirectionBuy {
		return price * (1 + move)
	}
	return price * (1 - move)
}

// Fee charges the flat taker rate on executed notional.
func Fee(qty, execPrice float64) float64 {
	return math.Abs(qty*execPrice) * TakerFeeRate
}
