// Package contract holds per-instrument tradable constraints and the
// quantization step that turns a raw requested size into a submittable one.
package contract

import (
	"math"

	"github.com/shopspring/decimal"
)

// Contract is the exchange metadata for one instrument.
type Contract struct {
	InstID         string  `mapstructure:"inst_id" yaml:"inst_id" json:"inst_id,omitempty"`
	MinTradeQty    float64 `mapstructure:"min_trade_qty" yaml:"min_trade_qty" json:"min_trade_qty"`
	SizeStep       float64 `mapstructure:"size_step" yaml:"size_step" json:"size_step"`
	VolumeDecimals int     `mapstructure:"volume_decimals" yaml:"volume_decimals" json:"volume_decimals"`
	MinNotionalUsd float64 `mapstructure:"min_notional_usd" yaml:"min_notional_usd" json:"min_notional_usd"`
	MaxOrderQty    float64 `mapstructure:"max_order_qty" yaml:"max_order_qty" json:"max_order_qty"`
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// NormalizeQty quantizes and clamps rawQty to the contract's constraints.
// Returns (0, false) when the request cannot produce a submittable order:
// non-positive input, below minimum quantity, or below minimum notional.
// Callers must not submit a rejected quantity; the originating request stays
// pending and retries on a later cycle.
func NormalizeQty(rawQty, price float64, c Contract) (float64, bool) {
	if rawQty <= 0 || price <= 0 {
		return 0, false
	}
	qty := decFromFloat(rawQty)
	if c.SizeStep > 0 {
		step := decFromFloat(c.SizeStep)
		qty = qty.Div(step).Floor().Mul(step)
	}
	if c.VolumeDecimals >= 0 {
		qty = qty.Round(int32(c.VolumeDecimals))
	}
	if !qty.IsPositive() {
		return 0, false
	}
	if c.MinTradeQty > 0 && qty.Cmp(decFromFloat(c.MinTradeQty)) < 0 {
		return 0, false
	}
	if c.MinNotionalUsd > 0 {
		notional := qty.Mul(decFromFloat(price))
		if notional.Cmp(decFromFloat(c.MinNotionalUsd)) < 0 {
			return 0, false
		}
	}
	if c.MaxOrderQty > 0 && qty.Cmp(decFromFloat(c.MaxOrderQty)) > 0 {
		qty = decFromFloat(c.MaxOrderQty)
	}
	return decToFloat(qty), true
}
