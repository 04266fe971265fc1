package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketRatioBounds(t *testing.T) {
	cases := []struct {
		name  string
		stats *PerfStats
		want  float64
	}{
		{"missing stats", nil, RatioToxic},
		{"no samples", &PerfStats{Expectancy: 1, ProfitFactor: 2}, RatioToxic},
		{"negative expectancy", &PerfStats{Expectancy: -0.1, ProfitFactor: 2, Samples: 50}, RatioToxic},
		{"profit factor below 1", &PerfStats{Expectancy: 0.2, ProfitFactor: 0.9, Samples: 50}, RatioToxic},
		{"weak edge", &PerfStats{Expectancy: 0.05, ProfitFactor: 1.1, Samples: 50}, RatioWeak},
		{"moderate edge", &PerfStats{Expectancy: 0.1, ProfitFactor: 1.5, Samples: 50}, RatioModerate},
		{"strong edge", &PerfStats{Expectancy: 0.4, ProfitFactor: 2.5, Samples: 50}, RatioStrong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TicketRatio(tc.stats)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, RatioToxic)
			assert.LessOrEqual(t, got, RatioStrong)
		})
	}
}

func TestTicketRatioAlwaysInRange(t *testing.T) {
	extremes := []*PerfStats{
		{Expectancy: -1e9, ProfitFactor: -5, Samples: 1},
		{Expectancy: 1e9, ProfitFactor: 1e9, Samples: 1},
		{},
	}
	for _, s := range extremes {
		got := TicketRatio(s)
		assert.GreaterOrEqual(t, got, 0.05)
		assert.LessOrEqual(t, got, 0.10)
	}
}

func TestTicketQty(t *testing.T) {
	t.Run("zero score floors leverage at 1", func(t *testing.T) {
		s := TicketQty(10000, 100, 0, 0, 0, 1.0, 0.05)
		assert.Equal(t, 1, s.Leverage)
		assert.Zero(t, s.Score)
		// notional = 10000 * 0.01 * 1 * 1.0 = 100; qty = 100/100 * 0.05
		assert.InDelta(t, 0.05, s.Qty, 1e-9)
	})

	t.Run("max score caps at 20x", func(t *testing.T) {
		s := TicketQty(10000, 100, 1, 1, 0.5, 1.0, 0.10)
		assert.Equal(t, 20, s.Leverage)
		assert.InDelta(t, 1.0, s.Score, 1e-9)
		// notional = 10000 * 0.10 * 20 = 20000; qty = 200 * 0.10
		assert.InDelta(t, 20.0, s.Qty, 1e-9)
	})

	t.Run("market risk damps leverage and notional", func(t *testing.T) {
		full := TicketQty(10000, 100, 1, 1, 0.5, 1.0, 0.10)
		damped := TicketQty(10000, 100, 1, 1, 0.5, 0.5, 0.10)
		assert.Less(t, damped.Leverage, full.Leverage)
		assert.Less(t, damped.Qty, full.Qty)
	})

	t.Run("market risk clamp floor", func(t *testing.T) {
		floor := TicketQty(10000, 100, 1, 1, 0.5, 0.0, 0.10)
		atMin := TicketQty(10000, 100, 1, 1, 0.5, 0.3, 0.10)
		assert.Equal(t, atMin.Qty, floor.Qty)
	})

	t.Run("invalid inputs yield empty sizing", func(t *testing.T) {
		assert.Zero(t, TicketQty(0, 100, 1, 1, 1, 1, 0.1).Qty)
		assert.Zero(t, TicketQty(1000, 0, 1, 1, 1, 1, 0.1).Qty)
		assert.Zero(t, TicketQty(1000, 100, 1, 1, 1, 1, 0).Qty)
	})

	t.Run("negative signal score uses magnitude", func(t *testing.T) {
		pos := TicketQty(10000, 100, 0.7, 0.5, 0.2, 1.0, 0.08)
		neg := TicketQty(10000, 100, -0.7, 0.5, 0.2, 1.0, 0.08)
		assert.Equal(t, pos, neg)
	})
}
