// Package market computes the volatility context the monitor needs: a
// per-instrument ATR so favorable/adverse excursions are comparable across
// instruments.
package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"remora/internal/gateway/exchange"
	"remora/internal/logger"

	"github.com/markcheno/go-talib"
)

// ATRService refreshes ATR values for a set of instruments on its own poll
// interval and serves the latest value to readers.
type ATRService struct {
	source   exchange.CandleSource
	interval string
	period   int
	history  int

	mu     sync.RWMutex
	values map[string]float64
	tsByID map[string]time.Time
}

func NewATRService(source exchange.CandleSource, interval string, period int) *ATRService {
	if period <= 0 {
		period = 14
	}
	if strings.TrimSpace(interval) == "" {
		interval = "15m"
	}
	return &ATRService{
		source:   source,
		interval: interval,
		period:   period,
		history:  period * 4,
		values:   make(map[string]float64),
		tsByID:   make(map[string]time.Time),
	}
}

// Refresh recomputes ATR for the given instruments. Per-instrument failures
// are logged and skipped; one bad instrument never blocks the rest.
func (s *ATRService) Refresh(ctx context.Context, instIDs []string) {
	seen := make(map[string]bool, len(instIDs))
	for _, raw := range instIDs {
		id := strings.ToUpper(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.refreshOne(ctx, id); err != nil {
			logger.Warnf("atr: refresh %s failed: %v", id, err)
		}
	}
}

func (s *ATRService) refreshOne(ctx context.Context, instID string) error {
	candles, err := s.source.FetchHistory(ctx, instID, s.interval, s.history)
	if err != nil {
		return err
	}
	if len(candles) <= s.period {
		return nil
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	series := talib.Atr(highs, lows, closes, s.period)
	last := lastPositive(series)
	if last <= 0 {
		return nil
	}
	s.mu.Lock()
	s.values[instID] = last
	s.tsByID[instID] = time.Now()
	s.mu.Unlock()
	return nil
}

// Get returns the most recent ATR for an instrument.
func (s *ATRService) Get(instID string) (float64, bool) {
	id := strings.ToUpper(strings.TrimSpace(instID))
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok && v > 0
}

// Set pins an ATR value directly (tests, replay harnesses).
func (s *ATRService) Set(instID string, atr float64) {
	id := strings.ToUpper(strings.TrimSpace(instID))
	s.mu.Lock()
	s.values[id] = atr
	s.tsByID[id] = time.Now()
	s.mu.Unlock()
}

func lastPositive(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] > 0 {
			return series[i]
		}
	}
	return 0
}
