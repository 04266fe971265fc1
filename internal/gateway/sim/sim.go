// Package sim is a deterministic in-memory exchange backend for dry runs
// and tests: quotes are set by the test or replayed from config, orders are
// recorded and acknowledged.
package sim

import (
	"context"
	"strings"
	"sync"
	"time"

	"remora/internal/gateway/exchange"
	"remora/internal/logger"
)

// Connector implements exchange.Connector with scripted state.
type Connector struct {
	mu      sync.Mutex
	quotes  map[string]exchange.Quote
	candles map[string][]exchange.Candle
	orders  []exchange.Order
}

func New() *Connector {
	return &Connector{
		quotes:  make(map[string]exchange.Quote),
		candles: make(map[string][]exchange.Candle),
	}
}

// SetQuote publishes the quote returned for an instrument.
func (c *Connector) SetQuote(instID string, mid, spreadBps float64) {
	id := key(instID)
	c.mu.Lock()
	c.quotes[id] = exchange.Quote{InstID: id, Mid: mid, SpreadBps: spreadBps, UpdatedAt: time.Now()}
	c.mu.Unlock()
}

// ClearQuote removes the quote so GetQuote reports ErrNoQuote.
func (c *Connector) ClearQuote(instID string) {
	c.mu.Lock()
	delete(c.quotes, key(instID))
	c.mu.Unlock()
}

// SetCandles scripts the history returned for an instrument.
func (c *Connector) SetCandles(instID string, candles []exchange.Candle) {
	c.mu.Lock()
	c.candles[key(instID)] = candles
	c.mu.Unlock()
}

func (c *Connector) GetQuote(_ context.Context, instID string) (exchange.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[key(instID)]
	if !ok || q.Mid <= 0 {
		return exchange.Quote{}, exchange.ErrNoQuote
	}
	return q, nil
}

func (c *Connector) FetchHistory(_ context.Context, instID, _ string, limit int) ([]exchange.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.candles[key(instID)]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]exchange.Candle, len(rows))
	copy(out, rows)
	return out, nil
}

func (c *Connector) SubmitOrder(_ context.Context, order exchange.Order) error {
	c.mu.Lock()
	c.orders = append(c.orders, order)
	c.mu.Unlock()
	logger.Debugf("sim: order accepted %s %s qty=%.8f", order.Direction, order.InstID, order.Qty)
	return nil
}

// Orders returns everything submitted so far.
func (c *Connector) Orders() []exchange.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]exchange.Order, len(c.orders))
	copy(out, c.orders)
	return out
}

func key(instID string) string {
	return strings.ToUpper(strings.TrimSpace(instID))
}
