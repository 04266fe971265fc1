// Package exchange defines the boundary to the trading venue. The lifecycle
// core only ever sees these interfaces; live (binance) and simulated
// backends are interchangeable.
package exchange

import (
	"context"
	"errors"
	"time"

	"remora/internal/types"
)

// ErrNoQuote signals that no usable quote is currently available. Not an
// error condition for callers: execution is deferred to a later poll cycle.
var ErrNoQuote = errors.New("exchange: no quote available")

// Quote is the current top-of-book view of one instrument.
type Quote struct {
	InstID    string
	Mid       float64
	SpreadBps float64
	UpdatedAt time.Time
}

// Candle is one OHLCV bar. Times are milliseconds since epoch.
type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Order is a market order submission. Quantity is always positive; the
// direction carries the sign.
type Order struct {
	InstID    string
	Direction types.Direction
	Qty       float64
}

// QuoteSource supplies current quotes.
type QuoteSource interface {
	GetQuote(ctx context.Context, instID string) (Quote, error)
}

// CandleSource supplies historical bars (for volatility normalization).
type CandleSource interface {
	FetchHistory(ctx context.Context, instID, interval string, limit int) ([]Candle, error)
}

// Connector is the full venue boundary used by the execution engine.
type Connector interface {
	QuoteSource
	CandleSource
	SubmitOrder(ctx context.Context, order Order) error
}
