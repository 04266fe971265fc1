// Package binance implements the exchange boundary on the Binance USDT-M
// futures REST API.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"remora/internal/gateway/exchange"
	"remora/internal/logger"
	"remora/internal/pkg/symbol"
	"remora/internal/types"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Config describes the REST connection.
type Config struct {
	APIKey       string
	APISecret    string
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
	DryRun       bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Source implements exchange.Connector against Binance futures.
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

// GetQuote derives mid price and spread from the book ticker.
func (s *Source) GetQuote(ctx context.Context, instID string) (exchange.Quote, error) {
	sym := symbol.Exchange(instID)
	if sym == "" {
		return exchange.Quote{}, fmt.Errorf("instId is required")
	}
	tickers, err := s.client.NewListBookTickersService().Symbol(sym).Do(ctx)
	if err != nil {
		return exchange.Quote{}, err
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return exchange.Quote{}, exchange.ErrNoQuote
	}
	bid := parseFloat(tickers[0].BidPrice)
	ask := parseFloat(tickers[0].AskPrice)
	if bid <= 0 || ask <= 0 || ask < bid {
		return exchange.Quote{}, exchange.ErrNoQuote
	}
	mid := (bid + ask) / 2
	return exchange.Quote{
		InstID:    strings.ToUpper(strings.TrimSpace(instID)),
		Mid:       mid,
		SpreadBps: (ask - bid) / mid * 10000,
		UpdatedAt: time.Now(),
	}, nil
}

// FetchHistory loads recent klines. The last, still-open candle is dropped.
func (s *Source) FetchHistory(ctx context.Context, instID, interval string, limit int) ([]exchange.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	sym := symbol.Exchange(instID)
	if sym == "" {
		return nil, fmt.Errorf("instId is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, exchange.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	if len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// SubmitOrder places a market order. With DryRun set, the order is logged
// and dropped; pricing still comes from the cost model either way.
func (s *Source) SubmitOrder(ctx context.Context, order exchange.Order) error {
	if order.Qty <= 0 {
		return fmt.Errorf("order qty must be positive")
	}
	if s.cfg.DryRun {
		logger.Infof("binance: dry-run order %s %s qty=%.8f", order.Direction, order.InstID, order.Qty)
		return nil
	}
	side := futures.SideTypeBuy
	if order.Direction == types.DirectionSell {
		side = futures.SideTypeSell
	}
	_, err := s.client.NewCreateOrderService().
		Symbol(symbol.Exchange(order.InstID)).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(order.Qty, 'f', -1, 64)).
		Do(ctx)
	return err
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
