// Package gateway selects the exchange connector named by configuration.
package gateway

import (
	"fmt"
	"strings"
	"time"

	rmcfg "remora/internal/config"
	"remora/internal/gateway/binance"
	"remora/internal/gateway/exchange"
	"remora/internal/gateway/sim"
)

// NewConnector builds the connector for the configured market source.
func NewConnector(cfg rmcfg.MarketConfig) (exchange.Connector, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch {
	case cfg.Sim, name == "sim":
		return sim.New(), nil
	case name == "", name == "binance", name == "binance-futures":
		return binance.New(binance.Config{
			APIKey:       cfg.APIKey,
			APISecret:    cfg.APISecret,
			RESTBaseURL:  cfg.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
			ProxyEnabled: cfg.ProxyEnabled,
			RESTProxyURL: cfg.RESTProxyURL,
			DryRun:       cfg.DryRun,
		})
	default:
		return nil, fmt.Errorf("unsupported market source: %s", cfg.Name)
	}
}
