package config

import (
	"fmt"
	"strings"

	"remora/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.ATR.validate(); err != nil {
		return err
	}
	if err := c.Dispatch.validate(); err != nil {
		return err
	}
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	name := strings.ToLower(strings.TrimSpace(m.Name))
	switch name {
	case "binance", "binance-futures", "sim":
	default:
		return fmt.Errorf("market.name must be binance, binance-futures or sim, got %q", m.Name)
	}
	if m.ProxyEnabled && strings.TrimSpace(m.RESTProxyURL) == "" {
		return fmt.Errorf("market.rest_proxy_url required when proxy is enabled")
	}
	return nil
}

func (a *ATRConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(a.Interval); !ok {
		return fmt.Errorf("atr.interval %q is not a valid kline interval", a.Interval)
	}
	return nil
}

func (d *DispatchConfig) validate() error {
	if d.PyramideScale <= 0 || d.PyramideScale > 1 {
		return fmt.Errorf("dispatch.pyramide_scale must be in (0, 1], got %v", d.PyramideScale)
	}
	if d.DefaultCloseRatio <= 0 || d.DefaultCloseRatio > 1 {
		return fmt.Errorf("dispatch.default_close_ratio must be in (0, 1], got %v", d.DefaultCloseRatio)
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if m.PartialCloseRatio <= 0 || m.PartialCloseRatio >= 1 {
		return fmt.Errorf("monitor.partial_close_ratio must be in (0, 1), got %v", m.PartialCloseRatio)
	}
	if m.SlTrailTriggerATR < m.SlBeTriggerATR {
		return fmt.Errorf("monitor.sl_trail_trigger_atr must be >= sl_be_trigger_atr")
	}
	if m.MaxNoMfeAgeHours > m.MaxTradeAgeHours {
		return fmt.Errorf("monitor.max_no_mfe_age_hours must be <= max_trade_age_hours")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.TelegramEnabled {
		return nil
	}
	if strings.TrimSpace(n.BotToken) == "" || strings.TrimSpace(n.ChatID) == "" {
		return fmt.Errorf("notify requires bot_token and chat_id when telegram is enabled")
	}
	return nil
}
