package app

import (
	"context"
	"fmt"
	"time"

	"remora/internal/account"
	rmcfg "remora/internal/config"
	"remora/internal/contract"
	"remora/internal/costmodel"
	"remora/internal/dispatch"
	"remora/internal/engine"
	"remora/internal/gateway"
	"remora/internal/gateway/exchange"
	"remora/internal/gateway/notifier"
	"remora/internal/journal"
	"remora/internal/ledger"
	"remora/internal/market"
	"remora/internal/monitor"
	"remora/internal/reconcile"
	"remora/internal/signal"
	"remora/internal/store"
	opshttp "remora/internal/transport/http/ops"
)

// AppBuilder assembles every worker from config. The fn hooks exist so tests
// can swap a collaborator without touching the rest of the graph.
type AppBuilder struct {
	cfg *rmcfg.Config

	connectorFn func(rmcfg.MarketConfig) (exchange.Connector, error)
	storeFn     func(string) (*store.Store, error)

	notifierOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func WithConnector(c exchange.Connector) AppBuilderOption {
	return func(b *AppBuilder) {
		b.connectorFn = func(rmcfg.MarketConfig) (exchange.Connector, error) { return c, nil }
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierOverride = n }
}

func NewAppBuilder(cfg *rmcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		connectorFn: gateway.NewConnector,
		storeFn:     store.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg

	st, err := b.storeFn(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	audit, err := journal.Open(cfg.App.JournalPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	cleanup := func() {
		audit.Close()
		st.Close()
	}
	led := ledger.New(st.Ledger(), ledger.WithJournal(audit))

	connector, err := b.connectorFn(cfg.Market)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build market connector: %w", err)
	}

	contracts, err := contract.NewRegistry(cfg.Contracts.Path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	accounts, err := account.NewFeed(cfg.Account.Path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("load account feed: %w", err)
	}

	atr := market.NewATRService(connector, cfg.ATR.Interval, cfg.ATR.Period)

	var notify notifier.TextNotifier = notifier.Noop{}
	var telegram *notifier.Telegram
	if b.notifierOverride != nil {
		notify = b.notifierOverride
	} else if cfg.Notify.TelegramEnabled {
		telegram = notifier.NewTelegram(cfg.Notify.BotToken, cfg.Notify.ChatID)
		notify = telegram
	}

	ingestor, err := signal.NewIngestor(cfg.Signal.WatchDir, led)
	if err != nil {
		cleanup()
		return nil, err
	}

	dispatcher := dispatch.New(dispatch.Config{
		PyramideScale:     cfg.Dispatch.PyramideScale,
		DefaultCloseRatio: cfg.Dispatch.DefaultCloseRatio,
		AdmissionTimeout:  time.Duration(cfg.Dispatch.AdmissionTimeoutSeconds) * time.Second,
	}, led, st.Tickets(), contracts, accounts, connector)

	eng := engine.New(st.Tickets(), connector, costmodel.NewRand(cfg.Engine.SlipSeed))
	rec := reconcile.New(led, st.Tickets())

	mon := monitor.New(monitor.Config{
		SlBeTriggerATR:     cfg.Monitor.SlBeTriggerATR,
		SlTrailTriggerATR:  cfg.Monitor.SlTrailTriggerATR,
		TrailOffsetATR:     cfg.Monitor.TrailOffsetATR,
		TpDynTriggerATR:    cfg.Monitor.TpDynTriggerATR,
		TpDynMultATR:       cfg.Monitor.TpDynMultATR,
		PyramideTriggerATR: cfg.Monitor.PyramideTriggerATR,
		MaxPyramides:       cfg.Monitor.MaxPyramides,
		PartialCloseRatio:  cfg.Monitor.PartialCloseRatio,
		MinMfeKeepATR:      cfg.Monitor.MinMfeKeepATR,
		MaxTradeAge:        hours(cfg.Monitor.MaxTradeAgeHours),
		MaxNoMfeAge:        hours(cfg.Monitor.MaxNoMfeAgeHours),
	}, led, st.Monitors(), connector, atr, notify)

	reaper := monitor.NewReaper(monitor.ReaperConfig{
		AdmissionTimeout: time.Duration(cfg.Dispatch.AdmissionTimeoutSeconds) * time.Second,
		TicketRetention:  hours(cfg.Reaper.TicketRetentionHours),
	}, led, st.Tickets(), st.Monitors())

	ops, err := opshttp.NewServer(opshttp.Config{
		Addr:      cfg.App.HTTPAddr,
		Ledger:    led,
		Tickets:   st.Tickets(),
		Monitors:  st.Monitors(),
		Contracts: contracts,
		Accounts:  accounts,
		Journal:   audit,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build ops server: %w", err)
	}

	a := &App{
		cfg:        cfg,
		st:         st,
		audit:      audit,
		led:        led,
		atr:        atr,
		contracts:  contracts,
		accounts:   accounts,
		ingestor:   ingestor,
		dispatcher: dispatcher,
		engine:     eng,
		reconciler: rec,
		monitor:    mon,
		reaper:     reaper,
		ops:        ops,
	}
	if telegram != nil && cfg.Notify.CommandsEnabled {
		a.commands = notifier.NewCommandListener(telegram, a.handleCommand)
	}
	return a, nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
