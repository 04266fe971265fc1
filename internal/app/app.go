// Package app builds and runs the worker graph. Workers never hold
// references to each other; the shared sqlite store is the only channel
// between them, so any worker can crash and restart without coordination.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"remora/internal/account"
	rmcfg "remora/internal/config"
	"remora/internal/contract"
	"remora/internal/dispatch"
	"remora/internal/engine"
	"remora/internal/gateway/notifier"
	"remora/internal/journal"
	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/market"
	"remora/internal/monitor"
	"remora/internal/reconcile"
	"remora/internal/scheduler"
	"remora/internal/signal"
	"remora/internal/store"
	opshttp "remora/internal/transport/http/ops"
)

type App struct {
	cfg       *rmcfg.Config
	st        *store.Store
	audit     *journal.Store
	led       *ledger.Ledger
	atr       *market.ATRService
	contracts *contract.Registry
	accounts  *account.Feed

	ingestor   *signal.Ingestor
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	monitor    *monitor.Monitor
	reaper     *monitor.Reaper

	ops      *opshttp.Server
	commands *notifier.CommandListener
	stop     context.CancelFunc
}

// NewApp builds the application object from config (does not start it).
func NewApp(cfg *rmcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every worker and blocks until ctx ends or a worker fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.stop = cancel
	group, ctx := errgroup.WithContext(ctx)
	defer a.st.Close()
	if a.audit != nil {
		defer a.audit.Close()
	}

	poll := func(name string, seconds int, task func(context.Context)) {
		p := scheduler.NewPoller(ctx, name, time.Duration(seconds)*time.Second)
		group.Go(func() error {
			p.Start(func() { task(ctx) })
			return nil
		})
	}

	poll("signal", a.cfg.Signal.PollSeconds, a.ingestor.Tick)
	poll("atr", a.cfg.ATR.PollSeconds, a.refreshATR)
	poll("dispatch", a.cfg.Dispatch.PollSeconds, a.dispatcher.Tick)
	poll("engine", a.cfg.Engine.PollSeconds, a.engine.Tick)
	poll("reconcile", a.cfg.Reconcile.PollSeconds, a.reconciler.Tick)
	poll("monitor", a.cfg.Monitor.PollSeconds, a.monitor.Tick)
	poll("reaper", a.cfg.Reaper.PollSeconds, a.reaper.Tick)

	group.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- a.ops.Start() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.ops.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})

	if a.commands != nil {
		group.Go(func() error { return a.commands.Run(ctx) })
	}

	return group.Wait()
}

// refreshATR keeps volatility state warm for every instrument with an open
// position row.
func (a *App) refreshATR(ctx context.Context) {
	rows, err := a.led.ListOpen(ctx)
	if err != nil {
		logger.Errorf("atr refresh: list open positions: %v", err)
		return
	}
	seen := map[string]bool{}
	instIDs := make([]string, 0, len(rows))
	for i := range rows {
		if !seen[rows[i].InstID] {
			seen[rows[i].InstID] = true
			instIDs = append(instIDs, rows[i].InstID)
		}
	}
	if len(instIDs) == 0 {
		return
	}
	a.atr.Refresh(ctx, instIDs)
}
