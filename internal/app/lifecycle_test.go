package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rmcfg "remora/internal/config"
	"remora/internal/gateway/sim"
	"remora/internal/journal"
	"remora/internal/store"
	"remora/internal/types"
)

// buildTestApp wires the full worker graph against a simulated venue and
// temp files, the same way production wiring does.
func buildTestApp(t *testing.T) (*App, *sim.Connector) {
	t.Helper()
	dir := t.TempDir()

	contractsPath := filepath.Join(dir, "contracts.yaml")
	require.NoError(t, os.WriteFile(contractsPath, []byte(`default:
  min_trade_qty: 0.001
  size_step: 0.001
  volume_decimals: 3
  min_notional_usd: 5
  max_order_qty: 1000
`), 0o644))
	accountPath := filepath.Join(dir, "account.yaml")
	require.NoError(t, os.WriteFile(accountPath, []byte(`balance: 10000
market_risk: 1.0
stats:
  BTCUSDT:
    expectancy: 0.12
    profit_factor: 1.6
    samples: 84
`), 0o644))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
app:
  env: test
  log_path: ""
  db_path: `+filepath.Join(dir, "remora.db")+`
  journal_path: `+filepath.Join(dir, "journal.db")+`
market:
  name: sim
signal:
  watch_dir: `+filepath.Join(dir, "signals")+`
account:
  path: `+accountPath+`
contracts:
  path: `+contractsPath+`
monitor:
  max_trade_age_hours: 0.0000001
  max_no_mfe_age_hours: 0.0000001
`), 0o644))

	cfg, err := rmcfg.Load(cfgPath)
	require.NoError(t, err)

	conn := sim.New()
	a, err := NewAppBuilder(cfg, WithConnector(conn)).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		a.audit.Close()
		a.st.Close()
	})
	return a, conn
}

// TestLifecycleEndToEnd walks one position through the full saga, one worker
// tick at a time, asserting the durable state after every stage.
func TestLifecycleEndToEnd(t *testing.T) {
	a, conn := buildTestApp(t)
	ctx := context.Background()
	conn.SetQuote("BTCUSDT", 100, 20)

	// Stage 1: signal drop admits the position.
	require.NoError(t, os.WriteFile(
		filepath.Join(a.cfg.Signal.WatchDir, "x.json"),
		[]byte(`{"uid":"X","inst_id":"BTCUSDT","side":"long","price":100,"score":0.8}`), 0o644))
	a.ingestor.Tick(ctx)

	row, err := a.led.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpenReq, row.Status)

	// Stage 2: dispatcher creates the opening ticket and mirrors stdby.
	a.dispatcher.Tick(ctx)
	tk, err := a.st.Tickets().Get(ctx, "X", types.ActionOpen, 0)
	require.NoError(t, err)
	assert.Equal(t, types.TicketStdby, tk.Status)
	row, err = a.led.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpenStdby, row.Status)

	// Stage 3: engine fills against the quote. Long entry pays above mid.
	a.engine.Tick(ctx)
	tk, err = a.st.Tickets().Get(ctx, "X", types.ActionOpen, 0)
	require.NoError(t, err)
	require.Equal(t, types.TicketDone, tk.Status)
	assert.Greater(t, tk.PriceExec, 100.0)
	assert.InDelta(t, 100.1, tk.PriceExec, 0.1)

	// Stage 4: reconciler propagates the fill.
	a.reconciler.Tick(ctx)
	row, err = a.led.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpenDone, row.Status)
	assert.Equal(t, tk.Qty, row.Qty)

	// Stage 5: monitor picks it up and syncs the ledger to follow.
	a.monitor.Tick(ctx)
	mrow, err := a.st.Monitors().Get(ctx, "X")
	require.NoError(t, err)
	row, err = a.led.Get(ctx, "X")
	require.NoError(t, err)
	if row.Status == types.StatusFollow {
		// Age timeout may already have fired within the same tick; both
		// orders are legal, the next tick converges either way.
		a.monitor.Tick(ctx)
	}

	// Stage 6: the trade age timeout emits a close request.
	a.monitor.Tick(ctx)
	row, err = a.led.Get(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, types.StatusCloseReq, row.Status)
	mrow, err = a.st.Monitors().Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorCloseReq, mrow.Status)

	// Stage 7: dispatcher sizes the close from the live quantity.
	a.dispatcher.Tick(ctx)
	closeTk, err := a.st.Tickets().Get(ctx, "X", types.ActionClose, 0)
	require.NoError(t, err)
	assert.Equal(t, row.Qty, closeTk.Qty)

	// Stage 8: fill and reconcile the close. Long exit sells below mid.
	a.engine.Tick(ctx)
	closeTk, err = a.st.Tickets().Get(ctx, "X", types.ActionClose, 0)
	require.NoError(t, err)
	require.Equal(t, types.TicketDone, closeTk.Status)
	assert.Less(t, closeTk.PriceExec, 100.0)
	assert.InDelta(t, 99.9, closeTk.PriceExec, 0.1)

	a.reconciler.Tick(ctx)
	row, err = a.led.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCloseDone, row.Status)
	assert.Zero(t, row.Qty)

	// Stage 9: monitor purges the terminal row; tickets remain as audit.
	a.monitor.Tick(ctx)
	_, err = a.st.Monitors().Get(ctx, "X")
	assert.ErrorIs(t, err, store.ErrNotFound)
	trail, err := a.st.Tickets().ListByUID(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, trail, 2)

	// The journal kept the whole story: admission, both fills, the close
	// request issued by the monitor.
	events, err := a.audit.ByUID(ctx, "X")
	require.NoError(t, err)
	var names []string
	for _, e := range events {
		names = append(names, e.Event)
	}
	assert.Equal(t, []string{
		journal.EventAdmitted, journal.EventFill, journal.EventRequested, journal.EventFill,
	}, names)
}

// TestLifecycleCrashReplay re-runs every worker tick twice at each stage;
// at-least-once delivery must not change the outcome.
func TestLifecycleCrashReplay(t *testing.T) {
	a, conn := buildTestApp(t)
	ctx := context.Background()
	conn.SetQuote("BTCUSDT", 100, 20)

	require.NoError(t, os.WriteFile(
		filepath.Join(a.cfg.Signal.WatchDir, "y.json"),
		[]byte(`{"uid":"Y","inst_id":"BTCUSDT","side":"long","price":100}`), 0o644))

	a.ingestor.Tick(ctx)
	a.ingestor.Tick(ctx)
	a.dispatcher.Tick(ctx)
	a.dispatcher.Tick(ctx)
	a.engine.Tick(ctx)
	a.engine.Tick(ctx)
	a.reconciler.Tick(ctx)
	a.reconciler.Tick(ctx)

	row, err := a.led.Get(ctx, "Y")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpenDone, row.Status)

	trail, err := a.st.Tickets().ListByUID(ctx, "Y")
	require.NoError(t, err)
	assert.Len(t, trail, 1, "replayed ticks must not create extra tickets")
	assert.Len(t, conn.Orders(), 1, "replayed ticks must not resubmit orders")
}
