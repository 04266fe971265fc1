package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remora/internal/gateway/sim"
	"remora/internal/ledger"
	"remora/internal/market"
	"remora/internal/store"
	"remora/internal/store/model"
	"remora/internal/types"
)

type rig struct {
	led      *ledger.Ledger
	monitors *store.MonitorRepo
	tickets  *store.TicketRepo
	sim      *sim.Connector
	atr      *market.ATRService
	mon      *Monitor
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "monitor_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	conn := sim.New()
	atr := market.NewATRService(conn, "15m", 14)
	led := ledger.New(st.Ledger())
	return &rig{
		led:      led,
		monitors: st.Monitors(),
		tickets:  st.Tickets(),
		sim:      conn,
		atr:      atr,
		mon:      New(cfg, led, st.Monitors(), conn, atr, nil),
	}
}

// openPosition drives a uid to open_done so the monitor picks it up.
func (r *rig) openPosition(t *testing.T, uid string, qty, entry float64) {
	t.Helper()
	ctx := context.Background()
	_, created, err := r.led.Admit(ctx, ledger.Admission{
		UID: uid, InstID: "BTCUSDT", Side: types.SideLong, Price: entry,
	})
	require.NoError(t, err)
	require.True(t, created)
	applied, err := r.led.ApplyFill(ctx, ledger.Fill{UID: uid, Action: types.ActionOpen, Step: 0, Qty: qty, Lev: 5, Price: entry})
	require.NoError(t, err)
	require.True(t, applied)
}

func TestMonitorIngest(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	r.openPosition(t, "m1", 2, 100)

	r.mon.Tick(ctx)

	row, err := r.monitors.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorFollow, row.Status)
	assert.Equal(t, 1.0, row.QtyRatio)
	assert.Equal(t, 2.0, row.QtyOpen)
	assert.Equal(t, row.ReqStep, row.DoneStep, "a fresh row starts ready")

	pos, err := r.led.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFollow, pos.Status, "ingest syncs the ledger to follow")

	// Replay fires nothing new.
	r.mon.Tick(ctx)
	rows, err := r.monitors.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMonitorArmsLevels(t *testing.T) {
	r := newRig(t, Config{SlBeTriggerATR: 1, SlTrailTriggerATR: 2, TrailOffsetATR: 1, TpDynTriggerATR: 1.5, TpDynMultATR: 3, PyramideTriggerATR: 99})
	ctx := context.Background()
	r.openPosition(t, "m2", 2, 100)
	r.atr.Set("BTCUSDT", 2)
	r.mon.Tick(ctx)

	// +1 ATR of favorable excursion arms the break-even stop only.
	r.sim.SetQuote("BTCUSDT", 102, 0)
	r.mon.Tick(ctx)
	row, err := r.monitors.Get(ctx, "m2")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, row.MfeATR, 1e-9)
	assert.Equal(t, 100.0, row.SlBe)
	assert.Zero(t, row.SlTrail)

	// +2 ATR arms the trail and the dynamic target; levels already armed
	// never move.
	r.sim.SetQuote("BTCUSDT", 104, 0)
	r.mon.Tick(ctx)
	row, err = r.monitors.Get(ctx, "m2")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, row.MfeATR, 1e-9)
	assert.Equal(t, 100.0, row.SlBe)
	assert.Equal(t, 102.0, row.SlTrail)
	assert.Equal(t, 106.0, row.TpDyn)

	// Retreat: MFE is sticky, MAE tracks the worst adverse move.
	r.sim.SetQuote("BTCUSDT", 99, 0)
	r.mon.Tick(ctx)
	row, err = r.monitors.Get(ctx, "m2")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, row.MfeATR, 1e-9)
	assert.InDelta(t, 0.5, row.MaeATR, 1e-9)
}

func TestMonitorTrailStopEmitsClose(t *testing.T) {
	r := newRig(t, Config{SlBeTriggerATR: 1, SlTrailTriggerATR: 2, TrailOffsetATR: 1, PyramideTriggerATR: 99, TpDynTriggerATR: 99})
	ctx := context.Background()
	r.openPosition(t, "m3", 2, 100)
	r.atr.Set("BTCUSDT", 2)
	r.mon.Tick(ctx)

	r.sim.SetQuote("BTCUSDT", 104, 0)
	r.mon.Tick(ctx)

	// Price falls back through the armed trail at 102.
	r.sim.SetQuote("BTCUSDT", 101.5, 0)
	r.mon.Tick(ctx)

	row, err := r.monitors.Get(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorCloseReq, row.Status)
	assert.Equal(t, types.ReasonSlTrailHit, row.Reason)
	assert.Equal(t, row.DoneStep+1, row.ReqStep)

	pos, err := r.led.Get(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCloseReq, pos.Status)
}

func TestMonitorTargetEmitsPartial(t *testing.T) {
	r := newRig(t, Config{TpDynTriggerATR: 1.5, TpDynMultATR: 2, PartialCloseRatio: 0.5, PyramideTriggerATR: 99})
	ctx := context.Background()
	r.openPosition(t, "m4", 2, 100)
	r.atr.Set("BTCUSDT", 2)
	r.mon.Tick(ctx)

	r.sim.SetQuote("BTCUSDT", 103, 0)
	r.mon.Tick(ctx)
	row, err := r.monitors.Get(ctx, "m4")
	require.NoError(t, err)
	require.Equal(t, 104.0, row.TpDyn)

	r.sim.SetQuote("BTCUSDT", 104.5, 0)
	r.mon.Tick(ctx)

	row, err = r.monitors.Get(ctx, "m4")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorPartialReq, row.Status)
	assert.Equal(t, types.ReasonTpDynHit, row.Reason)

	pos, err := r.led.Get(ctx, "m4")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartialReq, pos.Status)
	assert.Equal(t, 0.5, pos.ReqRatio)
}

func TestMonitorReadinessGate(t *testing.T) {
	r := newRig(t, Config{MaxTradeAge: time.Millisecond})
	ctx := context.Background()
	r.openPosition(t, "m5", 2, 100)
	r.mon.Tick(ctx)

	// Age timeout fires the close request.
	time.Sleep(5 * time.Millisecond)
	r.mon.Tick(ctx)
	row, err := r.monitors.Get(ctx, "m5")
	require.NoError(t, err)
	require.Equal(t, types.MonitorCloseReq, row.Status)
	require.NotEqual(t, row.ReqStep, row.DoneStep)

	pos, err := r.led.Get(ctx, "m5")
	require.NoError(t, err)
	firstStatus := pos.Status

	// While the request is unacknowledged no further decision may fire,
	// no matter how many cycles pass.
	r.mon.Tick(ctx)
	r.mon.Tick(ctx)
	pos, err = r.led.Get(ctx, "m5")
	require.NoError(t, err)
	assert.Equal(t, firstStatus, pos.Status)
}

func TestMonitorNoMfeTimeout(t *testing.T) {
	r := newRig(t, Config{MinMfeKeepATR: 0.5, MaxNoMfeAge: time.Millisecond, MaxTradeAge: time.Hour})
	ctx := context.Background()
	r.openPosition(t, "m6", 2, 100)
	r.mon.Tick(ctx)

	time.Sleep(5 * time.Millisecond)
	r.mon.Tick(ctx)

	row, err := r.monitors.Get(ctx, "m6")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorCloseReq, row.Status)
	assert.Equal(t, types.ReasonTimeoutNoMfe, row.Reason)
}

func TestMonitorDoneReset(t *testing.T) {
	r := newRig(t, Config{TpDynTriggerATR: 1.5, TpDynMultATR: 2, PartialCloseRatio: 0.5, PyramideTriggerATR: 99})
	ctx := context.Background()
	r.openPosition(t, "m7", 2, 100)
	r.atr.Set("BTCUSDT", 2)
	r.mon.Tick(ctx)

	r.sim.SetQuote("BTCUSDT", 104.5, 0)
	r.mon.Tick(ctx)
	row, err := r.monitors.Get(ctx, "m7")
	require.NoError(t, err)
	require.Equal(t, types.MonitorPartialReq, row.Status)

	// The saga completes downstream: partial fill lands in the ledger.
	applied, err := r.led.ApplyFill(ctx, ledger.Fill{UID: "m7", Action: types.ActionPartial, Step: 0, Qty: 1, Price: 104.5})
	require.NoError(t, err)
	require.True(t, applied)

	r.mon.Tick(ctx)

	row, err = r.monitors.Get(ctx, "m7")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorFollow, row.Status)
	assert.Equal(t, types.ReasonDoneReset, row.Reason)
	assert.Equal(t, 1, row.Step)
	assert.Equal(t, row.ReqStep, row.DoneStep, "reset restores readiness")
	assert.InDelta(t, 0.5, row.QtyRatio, 1e-9)

	pos, err := r.led.Get(ctx, "m7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFollow, pos.Status)
}

func TestMonitorForcedNoStdby(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	r.openPosition(t, "m8", 2, 100)
	r.mon.Tick(ctx)

	// Corrupt the row with a status outside the monitor vocabulary.
	require.NoError(t, r.monitors.Update(ctx, "m8", map[string]any{"status": "close_stdby"}))

	r.mon.Tick(ctx)

	row, err := r.monitors.Get(ctx, "m8")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorFollow, row.Status)
	assert.Equal(t, types.ReasonForcedNoStdby, row.Reason)
}

func TestMonitorPurgesTerminalAndOrphans(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()

	t.Run("terminal position removes the row", func(t *testing.T) {
		r.openPosition(t, "m9", 2, 100)
		r.mon.Tick(ctx)
		_, err := r.led.RequestTransition(ctx, "m9", types.ActionClose, 1)
		require.NoError(t, err)
		_, err = r.led.ApplyFill(ctx, ledger.Fill{UID: "m9", Action: types.ActionClose, Step: 0, Qty: 2, Price: 99})
		require.NoError(t, err)

		r.mon.Tick(ctx)

		_, err = r.monitors.Get(ctx, "m9")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("missing ledger row removes the orphan", func(t *testing.T) {
		_, err := r.monitors.Insert(ctx, &model.MonitorModel{
			UID: "ghost", InstID: "BTCUSDT", Side: types.SideLong,
			Status: types.MonitorFollow, QtyRatio: 1,
		})
		require.NoError(t, err)

		r.mon.Tick(ctx)

		_, err = r.monitors.Get(ctx, "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMonitorPyramideTrigger(t *testing.T) {
	r := newRig(t, Config{PyramideTriggerATR: 1.2, MaxPyramides: 1, SlBeTriggerATR: 99, SlTrailTriggerATR: 99, TpDynTriggerATR: 99})
	ctx := context.Background()
	r.openPosition(t, "m10", 2, 100)
	r.atr.Set("BTCUSDT", 2)
	r.mon.Tick(ctx)

	r.sim.SetQuote("BTCUSDT", 103, 0)
	r.mon.Tick(ctx)

	row, err := r.monitors.Get(ctx, "m10")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorPyramideReq, row.Status)
	assert.Equal(t, types.ReasonPyramideAdd, row.Reason)

	// Complete the add; step 1 == MaxPyramides, so no further add fires.
	applied, err := r.led.ApplyFill(ctx, ledger.Fill{UID: "m10", Action: types.ActionPyramide, Step: 0, Qty: 1, Price: 103})
	require.NoError(t, err)
	require.True(t, applied)
	r.mon.Tick(ctx)
	r.sim.SetQuote("BTCUSDT", 110, 0)
	r.mon.Tick(ctx)

	pos, err := r.led.Get(ctx, "m10")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFollow, pos.Status, "pyramide cap blocks further adds")
}
