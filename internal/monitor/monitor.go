// Package monitor is the follower: per-position derived state, protective
// level arming, timeout enforcement and the request gate. It never writes
// ledger status directly; every transition goes through the ledger's named
// request operation, and a new request is emitted only when the previous one
// is fully acknowledged (req_step == done_step).
package monitor

import (
	"context"
	"fmt"
	"time"

	"remora/internal/gateway/exchange"
	"remora/internal/gateway/notifier"
	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/market"
	"remora/internal/store"
	"remora/internal/store/model"
	"remora/internal/types"
)

// Config holds the arm/timeout thresholds. Excursion thresholds are in ATR
// units so they transfer across instruments.
type Config struct {
	SlBeTriggerATR    float64
	SlTrailTriggerATR float64
	TrailOffsetATR    float64
	TpDynTriggerATR   float64
	TpDynMultATR      float64

	PyramideTriggerATR float64
	MaxPyramides       int
	PartialCloseRatio  float64

	MinMfeKeepATR float64
	MaxTradeAge   time.Duration
	MaxNoMfeAge   time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlBeTriggerATR <= 0 {
		c.SlBeTriggerATR = 1.0
	}
	if c.SlTrailTriggerATR <= 0 {
		c.SlTrailTriggerATR = 2.0
	}
	if c.TrailOffsetATR <= 0 {
		c.TrailOffsetATR = 1.0
	}
	if c.TpDynTriggerATR <= 0 {
		c.TpDynTriggerATR = 1.5
	}
	if c.TpDynMultATR <= 0 {
		c.TpDynMultATR = 3.0
	}
	if c.PyramideTriggerATR <= 0 {
		c.PyramideTriggerATR = 1.2
	}
	if c.MaxPyramides <= 0 {
		c.MaxPyramides = 2
	}
	if c.PartialCloseRatio <= 0 || c.PartialCloseRatio >= 1 {
		c.PartialCloseRatio = 0.5
	}
	if c.MinMfeKeepATR <= 0 {
		c.MinMfeKeepATR = 0.3
	}
	if c.MaxTradeAge <= 0 {
		c.MaxTradeAge = 48 * time.Hour
	}
	if c.MaxNoMfeAge <= 0 {
		c.MaxNoMfeAge = 6 * time.Hour
	}
	return c
}

type Monitor struct {
	cfg      Config
	led      *ledger.Ledger
	monitors *store.MonitorRepo
	quotes   exchange.QuoteSource
	atr      *market.ATRService
	notify   notifier.TextNotifier
	nowFn    func() time.Time
}

func New(cfg Config, led *ledger.Ledger, monitors *store.MonitorRepo, quotes exchange.QuoteSource, atr *market.ATRService, notify notifier.TextNotifier) *Monitor {
	return &Monitor{
		cfg:      cfg.withDefaults(),
		led:      led,
		monitors: monitors,
		quotes:   quotes,
		atr:      atr,
		notify:   notify,
		nowFn:    time.Now,
	}
}

// Tick runs one follower cycle: ingest freshly opened positions, then walk
// every monitor row. Per-row failures are logged and skipped.
func (m *Monitor) Tick(ctx context.Context) {
	m.ingest(ctx)
	rows, err := m.monitors.List(ctx)
	if err != nil {
		logger.Errorf("monitor: list rows failed: %v", err)
		return
	}
	for i := range rows {
		if err := m.followOne(ctx, &rows[i]); err != nil {
			logger.Errorf("monitor: uid=%s: %v", rows[i].UID, err)
		}
	}
}

// ingest creates monitor rows for ledger positions that just completed their
// opening fill. Creation is conflict-guarded, so replays are no-ops.
func (m *Monitor) ingest(ctx context.Context) {
	rows, err := m.led.ListByStatus(ctx, types.StatusOpenDone)
	if err != nil {
		logger.Errorf("monitor: list open_done failed: %v", err)
		return
	}
	for i := range rows {
		pos := &rows[i]
		created, err := m.monitors.Insert(ctx, &model.MonitorModel{
			UID:      pos.UID,
			InstID:   pos.InstID,
			Side:     pos.Side,
			Step:     pos.Step,
			Status:   types.MonitorFollow,
			Entry:    pos.Entry,
			QtyRatio: 1,
			QtyOpen:  pos.Qty,
			ReqStep:  pos.Step,
			DoneStep: pos.Step,
			TsOpen:   pos.TsOpen,
		})
		if err != nil {
			logger.Errorf("monitor: ingest uid=%s failed: %v", pos.UID, err)
			continue
		}
		if created {
			logger.Infof("monitor: following uid=%s %s %s qty=%.8f entry=%.8f",
				pos.UID, pos.InstID, pos.Side, pos.Qty, pos.Entry)
			m.send(fmt.Sprintf("✅ opened %s %s qty=%.6f @ %.6f", pos.InstID, pos.Side, pos.Qty, pos.Entry))
		}
		if _, err := m.led.SyncFollow(ctx, pos.UID, types.StatusOpenDone); err != nil {
			logger.Errorf("monitor: follow-sync uid=%s failed: %v", pos.UID, err)
		}
	}
}

func (m *Monitor) followOne(ctx context.Context, row *model.MonitorModel) error {
	pos, err := m.led.Get(ctx, row.UID)
	if err != nil {
		if err == store.ErrNotFound {
			// Sync drift: no ledger row means nothing to follow.
			logger.Infof("monitor: purging orphan row uid=%s", row.UID)
			return m.monitors.Delete(ctx, row.UID)
		}
		return err
	}
	if pos.Status == types.StatusCloseDone || pos.Status == types.StatusExpired {
		logger.Infof("monitor: uid=%s terminal (%s), row removed", row.UID, pos.Status)
		m.send(fmt.Sprintf("🏁 closed %s %s (%s)", pos.InstID, pos.Side, row.Reason))
		return m.monitors.Delete(ctx, row.UID)
	}

	// The stdby vocabulary belongs to the dispatcher/ledger layer. A monitor
	// row carrying it is corrupt state and is forced back to follow.
	if !row.Status.Valid() {
		logger.Warnf("monitor: uid=%s invalid status %q forced to follow", row.UID, row.Status)
		if err := m.monitors.Update(ctx, row.UID, map[string]any{
			"status": types.MonitorFollow,
			"reason": types.ReasonForcedNoStdby,
		}); err != nil {
			return err
		}
		row.Status = types.MonitorFollow
		row.Reason = types.ReasonForcedNoStdby
	}

	if synced, err := m.syncFromLedger(ctx, row, pos); err != nil || synced {
		return err
	}

	quote, quoteOK := m.currentQuote(ctx, row.InstID)
	if quoteOK {
		if err := m.updateExcursions(ctx, row, quote); err != nil {
			return err
		}
		if err := m.armLevels(ctx, row); err != nil {
			return err
		}
	}

	// Validity guard against stale zero-exposure rows.
	if !(row.QtyRatio > 0 || row.QtyOpen > 0) {
		return nil
	}
	if row.Status != types.MonitorFollow {
		return nil
	}
	// Readiness: a previous request is still unacknowledged.
	if row.ReqStep != row.DoneStep {
		return nil
	}

	if done, err := m.checkTimeouts(ctx, row); err != nil || done {
		return err
	}
	if quoteOK {
		if done, err := m.checkLevels(ctx, row, pos, quote); err != nil || done {
			return err
		}
		if err := m.checkPyramide(ctx, row, pos); err != nil {
			return err
		}
	}
	return nil
}

// syncFromLedger absorbs a completed stage: the ledger reports *_done, the
// monitor resets to follow and re-bases its exposure fields.
func (m *Monitor) syncFromLedger(ctx context.Context, row *model.MonitorModel, pos *model.PositionModel) (bool, error) {
	if !pos.Status.IsDone() || pos.Status == types.StatusCloseDone {
		return false, nil
	}
	if row.Status != types.MonitorFollow && pos.Step >= row.Step {
		ratio := row.QtyRatio
		if row.QtyOpen > 0 {
			ratio = pos.Qty / row.QtyOpen
		}
		if err := m.monitors.Update(ctx, row.UID, map[string]any{
			"status":    types.MonitorFollow,
			"step":      pos.Step,
			"done_step": row.ReqStep,
			"qty_ratio": ratio,
			"reason":    types.ReasonDoneReset,
		}); err != nil {
			return false, err
		}
		logger.Infof("monitor: uid=%s stage %d acknowledged, back to follow", row.UID, pos.Step)
	}
	_, err := m.led.SyncFollow(ctx, pos.UID, pos.Status)
	return true, err
}

func (m *Monitor) updateExcursions(ctx context.Context, row *model.MonitorModel, quote exchange.Quote) error {
	atr, ok := m.atr.Get(row.InstID)
	if !ok || atr <= 0 || row.Entry <= 0 {
		return nil
	}
	move := (quote.Mid - row.Entry) / atr
	if row.Side == types.SideShort {
		move = -move
	}
	updates := map[string]any{}
	if move > row.MfeATR {
		updates["mfe_atr"] = move
		row.MfeATR = move
	}
	if -move > row.MaeATR {
		updates["mae_atr"] = -move
		row.MaeATR = -move
	}
	if len(updates) == 0 {
		return nil
	}
	return m.monitors.Update(ctx, row.UID, updates)
}

// armLevels sets each protective level once its MFE trigger is crossed.
// Levels are armed exactly once and never move afterwards.
func (m *Monitor) armLevels(ctx context.Context, row *model.MonitorModel) error {
	atr, ok := m.atr.Get(row.InstID)
	if !ok || atr <= 0 || row.Entry <= 0 {
		return nil
	}
	sign := 1.0
	if row.Side == types.SideShort {
		sign = -1.0
	}
	updates := map[string]any{}
	if row.SlBe == 0 && row.MfeATR >= m.cfg.SlBeTriggerATR {
		updates["sl_be"] = row.Entry
		row.SlBe = row.Entry
		logger.Infof("monitor: uid=%s armed break-even stop @ %.8f", row.UID, row.Entry)
	}
	if row.SlTrail == 0 && row.MfeATR >= m.cfg.SlTrailTriggerATR {
		level := row.Entry + sign*m.cfg.TrailOffsetATR*atr
		updates["sl_trail"] = level
		row.SlTrail = level
		logger.Infof("monitor: uid=%s armed trailing stop @ %.8f", row.UID, level)
	}
	if row.TpDyn == 0 && row.MfeATR >= m.cfg.TpDynTriggerATR {
		level := row.Entry + sign*m.cfg.TpDynMultATR*atr
		updates["tp_dyn"] = level
		row.TpDyn = level
		logger.Infof("monitor: uid=%s armed dynamic target @ %.8f", row.UID, level)
	}
	if len(updates) == 0 {
		return nil
	}
	return m.monitors.Update(ctx, row.UID, updates)
}

func (m *Monitor) checkTimeouts(ctx context.Context, row *model.MonitorModel) (bool, error) {
	age := m.nowFn().Sub(time.UnixMilli(row.TsOpen))
	if age >= m.cfg.MaxTradeAge {
		return true, m.emit(ctx, row, types.ActionClose, types.ReasonTimeoutMaxAge, 1)
	}
	if row.MfeATR < m.cfg.MinMfeKeepATR && age >= m.cfg.MaxNoMfeAge {
		return true, m.emit(ctx, row, types.ActionClose, types.ReasonTimeoutNoMfe, 1)
	}
	return false, nil
}

// checkLevels fires the armed protective levels.
func (m *Monitor) checkLevels(ctx context.Context, row *model.MonitorModel, pos *model.PositionModel, quote exchange.Quote) (bool, error) {
	adverse := func(level float64) bool {
		if level <= 0 {
			return false
		}
		if row.Side == types.SideShort {
			return quote.Mid >= level
		}
		return quote.Mid <= level
	}
	favorable := func(level float64) bool {
		if level <= 0 {
			return false
		}
		if row.Side == types.SideShort {
			return quote.Mid <= level
		}
		return quote.Mid >= level
	}
	if adverse(row.SlTrail) {
		return true, m.emit(ctx, row, types.ActionClose, types.ReasonSlTrailHit, 1)
	}
	if adverse(row.SlBe) {
		return true, m.emit(ctx, row, types.ActionClose, types.ReasonSlBeHit, 1)
	}
	if favorable(row.TpDyn) {
		return true, m.emit(ctx, row, types.ActionPartial, types.ReasonTpDynHit, m.cfg.PartialCloseRatio)
	}
	return false, nil
}

func (m *Monitor) checkPyramide(ctx context.Context, row *model.MonitorModel, pos *model.PositionModel) error {
	if row.MfeATR < m.cfg.PyramideTriggerATR {
		return nil
	}
	if pos.Step >= m.cfg.MaxPyramides {
		return nil
	}
	// Only add while no protective level has been hit and the trade is
	// still fully sized.
	if row.QtyRatio < 1 {
		return nil
	}
	return m.emit(ctx, row, types.ActionPyramide, types.ReasonPyramideAdd, 0)
}

// emit issues one request through the ledger and mirrors it on the monitor
// row. The ledger transition is the gate: if it refuses (row not in follow),
// the monitor emits nothing.
func (m *Monitor) emit(ctx context.Context, row *model.MonitorModel, action types.ActionType, reason string, ratio float64) error {
	ok, err := m.led.RequestTransition(ctx, row.UID, action, ratio)
	if err != nil {
		return err
	}
	if !ok {
		// Ledger is mid-transition (or already carrying this request after a
		// crash); resync next cycle.
		logger.Debugf("monitor: uid=%s %s request refused by ledger, will resync", row.UID, action)
		return nil
	}
	status, _ := monitorStatusFor(action)
	updates := map[string]any{
		"req_step": row.DoneStep + 1,
		"reason":   reason,
	}
	if _, err := m.monitors.CompareAndSetStatus(ctx, row.UID, types.MonitorFollow, status, updates); err != nil {
		return err
	}
	logger.Infof("monitor: uid=%s requested %s reason=%s ratio=%.2f", row.UID, action, reason, ratio)
	if action == types.ActionClose {
		m.send(fmt.Sprintf("⏱ close requested %s %s reason=%s", row.InstID, row.Side, reason))
	}
	return nil
}

func (m *Monitor) currentQuote(ctx context.Context, instID string) (exchange.Quote, bool) {
	if m.quotes == nil {
		return exchange.Quote{}, false
	}
	q, err := m.quotes.GetQuote(ctx, instID)
	if err != nil || q.Mid <= 0 {
		return exchange.Quote{}, false
	}
	return q, true
}

func (m *Monitor) send(text string) {
	if m.notify == nil {
		return
	}
	if err := m.notify.SendText(text); err != nil {
		logger.Warnf("monitor: notify failed: %v", err)
	}
}

func monitorStatusFor(action types.ActionType) (types.MonitorStatus, bool) {
	switch action {
	case types.ActionPartial:
		return types.MonitorPartialReq, true
	case types.ActionPyramide:
		return types.MonitorPyramideReq, true
	case types.ActionClose:
		return types.MonitorCloseReq, true
	}
	return "", false
}
