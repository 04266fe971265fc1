// Package dispatch converts ledger intents into execution tickets. The
// idempotency guard is the whole point: re-polling the same *_req row must
// never create a second ticket for the same (uid, action, step) key.
package dispatch

import (
	"context"
	"time"

	"remora/internal/account"
	"remora/internal/admission"
	"remora/internal/contract"
	"remora/internal/gateway/exchange"
	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/store/model"
	"remora/internal/types"

	"github.com/tidwall/gjson"
)

// Config tunes sizing outside of what the admission sizer decides.
type Config struct {
	// PyramideScale shrinks the sizer output for staged adds.
	PyramideScale float64
	// DefaultCloseRatio applies when a partial request carries no ratio.
	DefaultCloseRatio float64
	// AdmissionTimeout expires *_req rows that never reached stdby.
	AdmissionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PyramideScale <= 0 {
		c.PyramideScale = 0.5
	}
	if c.DefaultCloseRatio <= 0 {
		c.DefaultCloseRatio = 0.5
	}
	return c
}

type Dispatcher struct {
	cfg       Config
	ledger    *ledger.Ledger
	tickets   *store.TicketRepo
	contracts *contract.Registry
	accounts  *account.Feed
	quotes    exchange.QuoteSource
}

func New(cfg Config, led *ledger.Ledger, tickets *store.TicketRepo, contracts *contract.Registry, accounts *account.Feed, quotes exchange.QuoteSource) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg.withDefaults(),
		ledger:    led,
		tickets:   tickets,
		contracts: contracts,
		accounts:  accounts,
		quotes:    quotes,
	}
}

// Tick runs one dispatch cycle: expire stale requests, then turn each
// pending *_req row into a ticket. Per-row failures are logged and skipped.
func (d *Dispatcher) Tick(ctx context.Context) {
	if d.cfg.AdmissionTimeout > 0 {
		if n, err := d.ledger.Expire(ctx, d.cfg.AdmissionTimeout); err != nil {
			logger.Errorf("dispatch: expire pass failed: %v", err)
		} else if n > 0 {
			logger.Infof("dispatch: expired %d stale request(s)", n)
		}
	}
	rows, err := d.ledger.ListByStatus(ctx, types.RequestStatuses()...)
	if err != nil {
		logger.Errorf("dispatch: list requests failed: %v", err)
		return
	}
	for i := range rows {
		if err := d.dispatchRow(ctx, &rows[i]); err != nil {
			logger.Errorf("dispatch: uid=%s status=%s: %v", rows[i].UID, rows[i].Status, err)
		}
	}
}

func (d *Dispatcher) dispatchRow(ctx context.Context, row *model.PositionModel) error {
	action, ok := row.Status.Action()
	if !ok {
		return nil
	}
	exists, err := d.tickets.Exists(ctx, row.UID, action, row.Step)
	if err != nil {
		return err
	}
	if exists {
		// Crash window replay: ticket landed but the mirror write did not.
		_, err := d.ledger.MirrorStdby(ctx, row.UID, action)
		return err
	}

	price := d.referencePrice(ctx, row)
	qty, lev, ok := d.sizeFor(row, action, price)
	if !ok {
		// Rejected sizing keeps the request pending; the admission timeout
		// is what eventually terminates a request that never becomes viable.
		logger.Debugf("dispatch: uid=%s %s sizing rejected, request stays pending", row.UID, action)
		return nil
	}
	if c, found := d.contracts.Lookup(row.InstID); found {
		normalized, accepted := contract.NormalizeQty(qty, price, c)
		if !accepted {
			logger.Debugf("dispatch: uid=%s %s qty=%.8f rejected by contract %s, request stays pending",
				row.UID, action, qty, c.InstID)
			return nil
		}
		qty = normalized
	}

	created, err := d.tickets.Insert(ctx, &model.TicketModel{
		UID:        row.UID,
		ActionType: action,
		Step:       row.Step,
		InstID:     row.InstID,
		Side:       row.Side,
		Qty:        qty,
		Lev:        lev,
		Status:     types.TicketStdby,
	})
	if err != nil {
		return err
	}
	if created {
		logger.Infof("dispatch: ticket created uid=%s action=%s step=%d qty=%.8f lev=%d",
			row.UID, action, row.Step, qty, lev)
	}
	_, err = d.ledger.MirrorStdby(ctx, row.UID, action)
	return err
}

// sizeFor computes the ticket quantity. Opens and pyramides run the
// admission sizer; partial and close pass through the requested share of the
// live quantity.
func (d *Dispatcher) sizeFor(row *model.PositionModel, action types.ActionType, price float64) (float64, int, bool) {
	switch action {
	case types.ActionOpen, types.ActionPyramide:
		snap := d.accounts.Snapshot()
		ratio := admission.TicketRatio(d.accounts.StatsFor(row.InstID))
		secondary := gjson.GetBytes(row.SignalJSON, "score_secondary").Float()
		historical := gjson.GetBytes(row.SignalJSON, "score_historical").Float()
		sizing := admission.TicketQty(snap.Balance, price, row.Score, secondary, historical, snap.MarketRisk, ratio)
		if sizing.Qty <= 0 {
			return 0, 0, false
		}
		if action == types.ActionPyramide {
			return sizing.Qty * d.cfg.PyramideScale, row.Lev, true
		}
		return sizing.Qty, sizing.Leverage, true
	case types.ActionPartial:
		ratio := row.ReqRatio
		if ratio <= 0 || ratio > 1 {
			ratio = d.cfg.DefaultCloseRatio
		}
		qty := row.Qty * ratio
		return qty, row.Lev, qty > 0
	case types.ActionClose:
		return row.Qty, row.Lev, row.Qty > 0
	}
	return 0, 0, false
}

func (d *Dispatcher) referencePrice(ctx context.Context, row *model.PositionModel) float64 {
	if d.quotes != nil {
		if q, err := d.quotes.GetQuote(ctx, row.InstID); err == nil && q.Mid > 0 {
			return q.Mid
		}
	}
	return row.Entry
}
