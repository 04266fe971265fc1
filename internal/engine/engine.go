// Package engine executes pending tickets against current market quotes.
// It has no state-machine knowledge: price the ticket with the cost model,
// mark it done, let the reconciler close the loop.
package engine

import (
	"context"
	"errors"

	"remora/internal/costmodel"
	"remora/internal/gateway/exchange"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/store/model"
	"remora/internal/types"
)

type Engine struct {
	tickets   *store.TicketRepo
	connector exchange.Connector
	rng       costmodel.Rand
}

func New(tickets *store.TicketRepo, connector exchange.Connector, rng costmodel.Rand) *Engine {
	return &Engine{tickets: tickets, connector: connector, rng: rng}
}

// Tick fills every pending ticket it can price. A missing quote is not an
// error: the ticket stays stdby and the next cycle retries.
func (e *Engine) Tick(ctx context.Context) {
	rows, err := e.tickets.ListPending(ctx)
	if err != nil {
		logger.Errorf("engine: list pending tickets failed: %v", err)
		return
	}
	for i := range rows {
		if err := e.fill(ctx, &rows[i]); err != nil {
			logger.Errorf("engine: fill ticket id=%d uid=%s: %v", rows[i].ID, rows[i].UID, err)
		}
	}
}

func (e *Engine) fill(ctx context.Context, t *model.TicketModel) error {
	quote, err := e.connector.GetQuote(ctx, t.InstID)
	if err != nil {
		if errors.Is(err, exchange.ErrNoQuote) {
			logger.Debugf("engine: no quote for %s, ticket id=%d deferred", t.InstID, t.ID)
			return nil
		}
		return err
	}
	if quote.Mid <= 0 {
		return nil
	}

	dir := types.TakerDirection(t.Side, t.ActionType)
	price := costmodel.ExecutedPrice(dir, quote.Mid, quote.SpreadBps)
	slip := costmodel.SlippageBps(quote.SpreadBps, e.rng)
	price = costmodel.ApplySlippage(dir, price, slip)
	fee := costmodel.Fee(t.Qty, price)

	if err := e.connector.SubmitOrder(ctx, exchange.Order{InstID: t.InstID, Direction: dir, Qty: t.Qty}); err != nil {
		// Leave the ticket pending; submission retries next cycle.
		logger.Warnf("engine: submit order uid=%s failed, will retry: %v", t.UID, err)
		return nil
	}

	filled, err := e.tickets.MarkFilled(ctx, t.ID, price, fee, slip)
	if err != nil {
		return err
	}
	if filled {
		logger.Infof("engine: filled uid=%s action=%s step=%d price=%.8f fee=%.8f slip=%.2fbps",
			t.UID, t.ActionType, t.Step, price, fee, slip)
	}
	return nil
}
