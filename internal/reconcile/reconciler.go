// Package reconcile closes the loop between filled tickets and the ledger.
// Both passes are idempotent: replaying a completed ticket against an
// already-advanced row is a guaranteed no-op, never an error.
package reconcile

import (
	"context"

	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/store/model"
)

type Reconciler struct {
	led     *ledger.Ledger
	tickets *store.TicketRepo
}

func New(led *ledger.Ledger, tickets *store.TicketRepo) *Reconciler {
	return &Reconciler{led: led, tickets: tickets}
}

// Tick propagates every unacknowledged fill into the ledger. The ledger's
// ApplyFill covers both the mirrored *_stdby path and the *_req safety net;
// once the row is provably at or past this ticket's stage, the ticket is
// flagged acked so the audit trail stops being rescanned.
func (r *Reconciler) Tick(ctx context.Context) {
	rows, err := r.tickets.ListUnacked(ctx)
	if err != nil {
		logger.Errorf("reconcile: list filled tickets failed: %v", err)
		return
	}
	for i := range rows {
		if err := r.reconcileTicket(ctx, &rows[i]); err != nil {
			logger.Errorf("reconcile: ticket id=%d uid=%s: %v", rows[i].ID, rows[i].UID, err)
		}
	}
}

func (r *Reconciler) reconcileTicket(ctx context.Context, t *model.TicketModel) error {
	applied, err := r.led.ApplyFill(ctx, ledger.Fill{
		UID:    t.UID,
		Action: t.ActionType,
		Step:   t.Step,
		Qty:    t.Qty,
		Lev:    t.Lev,
		Price:  t.PriceExec,
	})
	if err != nil {
		if err == store.ErrNotFound {
			// Ledger row is gone (archived externally); nothing left to
			// advance, stop revisiting the ticket.
			return r.tickets.MarkAcked(ctx, t.ID)
		}
		return err
	}
	if applied {
		logger.Infof("reconcile: uid=%s %s step=%d acknowledged at %.8f",
			t.UID, t.ActionType, t.Step, t.PriceExec)
		return r.tickets.MarkAcked(ctx, t.ID)
	}
	// Not applied: either already reconciled (safe to ack) or the row is in
	// an unexpected earlier state (leave unacked and retry next cycle).
	row, err := r.led.Get(ctx, t.UID)
	if err != nil {
		if err == store.ErrNotFound {
			return r.tickets.MarkAcked(ctx, t.ID)
		}
		return err
	}
	if rowPastTicket(row, t) {
		return r.tickets.MarkAcked(ctx, t.ID)
	}
	return nil
}

// rowPastTicket reports whether the ledger row has provably absorbed this
// ticket: a later step, a terminal state, or the same step no longer waiting
// on this action.
func rowPastTicket(row *model.PositionModel, t *model.TicketModel) bool {
	if row.Step > t.Step {
		return true
	}
	if row.Status.IsTerminal() {
		return true
	}
	if row.Step == t.Step {
		switch row.Status {
		case t.ActionType.RequestStatus(), t.ActionType.StdbyStatus():
			return false
		default:
			return true
		}
	}
	return false
}
