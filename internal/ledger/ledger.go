// Package ledger owns the authoritative position record. Every status and
// step mutation in the system funnels through the named operations here;
// other workers hold a *Ledger, never the raw table.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remora/internal/journal"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/store/model"
	"remora/internal/types"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Admission is one upstream signal to open a position.
type Admission struct {
	UID     string
	InstID  string
	Side    types.Side
	Price   float64
	Score   float64
	Payload []byte
}

// Fill is a completed execution the reconciler propagates into the ledger.
type Fill struct {
	UID    string
	Action types.ActionType
	Step   int
	Qty    float64
	Lev    int
	Price  float64
}

type Ledger struct {
	repo    *store.LedgerRepo
	journal *journal.Store
}

type Option func(*Ledger)

// WithJournal attaches an audit journal. Journal writes are best effort and
// never fail the ledger operation they describe.
func WithJournal(j *journal.Store) Option {
	return func(l *Ledger) { l.journal = j }
}

func New(repo *store.LedgerRepo, opts ...Option) *Ledger {
	l := &Ledger{repo: repo}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Ledger) record(ctx context.Context, e journal.Entry) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Append(ctx, e); err != nil {
		logger.Warnf("ledger: journal append failed for %s: %v", e.UID, err)
	}
}

// Admit creates the open_req row for a signal. Idempotent by uid: a replayed
// signal is reported as already admitted, never duplicated. A missing uid is
// assigned here so the whole lifecycle shares one identity.
func (l *Ledger) Admit(ctx context.Context, adm Admission) (string, bool, error) {
	uid := strings.TrimSpace(adm.UID)
	if uid == "" {
		uid = uuid.NewString()
	}
	instID := strings.ToUpper(strings.TrimSpace(adm.InstID))
	if instID == "" {
		return "", false, errors.New("ledger: admission requires instId")
	}
	if adm.Side != types.SideLong && adm.Side != types.SideShort {
		return "", false, fmt.Errorf("ledger: admission requires side, got %q", adm.Side)
	}
	if adm.Price <= 0 {
		return "", false, errors.New("ledger: admission requires positive price")
	}
	now := time.Now().UnixMilli()
	row := &model.PositionModel{
		UID:        uid,
		InstID:     instID,
		Side:       adm.Side,
		Status:     types.StatusOpenReq,
		Step:       0,
		Entry:      adm.Price,
		Score:      adm.Score,
		SignalJSON: datatypes.JSON(adm.Payload),
		TsOpen:     now,
		TsUpdated:  now,
	}
	created, err := l.repo.Insert(ctx, row)
	if err != nil {
		return "", false, err
	}
	if created {
		l.record(ctx, journal.Entry{
			UID:    uid,
			InstID: instID,
			Event:  journal.EventAdmitted,
			Status: string(types.StatusOpenReq),
			Price:  adm.Price,
		})
	}
	return uid, created, nil
}

// MirrorStdby records that a ticket now exists for a *_req row. The stdby
// vocabulary belongs to the dispatcher layer; the ledger only mirrors it.
// Returns false when the row already moved on.
func (l *Ledger) MirrorStdby(ctx context.Context, uid string, action types.ActionType) (bool, error) {
	from, to := action.RequestStatus(), action.StdbyStatus()
	if err := ValidateTransition(from, to); err != nil {
		return false, err
	}
	return l.repo.CompareAndSet(ctx, uid, from, to, nil)
}

// ApplyFill propagates an executed ticket into the row, matched by uid AND
// step. The primary path expects the mirrored *_stdby state; the safety net
// accepts *_req in case the mirror write was lost. Both are idempotent: a
// row already advanced makes this a no-op and returns false.
func (l *Ledger) ApplyFill(ctx context.Context, fill Fill) (bool, error) {
	row, err := l.repo.Get(ctx, fill.UID)
	if err != nil {
		return false, err
	}
	if row.Status.IsTerminal() {
		return false, nil
	}
	updates, err := l.fillUpdates(row, fill)
	if err != nil {
		return false, err
	}
	done := fill.Action.DoneStatus()
	applied, err := l.repo.CompareAndSetAtStep(ctx, fill.UID, fill.Step, fill.Action.StdbyStatus(), done, updates)
	if err != nil {
		return false, err
	}
	if !applied {
		// Safety net: ticket completed but the stdby mirror never landed.
		applied, err = l.repo.CompareAndSetAtStep(ctx, fill.UID, fill.Step, fill.Action.RequestStatus(), done, updates)
		if err != nil {
			return false, err
		}
	}
	if applied {
		l.record(ctx, journal.Entry{
			UID:    fill.UID,
			InstID: row.InstID,
			Event:  journal.EventFill,
			Action: string(fill.Action),
			Status: string(done),
			Step:   fill.Step,
			Qty:    fill.Qty,
			Price:  fill.Price,
		})
	}
	return applied, nil
}

func (l *Ledger) fillUpdates(row *model.PositionModel, fill Fill) (map[string]any, error) {
	now := time.Now().UnixMilli()
	updates := map[string]any{}
	if fill.Action.IncrementsStep() {
		updates["step"] = row.Step + 1
	}
	switch fill.Action {
	case types.ActionOpen:
		updates["entry"] = fill.Price
		updates["qty"] = fill.Qty
		updates["lev"] = fill.Lev
		updates["ts_open"] = now
	case types.ActionPyramide:
		total := row.Qty + fill.Qty
		if total > 0 {
			updates["entry"] = (row.Entry*row.Qty + fill.Price*fill.Qty) / total
		}
		updates["qty"] = total
	case types.ActionPartial:
		remaining := row.Qty - fill.Qty
		if remaining < 0 {
			remaining = 0
		}
		updates["qty"] = remaining
	case types.ActionClose:
		updates["qty"] = 0.0
		updates["ts_close"] = now
	default:
		return nil, fmt.Errorf("ledger: unknown fill action %q", fill.Action)
	}
	return updates, nil
}

// RequestTransition is the monitor-originated edge follow → *_req. The
// requested close ratio is recorded on the row itself so the dispatcher
// sizes partial closes from the position's own request. Returns false when
// the row is not in follow (an earlier request is still in flight).
func (l *Ledger) RequestTransition(ctx context.Context, uid string, action types.ActionType, ratio float64) (bool, error) {
	to := action.RequestStatus()
	if err := ValidateTransition(types.StatusFollow, to); err != nil {
		return false, err
	}
	updates := map[string]any{}
	if ratio > 0 {
		updates["req_ratio"] = ratio
	}
	accepted, err := l.repo.CompareAndSet(ctx, uid, types.StatusFollow, to, updates)
	if accepted {
		l.record(ctx, journal.Entry{
			UID:    uid,
			Event:  journal.EventRequested,
			Action: string(action),
			Status: string(to),
			Qty:    ratio,
		})
	}
	return accepted, err
}

// SyncFollow moves a *_done row back to follow once the monitor has absorbed
// the stage. close_done is terminal and never syncs.
func (l *Ledger) SyncFollow(ctx context.Context, uid string, doneStatus types.PositionStatus) (bool, error) {
	if !doneStatus.IsDone() || doneStatus == types.StatusCloseDone {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doneStatus, types.StatusFollow)
	}
	return l.repo.CompareAndSet(ctx, uid, doneStatus, types.StatusFollow, nil)
}

// Expire terminates request rows stuck longer than maxAge without reaching
// stdby.
func (l *Ledger) Expire(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	return l.repo.ExpireStale(ctx, cutoff)
}

// Get exposes a read-only view of one row.
func (l *Ledger) Get(ctx context.Context, uid string) (*model.PositionModel, error) {
	return l.repo.Get(ctx, uid)
}

// ListByStatus exposes a read-only view filtered by status.
func (l *Ledger) ListByStatus(ctx context.Context, statuses ...types.PositionStatus) ([]model.PositionModel, error) {
	return l.repo.ListByStatus(ctx, statuses...)
}

// ListOpen exposes every non-terminal row.
func (l *Ledger) ListOpen(ctx context.Context) ([]model.PositionModel, error) {
	return l.repo.ListOpen(ctx)
}

// CountByStatus summarizes the ledger for status reporting.
func (l *Ledger) CountByStatus(ctx context.Context) (map[types.PositionStatus]int64, error) {
	return l.repo.CountByStatus(ctx)
}
