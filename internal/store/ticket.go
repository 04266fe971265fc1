package store

import (
	"context"
	"errors"
	"time"

	"remora/internal/store/model"
	"remora/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketRepo persists execution tickets. The unique (uid, action_type, step)
// index makes Insert an atomic check-then-insert: two dispatcher cycles
// racing on the same request cannot both create a ticket.
type TicketRepo struct {
	db *gorm.DB
}

// Insert creates a ticket unless one with the same key exists. Returns
// whether a new row was written.
func (r *TicketRepo) Insert(ctx context.Context, t *model.TicketModel) (bool, error) {
	if t == nil {
		return false, errors.New("store: nil ticket")
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}, {Name: "action_type"}, {Name: "step"}},
			DoNothing: true,
		}).
		Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get returns the ticket for one key.
func (r *TicketRepo) Get(ctx context.Context, uid string, action types.ActionType, step int) (*model.TicketModel, error) {
	var t model.TicketModel
	err := r.db.WithContext(ctx).
		Where("uid = ? AND action_type = ? AND step = ?", uid, action, step).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Exists reports whether a ticket with the key exists.
func (r *TicketRepo) Exists(ctx context.Context, uid string, action types.ActionType, step int) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TicketModel{}).
		Where("uid = ? AND action_type = ? AND step = ?", uid, action, step).
		Count(&n).Error
	return n > 0, err
}

// ListPending returns tickets awaiting execution.
func (r *TicketRepo) ListPending(ctx context.Context) ([]model.TicketModel, error) {
	var rows []model.TicketModel
	err := r.db.WithContext(ctx).
		Where("status = ?", types.TicketStdby).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListUnacked returns filled tickets the reconciler has not confirmed into
// the ledger yet.
func (r *TicketRepo) ListUnacked(ctx context.Context) ([]model.TicketModel, error) {
	var rows []model.TicketModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND acked = 0", types.TicketDone).
		Order("ts_exec ASC").
		Find(&rows).Error
	return rows, err
}

// ListByUID returns the full audit trail for one position.
func (r *TicketRepo) ListByUID(ctx context.Context, uid string) ([]model.TicketModel, error) {
	var rows []model.TicketModel
	err := r.db.WithContext(ctx).Where("uid = ?", uid).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// ListRecent returns the newest tickets for inspection endpoints.
func (r *TicketRepo) ListRecent(ctx context.Context, limit int) ([]model.TicketModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.TicketModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkFilled transitions one ticket stdby → done with its execution report.
// A ticket already filled is left untouched.
func (r *TicketRepo) MarkFilled(ctx context.Context, id int64, price, fee, slipBps float64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TicketModel{}).
		Where("id = ? AND status = ?", id, types.TicketStdby).
		Updates(map[string]any{
			"status":     types.TicketDone,
			"price_exec": price,
			"fee":        fee,
			"slip_bps":   slipBps,
			"ts_exec":    time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAcked flags a filled ticket as propagated into the ledger so the
// reconciler stops revisiting it. Re-marking is a no-op.
func (r *TicketRepo) MarkAcked(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.TicketModel{}).
		Where("id = ? AND status = ?", id, types.TicketDone).
		Update("acked", 1).Error
}

// PruneTerminal deletes audit rows older than cutoff belonging to uids whose
// ledger row is terminal. Retention is opt-in; with a zero cutoff nothing is
// ever pruned.
func (r *TicketRepo) PruneTerminal(ctx context.Context, cutoffMs int64) (int64, error) {
	if cutoffMs <= 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND uid IN (?)", cutoffMs,
			r.db.Model(&model.PositionModel{}).Select("uid").
				Where("status IN ?", []types.PositionStatus{types.StatusCloseDone, types.StatusExpired})).
		Delete(&model.TicketModel{})
	return res.RowsAffected, res.Error
}
