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

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// LedgerRepo persists position records. Status writes go through
// compare-and-set so a stale worker cycle can never regress a row; callers
// (the ledger service) own which transitions are legal.
type LedgerRepo struct {
	db *gorm.DB
}

// Insert admits a new position row, idempotent by uid. Returns false when a
// row with the same uid already exists.
func (r *LedgerRepo) Insert(ctx context.Context, pos *model.PositionModel) (bool, error) {
	if pos == nil {
		return false, errors.New("store: nil position")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, DoNothing: true}).
		Create(pos)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get returns one position by uid.
func (r *LedgerRepo) Get(ctx context.Context, uid string) (*model.PositionModel, error) {
	var pos model.PositionModel
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListByStatus returns positions currently in any of the given states.
func (r *LedgerRepo) ListByStatus(ctx context.Context, statuses ...types.PositionStatus) ([]model.PositionModel, error) {
	var rows []model.PositionModel
	err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("ts_open ASC").Find(&rows).Error
	return rows, err
}

// ListOpen returns every non-terminal position.
func (r *LedgerRepo) ListOpen(ctx context.Context) ([]model.PositionModel, error) {
	var rows []model.PositionModel
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []types.PositionStatus{types.StatusCloseDone, types.StatusExpired}).
		Order("ts_open ASC").
		Find(&rows).Error
	return rows, err
}

// ListRecent returns the newest rows for inspection endpoints.
func (r *LedgerRepo) ListRecent(ctx context.Context, limit int) ([]model.PositionModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.PositionModel
	err := r.db.WithContext(ctx).Order("ts_open DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CompareAndSet advances uid from one status to another, applying updates in
// the same statement. Returns false (without error) when the row was not in
// the expected state; the caller treats that as "already handled".
func (r *LedgerRepo) CompareAndSet(ctx context.Context, uid string, from, to types.PositionStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["ts_updated"] = time.Now().UnixMilli()
	res := r.db.WithContext(ctx).Model(&model.PositionModel{}).
		Where("uid = ? AND status = ?", uid, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompareAndSetAtStep is CompareAndSet additionally matched by step; the
// reconciler uses it so a late acknowledgment for an old stage is a no-op.
func (r *LedgerRepo) CompareAndSetAtStep(ctx context.Context, uid string, step int, from, to types.PositionStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["ts_updated"] = time.Now().UnixMilli()
	res := r.db.WithContext(ctx).Model(&model.PositionModel{}).
		Where("uid = ? AND step = ? AND status = ?", uid, step, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireStale terminates request-state rows whose last update is older than
// the cutoff. Only *_req rows qualify: a row that reached stdby has a live
// ticket and may no longer be expired.
func (r *LedgerRepo) ExpireStale(ctx context.Context, cutoffMs int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.PositionModel{}).
		Where("status IN ? AND ts_updated < ?", types.RequestStatuses(), cutoffMs).
		Updates(map[string]any{
			"status":     types.StatusExpired,
			"ts_close":   time.Now().UnixMilli(),
			"ts_updated": time.Now().UnixMilli(),
		})
	return res.RowsAffected, res.Error
}

// CountByStatus summarizes the ledger for status reporting.
func (r *LedgerRepo) CountByStatus(ctx context.Context) (map[types.PositionStatus]int64, error) {
	type row struct {
		Status types.PositionStatus
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.PositionModel{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.PositionStatus]int64, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.N
	}
	return out, nil
}
