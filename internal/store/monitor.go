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

// MonitorRepo persists follower rows. The monitor worker is the only writer;
// creation races with itself across restarts, so Insert is conflict-guarded
// on uid.
type MonitorRepo struct {
	db *gorm.DB
}

// Insert creates a monitor row unless one already exists for the uid.
func (r *MonitorRepo) Insert(ctx context.Context, m *model.MonitorModel) (bool, error) {
	if m == nil {
		return false, errors.New("store: nil monitor row")
	}
	if m.LastActionTs == 0 {
		m.LastActionTs = time.Now().UnixMilli()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get returns the monitor row for one uid.
func (r *MonitorRepo) Get(ctx context.Context, uid string) (*model.MonitorModel, error) {
	var m model.MonitorModel
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns all monitor rows.
func (r *MonitorRepo) List(ctx context.Context) ([]model.MonitorModel, error) {
	var rows []model.MonitorModel
	err := r.db.WithContext(ctx).Order("ts_open ASC").Find(&rows).Error
	return rows, err
}

// Update applies field updates to one row.
func (r *MonitorRepo) Update(ctx context.Context, uid string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["last_action_ts"] = time.Now().UnixMilli()
	return r.db.WithContext(ctx).Model(&model.MonitorModel{}).
		Where("uid = ?", uid).
		Updates(updates).Error
}

// CompareAndSetStatus moves a row between monitor states only when it is
// still in the expected one.
func (r *MonitorRepo) CompareAndSetStatus(ctx context.Context, uid string, from, to types.MonitorStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["last_action_ts"] = time.Now().UnixMilli()
	res := r.db.WithContext(ctx).Model(&model.MonitorModel{}).
		Where("uid = ? AND status = ?", uid, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the row for one uid (terminal position or orphan).
func (r *MonitorRepo) Delete(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Where("uid = ?", uid).Delete(&model.MonitorModel{}).Error
}
