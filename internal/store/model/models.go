package model

import (
	"remora/internal/types"

	"gorm.io/datatypes"
)

// PositionModel is the authoritative ledger row for one trade lifecycle.
// The ledger repository is its only writer; all other workers either read it
// or request transitions through named ledger operations.
type PositionModel struct {
	UID        string               `gorm:"column:uid;primaryKey"`
	InstID     string               `gorm:"column:inst_id;index"`
	Side       types.Side           `gorm:"column:side"`
	Status     types.PositionStatus `gorm:"column:status;index"`
	Step       int                  `gorm:"column:step"`
	Entry      float64              `gorm:"column:entry"`
	Qty        float64              `gorm:"column:qty"`
	Lev        int                  `gorm:"column:lev"`
	Score      float64              `gorm:"column:score"`
	ReqRatio   float64              `gorm:"column:req_ratio"`
	SignalJSON datatypes.JSON       `gorm:"column:signal_json;type:TEXT"`
	TsOpen     int64                `gorm:"column:ts_open"`
	TsClose    int64                `gorm:"column:ts_close"`
	TsUpdated  int64                `gorm:"column:ts_updated"`
}

func (PositionModel) TableName() string { return "positions" }

// TicketModel is one execution ticket. The (uid, action_type, step) key is
// unique; the dispatcher's check-then-insert relies on that index. Rows are
// never deleted by the lifecycle workers; they are the audit trail.
type TicketModel struct {
	ID         int64              `gorm:"column:id;primaryKey;autoIncrement"`
	UID        string             `gorm:"column:uid;uniqueIndex:idx_ticket_key,priority:1"`
	ActionType types.ActionType   `gorm:"column:action_type;uniqueIndex:idx_ticket_key,priority:2"`
	Step       int                `gorm:"column:step;uniqueIndex:idx_ticket_key,priority:3"`
	InstID     string             `gorm:"column:inst_id"`
	Side       types.Side         `gorm:"column:side"`
	Qty        float64            `gorm:"column:qty"`
	Lev        int                `gorm:"column:lev"`
	Status     types.TicketStatus `gorm:"column:status;index"`
	PriceExec  float64            `gorm:"column:price_exec"`
	Fee        float64            `gorm:"column:fee"`
	SlipBps    float64            `gorm:"column:slip_bps"`
	Acked      int                `gorm:"column:acked;index"`
	TsExec     int64              `gorm:"column:ts_exec"`
	CreatedAt  int64              `gorm:"column:created_at"`
}

func (TicketModel) TableName() string { return "tickets" }

// MonitorModel is the follower's working state for one live position.
// Created when the ledger reports open_done, deleted when the position
// terminates or turns out to be orphaned.
type MonitorModel struct {
	UID          string              `gorm:"column:uid;primaryKey"`
	InstID       string              `gorm:"column:inst_id"`
	Side         types.Side          `gorm:"column:side"`
	Step         int                 `gorm:"column:step"`
	Status       types.MonitorStatus `gorm:"column:status;index"`
	Entry        float64             `gorm:"column:entry"`
	QtyRatio     float64             `gorm:"column:qty_ratio"`
	QtyOpen      float64             `gorm:"column:qty_open"`
	MfeATR       float64             `gorm:"column:mfe_atr"`
	MaeATR       float64             `gorm:"column:mae_atr"`
	SlBe         float64             `gorm:"column:sl_be"`
	SlTrail      float64             `gorm:"column:sl_trail"`
	TpDyn        float64             `gorm:"column:tp_dyn"`
	ReqStep      int                 `gorm:"column:req_step"`
	DoneStep     int                 `gorm:"column:done_step"`
	Reason       string              `gorm:"column:reason"`
	TsOpen       int64               `gorm:"column:ts_open"`
	LastActionTs int64               `gorm:"column:last_action_ts"`
}

func (MonitorModel) TableName() string { return "monitors" }
