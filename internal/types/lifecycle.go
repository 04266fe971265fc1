package types

import "strings"

// Side is the direction of a position over its whole lifecycle.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide accepts common spellings ("long", "buy", "short", "sell").
func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, true
	case "short", "sell":
		return SideShort, true
	default:
		return "", false
	}
}

// Direction is the taker direction of a single execution. Opening or
// pyramiding a long buys; reducing or closing it sells. Shorts invert.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ActionType identifies one kind of lifecycle execution.
type ActionType string

const (
	ActionOpen     ActionType = "open"
	ActionPyramide ActionType = "pyramide"
	ActionPartial  ActionType = "partial"
	ActionClose    ActionType = "close"
)

// TakerDirection maps (side, action) to the direction actually traded.
func TakerDirection(side Side, action ActionType) Direction {
	increases := action == ActionOpen || action == ActionPyramide
	if (side == SideLong) == increases {
		return DirectionBuy
	}
	return DirectionSell
}

// PositionStatus is the ledger status of a position record.
type PositionStatus string

const (
	StatusOpenReq       PositionStatus = "open_req"
	StatusOpenStdby     PositionStatus = "open_stdby"
	StatusOpenDone      PositionStatus = "open_done"
	StatusFollow        PositionStatus = "follow"
	StatusPartialReq    PositionStatus = "partial_req"
	StatusPartialStdby  PositionStatus = "partial_stdby"
	StatusPartialDone   PositionStatus = "partial_done"
	StatusPyramideReq   PositionStatus = "pyramide_req"
	StatusPyramideStdby PositionStatus = "pyramide_stdby"
	StatusPyramideDone  PositionStatus = "pyramide_done"
	StatusCloseReq      PositionStatus = "close_req"
	StatusCloseStdby    PositionStatus = "close_stdby"
	StatusCloseDone     PositionStatus = "close_done"
	StatusExpired       PositionStatus = "expired"
)

// RequestStatuses are the ledger states the dispatcher polls for.
func RequestStatuses() []PositionStatus {
	return []PositionStatus{StatusOpenReq, StatusPartialReq, StatusPyramideReq, StatusCloseReq}
}

// StdbyStatuses are the ledger states mirrored from an outstanding ticket.
func StdbyStatuses() []PositionStatus {
	return []PositionStatus{StatusOpenStdby, StatusPartialStdby, StatusPyramideStdby, StatusCloseStdby}
}

// DoneStatuses are the ledger states reached through reconciliation.
func DoneStatuses() []PositionStatus {
	return []PositionStatus{StatusOpenDone, StatusPartialDone, StatusPyramideDone, StatusCloseDone}
}

// IsTerminal reports whether a ledger status can never change again.
func (s PositionStatus) IsTerminal() bool {
	return s == StatusCloseDone || s == StatusExpired
}

// IsRequest reports whether the status is a *_req state.
func (s PositionStatus) IsRequest() bool {
	return strings.HasSuffix(string(s), "_req")
}

// IsStdby reports whether the status is a *_stdby state.
func (s PositionStatus) IsStdby() bool {
	return strings.HasSuffix(string(s), "_stdby")
}

// IsDone reports whether the status is a *_done state.
func (s PositionStatus) IsDone() bool {
	return strings.HasSuffix(string(s), "_done")
}

// Action extracts the lifecycle action a non-follow status belongs to.
func (s PositionStatus) Action() (ActionType, bool) {
	str := string(s)
	for _, suffix := range []string{"_req", "_stdby", "_done"} {
		if strings.HasSuffix(str, suffix) {
			action := ActionType(strings.TrimSuffix(str, suffix))
			switch action {
			case ActionOpen, ActionPyramide, ActionPartial, ActionClose:
				return action, true
			}
			return "", false
		}
	}
	return "", false
}

// RequestStatus returns the *_req ledger status for an action.
func (a ActionType) RequestStatus() PositionStatus {
	return PositionStatus(string(a) + "_req")
}

// StdbyStatus returns the *_stdby ledger status for an action.
func (a ActionType) StdbyStatus() PositionStatus {
	return PositionStatus(string(a) + "_stdby")
}

// DoneStatus returns the *_done ledger status for an action.
func (a ActionType) DoneStatus() PositionStatus {
	return PositionStatus(string(a) + "_done")
}

// IncrementsStep reports whether a fill of this action advances the
// position's stage counter. The initial open stays at step 0 and a full
// close terminates the record, so only staged adds and reductions count.
func (a ActionType) IncrementsStep() bool {
	return a == ActionPyramide || a == ActionPartial
}

// TicketStatus is the execution ticket state.
type TicketStatus string

const (
	TicketStdby TicketStatus = "stdby"
	TicketDone  TicketStatus = "done"
)

// MonitorStatus is the follower working state. The stdby vocabulary is
// reserved for the dispatcher/ledger layer and must never appear here.
type MonitorStatus string

const (
	MonitorFollow      MonitorStatus = "follow"
	MonitorPartialReq  MonitorStatus = "partial_req"
	MonitorPyramideReq MonitorStatus = "pyramide_req"
	MonitorCloseReq    MonitorStatus = "close_req"
)

// Valid reports whether the monitor status is one of the allowed values.
func (s MonitorStatus) Valid() bool {
	switch s {
	case MonitorFollow, MonitorPartialReq, MonitorPyramideReq, MonitorCloseReq:
		return true
	}
	return false
}

// Action maps a monitor request status to its lifecycle action.
func (s MonitorStatus) Action() (ActionType, bool) {
	switch s {
	case MonitorPartialReq:
		return ActionPartial, true
	case MonitorPyramideReq:
		return ActionPyramide, true
	case MonitorCloseReq:
		return ActionClose, true
	}
	return "", false
}

// Monitor reset / close reasons recorded on monitor rows.
const (
	ReasonDoneReset     = "DONE_RESET"
	ReasonForcedNoStdby = "FORCED_NO_STDBY"
	ReasonTimeoutMaxAge = "TIMEOUT_MAX_AGE"
	ReasonTimeoutNoMfe  = "TIMEOUT_NO_MFE"
	ReasonSlBeHit       = "SL_BE_HIT"
	ReasonSlTrailHit    = "SL_TRAIL_HIT"
	ReasonTpDynHit      = "TP_DYN_HIT"
	ReasonPyramideAdd   = "PYRAMIDE_ADD"
)
