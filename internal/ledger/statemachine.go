package ledger

import (
	"errors"
	"fmt"

	"remora/internal/types"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table. Callers must treat it as a rejected request, not a
// crash: the row is left untouched.
var ErrInvalidTransition = errors.New("ledger: invalid status transition")

// transitions is the exhaustive table. The *_req → *_done edges are the
// reconciler's safety net for the case where a ticket filled before the
// dispatcher managed to mirror the row to stdby.
var transitions = map[types.PositionStatus][]types.PositionStatus{
	types.StatusOpenReq:       {types.StatusOpenStdby, types.StatusOpenDone, types.StatusExpired},
	types.StatusOpenStdby:     {types.StatusOpenDone},
	types.StatusOpenDone:      {types.StatusFollow},
	types.StatusFollow:        {types.StatusPartialReq, types.StatusPyramideReq, types.StatusCloseReq},
	types.StatusPartialReq:    {types.StatusPartialStdby, types.StatusPartialDone, types.StatusExpired},
	types.StatusPartialStdby:  {types.StatusPartialDone},
	types.StatusPartialDone:   {types.StatusFollow},
	types.StatusPyramideReq:   {types.StatusPyramideStdby, types.StatusPyramideDone, types.StatusExpired},
	types.StatusPyramideStdby: {types.StatusPyramideDone},
	types.StatusPyramideDone:  {types.StatusFollow},
	types.StatusCloseReq:      {types.StatusCloseStdby, types.StatusCloseDone, types.StatusExpired},
	types.StatusCloseStdby:    {types.StatusCloseDone},
	types.StatusCloseDone:     nil,
	types.StatusExpired:       nil,
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to types.PositionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition (wrapped with context) for
// an illegal edge.
func ValidateTransition(from, to types.PositionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
