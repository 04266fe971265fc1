package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"remora/internal/types"
)

func TestCanTransition(t *testing.T) {
	t.Run("happy path edges", func(t *testing.T) {
		assert.True(t, CanTransition(types.StatusOpenReq, types.StatusOpenStdby))
		assert.True(t, CanTransition(types.StatusOpenStdby, types.StatusOpenDone))
		assert.True(t, CanTransition(types.StatusOpenDone, types.StatusFollow))
		assert.True(t, CanTransition(types.StatusFollow, types.StatusCloseReq))
		assert.True(t, CanTransition(types.StatusCloseStdby, types.StatusCloseDone))
	})

	t.Run("safety net edges", func(t *testing.T) {
		assert.True(t, CanTransition(types.StatusOpenReq, types.StatusOpenDone))
		assert.True(t, CanTransition(types.StatusPartialReq, types.StatusPartialDone))
		assert.True(t, CanTransition(types.StatusPyramideReq, types.StatusPyramideDone))
		assert.True(t, CanTransition(types.StatusCloseReq, types.StatusCloseDone))
	})

	t.Run("expiry only from request states", func(t *testing.T) {
		assert.True(t, CanTransition(types.StatusOpenReq, types.StatusExpired))
		assert.True(t, CanTransition(types.StatusCloseReq, types.StatusExpired))
		assert.False(t, CanTransition(types.StatusOpenStdby, types.StatusExpired))
		assert.False(t, CanTransition(types.StatusFollow, types.StatusExpired))
	})

	t.Run("terminal states are sinks", func(t *testing.T) {
		for _, to := range []types.PositionStatus{
			types.StatusOpenReq, types.StatusFollow, types.StatusCloseReq, types.StatusOpenDone,
		} {
			assert.False(t, CanTransition(types.StatusCloseDone, to), "close_done -> %s", to)
			assert.False(t, CanTransition(types.StatusExpired, to), "expired -> %s", to)
		}
	})

	t.Run("no skipping stages", func(t *testing.T) {
		assert.False(t, CanTransition(types.StatusOpenReq, types.StatusFollow))
		assert.False(t, CanTransition(types.StatusFollow, types.StatusCloseDone))
		assert.False(t, CanTransition(types.StatusOpenDone, types.StatusCloseReq))
	})
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(types.StatusOpenReq, types.StatusOpenStdby))
	err := ValidateTransition(types.StatusFollow, types.StatusOpenDone)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
