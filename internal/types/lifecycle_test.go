package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSide(t *testing.T) {
	cases := []struct {
		raw  string
		want Side
		ok   bool
	}{
		{"long", SideLong, true},
		{"buy", SideLong, true},
		{" SHORT ", SideShort, true},
		{"sell", SideShort, true},
		{"sideways", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := ParseSide(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestActionStatusHelpers(t *testing.T) {
	assert.Equal(t, StatusOpenReq, ActionOpen.RequestStatus())
	assert.Equal(t, StatusPyramideStdby, ActionPyramide.StdbyStatus())
	assert.Equal(t, StatusCloseDone, ActionClose.DoneStatus())

	assert.True(t, StatusCloseDone.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusFollow.IsTerminal())

	assert.True(t, ActionPyramide.IncrementsStep())
	assert.True(t, ActionPartial.IncrementsStep())
	assert.False(t, ActionOpen.IncrementsStep())
	assert.False(t, ActionClose.IncrementsStep())
}
