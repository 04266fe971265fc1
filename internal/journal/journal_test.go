package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndByUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Entry{UID: "a", InstID: "BTCUSDT", Event: EventAdmitted, Status: "open_req", Price: 100}))
	require.NoError(t, s.Append(ctx, Entry{UID: "a", Event: EventFill, Action: "open", Qty: 2, Price: 100.1}))
	require.NoError(t, s.Append(ctx, Entry{UID: "b", Event: EventAdmitted}))

	entries, err := s.ByUID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventAdmitted, entries[0].Event)
	assert.Equal(t, EventFill, entries[1].Event)
	assert.Equal(t, "BTCUSDT", entries[0].InstID)
	assert.Equal(t, 2.0, entries[1].Qty)
	assert.Greater(t, entries[0].TS, int64(0), "zero ts gets stamped")
}

func TestRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Entry{UID: "a", Event: EventFill, Step: i}))
	}
	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 4, entries[0].Step)
	assert.Equal(t, 2, entries[2].Step)
}

func TestAppendRejectsIncompleteEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Append(ctx, Entry{Event: EventFill}))
	assert.Error(t, s.Append(ctx, Entry{UID: "a"}))
	_, err := s.ByUID(ctx, " ")
	assert.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
