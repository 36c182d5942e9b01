package heartbeatlog_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mec-fusion/internal/heartbeatlog"
)

func TestRecordAndRecentRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "heartbeat.sqlite")
	store, err := heartbeatlog.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Record(now, 3, 1, 12.5))
	require.NoError(t, store.Record(now.Add(5*time.Second), 4, 0, 8.0))

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 4, recent[0].TrackCount)
	require.Equal(t, 3, recent[1].TrackCount)
}

func TestOpenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "heartbeat.sqlite")
	store1, err := heartbeatlog.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := heartbeatlog.Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()
}
