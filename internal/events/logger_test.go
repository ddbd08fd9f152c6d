package events

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndReadLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	require.NoError(t, logger.Log(&CaptureEvent{Event: EventStarted, TargetKind: "application", TargetName: "Spotify", ProcessID: 42}))
	require.NoError(t, logger.Log(&CaptureEvent{Event: EventSilence, LevelDB: -52.3, DurationMs: 16000}))
	require.NoError(t, logger.Log(&CaptureEvent{Event: EventStopped, TargetName: "Spotify"}))

	got, err := ReadLast(path, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, EventStopped, got[0].Event)
	assert.Equal(t, EventSilence, got[1].Event)
	assert.InDelta(t, -52.3, got[1].LevelDB, 0.001)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestReadLastMissingFile(t *testing.T) {
	got, err := ReadLast(filepath.Join(t.TempDir(), "absent.jsonl"), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
