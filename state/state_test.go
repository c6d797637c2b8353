package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s := testStore(t)
	assert.Nil(t, s.Load("deadbeef"))
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	s := testStore(t)
	snapshot := map[string]any{
		"title": []any{"hello"},
		"count": 3.0,
	}
	require.NoError(t, s.SaveSnapshot("deadbeef", snapshot))

	rec := s.Load("deadbeef")
	require.NotNil(t, rec)
	assert.Equal(t, snapshot, rec.Data)
	assert.Empty(t, rec.LastError)

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestRecordErrorPreservesSnapshot(t *testing.T) {
	s := testStore(t)
	snapshot := map[string]any{"price": 42.0}
	require.NoError(t, s.SaveSnapshot("deadbeef", snapshot))

	require.NoError(t, s.RecordError("deadbeef", "navigation timed out"))

	rec := s.Load("deadbeef")
	require.NotNil(t, rec)
	assert.Equal(t, snapshot, rec.Data)
	assert.Equal(t, "navigation timed out", rec.LastError)
	assert.NotEmpty(t, rec.LastErrorAt)
}

func TestRecordErrorWithoutPriorSnapshot(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.RecordError("deadbeef", "boom"))

	rec := s.Load("deadbeef")
	require.NotNil(t, rec)
	assert.Nil(t, rec.Data)
	assert.Equal(t, "boom", rec.LastError)
}

func TestSaveSnapshotClearsError(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.RecordError("deadbeef", "boom"))
	require.NoError(t, s.SaveSnapshot("deadbeef", map[string]any{"ok": true}))

	rec := s.Load("deadbeef")
	require.NotNil(t, rec)
	assert.Empty(t, rec.LastError)
	assert.Empty(t, rec.LastErrorAt)
}

func TestMalformedFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deadbeef.json"), []byte("{not json"), 0o644))
	assert.Nil(t, s.Load("deadbeef"))
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot("deadbeef", map[string]any{"a": 1.0}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "deadbeef.json", entries[0].Name())
}

func TestErrorScreenshotPath(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	got := ErrorScreenshotPath("/shots", "deadbeef", at)
	assert.Equal(t, filepath.Join("/shots", "error-deadbeef-1700000000000.png"), got)
}

func TestSessionStatePath(t *testing.T) {
	got := SessionStatePath("/sessions", "deadbeef")
	assert.Equal(t, filepath.Join("/sessions", "deadbeef", "state.json"), got)
}
