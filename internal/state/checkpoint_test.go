package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state", "checkpoint.json"), nil)
}

func TestInitIfMissing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitIfMissing())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "UNITS")
}

func TestInitIfMissingPreservesExisting(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitIfMissing())
	require.NoError(t, s.Mark("vid0000001A", "transcript_collect"))

	// Re-init (resume path) must not wipe recorded progress.
	require.NoError(t, s.InitIfMissing())

	done, err := s.IsDone("vid0000001A", "transcript_collect")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMarkAndIsDone(t *testing.T) {
	s := newTestStore(t)

	done, err := s.IsDone("vidA", "comments_normalize")
	require.NoError(t, err)
	assert.False(t, done, "unmarked stage must not be done")

	require.NoError(t, s.Mark("vidA", "comments_normalize"))

	done, err = s.IsDone("vidA", "comments_normalize")
	require.NoError(t, err)
	assert.True(t, done)

	// Other stages of the same unit stay independent.
	done, err = s.IsDone("vidA", "transcript_collect")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestFailedIsNotDone(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MarkFailed("vidA", "enrich_topics"))

	done, err := s.IsDone("vidA", "enrich_topics")
	require.NoError(t, err)
	assert.False(t, done, "FAILED must be retried on resume")

	// Successful retry overwrites FAILED.
	require.NoError(t, s.Mark("vidA", "enrich_topics"))
	done, err = s.IsDone("vidA", "enrich_topics")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestNoStrayTempFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitIfMissing())
	for _, unit := range []string{"a", "b", "c"} {
		require.NoError(t, s.Mark(unit, "transcript_collect"))
		require.NoError(t, s.Mark(unit, "comments_collect_top"))
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"),
			"stray temp file %s left behind", e.Name())
	}
}

func TestCorruptRecovery(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not valid json"), 0o644))

	// Load path must back up the corrupt file and start empty.
	done, err := s.IsDone("vidA", "transcript_collect")
	require.NoError(t, err)
	assert.False(t, done)

	backup, err := os.ReadFile(s.Path() + ".corrupt")
	require.NoError(t, err, "corrupt original must be preserved")
	assert.Equal(t, "{not valid json", string(backup))

	// Store is usable after recovery.
	require.NoError(t, s.Mark("vidA", "transcript_collect"))
	done, err = s.IsDone("vidA", "transcript_collect")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mark("vidA", "transcript_collect"))
	require.NoError(t, s.MarkFailed("vidB", "enrich_summary"))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StatusDone, snap["vidA"]["transcript_collect"])
	assert.Equal(t, StatusFailed, snap["vidB"]["enrich_summary"])

	// Mutating the snapshot must not leak back into the store.
	snap["vidA"]["transcript_collect"] = "BOGUS"
	done, err := s.IsDone("vidA", "transcript_collect")
	require.NoError(t, err)
	assert.True(t, done)
}
