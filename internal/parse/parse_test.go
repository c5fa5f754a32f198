package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

func rawTranscript(entries ...engine.RawTranscriptEntry) engine.RawTranscript {
	return engine.RawTranscript{VideoID: "vid00000001", Source: "manual", Lang: "en", Entries: entries}
}

func TestNormalizeTranscript(t *testing.T) {
	raw := rawTranscript(
		engine.RawTranscriptEntry{Text: "hello world", StartS: 0, DurationS: 2.5},
		engine.RawTranscriptEntry{Text: "second line", StartS: 2.5, DurationS: 3},
	)
	segs := NormalizeTranscript(raw, 0)
	require.Len(t, segs, 2)

	assert.Equal(t, 0, segs[0].SegmentIndex)
	assert.Equal(t, 1, segs[1].SegmentIndex)
	assert.Equal(t, "hello world", segs[0].Text)
	assert.Equal(t, 2.5, segs[0].EndS)
	assert.Equal(t, 5.5, segs[1].EndS)
	assert.Equal(t, "manual", segs[0].Source)
	assert.Equal(t, "en", segs[0].Lang)
}

func TestNormalizeTranscriptCharBudget(t *testing.T) {
	raw := rawTranscript(
		engine.RawTranscriptEntry{Text: "aaaaa", StartS: 0, DurationS: 1},
		engine.RawTranscriptEntry{Text: "bbbbb", StartS: 1, DurationS: 1},
		engine.RawTranscriptEntry{Text: "ccccc", StartS: 2, DurationS: 1},
	)

	// Budget cuts the second entry mid-text and drops the rest.
	segs := NormalizeTranscript(raw, 8)
	require.Len(t, segs, 2)
	assert.Equal(t, "aaaaa", segs[0].Text)
	assert.Equal(t, "bbb", segs[1].Text)

	// Budget landing exactly on an entry boundary keeps it whole.
	segs = NormalizeTranscript(raw, 10)
	require.Len(t, segs, 2)
	assert.Equal(t, "bbbbb", segs[1].Text)
}

func TestChunkSegments(t *testing.T) {
	segs := NormalizeTranscript(rawTranscript(
		engine.RawTranscriptEntry{Text: "a", StartS: 0, DurationS: 10},
		engine.RawTranscriptEntry{Text: "b", StartS: 10, DurationS: 10},
		engine.RawTranscriptEntry{Text: "c", StartS: 20, DurationS: 10},
		engine.RawTranscriptEntry{Text: "d", StartS: 30, DurationS: 10},
	), 0)

	chunks := ChunkSegments(segs, 20, 5, nil)
	require.NotEmpty(t, chunks)

	// First chunk reports no overlap, subsequent ones report the configured overlap.
	assert.Equal(t, 0.0, chunks[0].OverlapS)
	for _, c := range chunks[1:] {
		assert.Equal(t, 5.0, c.OverlapS)
	}

	// Chunk indexes are dense.
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "vid00000001", c.VideoID)
	}

	// Every segment is covered by at least one chunk.
	covered := map[int]bool{}
	for _, c := range chunks {
		for _, idx := range c.SegmentIndices {
			covered[idx] = true
		}
	}
	for _, s := range segs {
		assert.True(t, covered[s.SegmentIndex], "segment %d not covered", s.SegmentIndex)
	}

	// END_S never exceeds the last segment end.
	for _, c := range chunks {
		assert.LessOrEqual(t, c.EndS, 40.0)
	}
}

func TestChunkSegmentsDegenerateOverlap(t *testing.T) {
	segs := NormalizeTranscript(rawTranscript(
		engine.RawTranscriptEntry{Text: "a", StartS: 0, DurationS: 10},
		engine.RawTranscriptEntry{Text: "b", StartS: 10, DurationS: 10},
	), 0)

	// overlap >= window must not loop forever; falls back to non-overlapping.
	chunks := ChunkSegments(segs, 10, 10, nil)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0.0, chunks[0].StartS)
	assert.Equal(t, 10.0, chunks[1].StartS)
}

func TestChunkSegmentsSkipsEmptyWindows(t *testing.T) {
	// Segments at 0-5s and 100-105s; windows in between are empty.
	segs := []engine.Segment{
		{VideoID: "v", SegmentIndex: 0, StartS: 0, EndS: 5, Text: "start"},
		{VideoID: "v", SegmentIndex: 1, StartS: 100, EndS: 105, Text: "end"},
	}
	chunks := ChunkSegments(segs, 10, 0, nil)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex, "empty windows must not consume indexes")
	assert.Equal(t, 100.0, chunks[1].StartS)
}

func TestNormalizeComments(t *testing.T) {
	raw := []engine.RawComment{
		{ID: "c1", Parent: "root", Author: "alice", Text: "top level", LikeCount: 3, ReplyCount: 1, Timestamp: 1700000000},
		{ID: "c1.r1", Parent: "c1", Author: "bob", Text: "a reply"},
		{ID: "c2", Parent: "", Author: "carol", Text: `see <a href="https://example.com">this</a>`},
	}
	out := NormalizeComments("vid00000001", "top", raw)
	require.Len(t, out, 3)

	assert.Equal(t, "", out[0].ParentID)
	assert.Equal(t, 0, out[0].ThreadDepth)
	assert.Equal(t, "2023-11-14T22:13:20Z", out[0].PublishedAt)
	assert.Equal(t, "top", out[0].SortMode)

	assert.Equal(t, "c1", out[1].ParentID)
	assert.Equal(t, 1, out[1].ThreadDepth)
	assert.Equal(t, "", out[1].PublishedAt, "unknown timestamp yields empty PUBLISHED_AT")

	assert.Equal(t, "", out[2].ParentID, "empty parent means top level")
	assert.Contains(t, out[2].Text, "example.com")
	assert.NotContains(t, out[2].Text, "<a href")
}

func TestDedupComments(t *testing.T) {
	batches := map[string][]engine.Comment{
		"top": {
			{CommentID: "a", SortMode: "top"},
			{CommentID: "b", SortMode: "top"},
			{CommentID: "", SortMode: "top"},
		},
		"new": {
			{CommentID: "b", SortMode: "new"},
			{CommentID: "c", SortMode: "new"},
			{CommentID: "", SortMode: "new"},
		},
	}
	out := DedupComments(batches, []string{"top", "new"})
	require.Len(t, out, 5)

	// "b" survives from the first-listed mode only.
	var bModes []string
	empties := 0
	for _, c := range out {
		if c.CommentID == "b" {
			bModes = append(bModes, c.SortMode)
		}
		if c.CommentID == "" {
			empties++
		}
	}
	assert.Equal(t, []string{"top"}, bModes)
	assert.Equal(t, 2, empties, "empty-ID comments are always kept")
}
