package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/enrich"
)

const testVideoID = "abc12345678"

func testConfig() engine.Config {
	return engine.Config{
		VideoURL:            "https://www.youtube.com/watch?v=" + testVideoID,
		MaxVideosPerTerm:    5,
		MaxSubVideos:        5,
		MaxTotalVideos:      50,
		CollectSortModes:    []string{"top"},
		MaxCommentsPerVideo: 100,
		OnVideoFailure:      "skip",
		OutputPerVideo:      true,
		TranscriptsEnable:   true,
		ChunkSeconds:        60,
		ChunkOverlapSeconds: 10,
		TopicClustering:     "nlp",
	}
}

type fakeBackend struct {
	transcriptCalls int
	commentCalls    int
	transcriptErr   error
	commentsErr     error
}

func (f *fakeBackend) collab() Collaborators {
	return Collaborators{
		ResolveSearch: func(_ context.Context, term string, _ int) ([]engine.VideoEntry, error) {
			return []engine.VideoEntry{
				{VideoID: "dup12345678", VideoURL: "https://www.youtube.com/watch?v=dup12345678", Title: "shared", SearchTerm: term},
			}, nil
		},
		ResolveChannel: func(_ context.Context, _ string, _ int) ([]engine.VideoEntry, error) {
			return nil, errors.New("not used")
		},
		CollectTranscript: func(_ context.Context, videoID string) (engine.RawTranscript, error) {
			f.transcriptCalls++
			if f.transcriptErr != nil {
				return engine.RawTranscript{}, f.transcriptErr
			}
			return engine.RawTranscript{
				VideoID: videoID,
				Source:  "manual",
				Lang:    "en",
				Entries: []engine.RawTranscriptEntry{
					{Text: "first line", StartS: 0, DurationS: 20},
					{Text: "second line", StartS: 20, DurationS: 20},
					{Text: "third line", StartS: 40, DurationS: 20},
				},
			}, nil
		},
		CollectComments: func(_ context.Context, _, _ string, _ int) ([]engine.RawComment, error) {
			f.commentCalls++
			if f.commentsErr != nil {
				return nil, f.commentsErr
			}
			return []engine.RawComment{
				{ID: "c1", Parent: "root", Author: "alice", Text: "nice video", LikeCount: 2},
				{ID: "c2", Parent: "root", Author: "bob", Text: "very helpful"},
			}, nil
		},
	}
}

func TestRunHappyPathSingleVideo(t *testing.T) {
	engine.Init(testConfig())
	base := t.TempDir()
	fb := &fakeBackend{}

	c, err := New(base, fb.collab())
	require.NoError(t, err)

	res, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.VideosTotal)
	assert.Empty(t, res.Failures)

	segments, err := readUnitRecords[engine.Segment](c.unitPath(testVideoID, dirTranscripts, fileSegments), testVideoID)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, "first line", segments[0].Text)

	chunks, err := readUnitRecords[engine.Chunk](c.unitPath(testVideoID, dirTranscripts, fileChunks), testVideoID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	comments, err := readUnitRecords[engine.Comment](c.unitPath(testVideoID, dirComments, fileComments), testVideoID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	for _, cm := range comments {
		assert.Equal(t, 0, cm.ThreadDepth)
		assert.Equal(t, "top", cm.SortMode)
	}

	snap, err := c.ckpt.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "DONE", snap[testVideoID][StageTranscriptChunk])
	assert.Equal(t, "DONE", snap[testVideoID][StageCommentsNormalize])

	_, err = os.Stat(filepath.Join(c.RunDir(), "result.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(c.RunDir(), "manifest.json"))
	require.NoError(t, err)
}

func TestRunManifestMasksSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.LLMAPIKey = "sk-secret-value"
	cfg.YouTubeAPIKey = "yt-secret-value"
	engine.Init(cfg)
	fb := &fakeBackend{}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	_, err = c.Execute(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(c.RunDir(), "manifest.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-value")
	assert.NotContains(t, string(data), "yt-secret-value")
	assert.Contains(t, string(data), masked)
}

func TestResumeSkipsDoneStages(t *testing.T) {
	engine.Init(testConfig())
	base := t.TempDir()
	fb := &fakeBackend{}

	c, err := New(base, fb.collab())
	require.NoError(t, err)
	_, err = c.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fb.transcriptCalls)
	require.Equal(t, 1, fb.commentCalls)

	// Resume of a completed run re-collects nothing.
	rc, err := Resume(base, c.RunID(), fb.collab())
	require.NoError(t, err)
	res, err := rc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.True(t, res.Resumed)
	assert.Equal(t, 1, fb.transcriptCalls, "transcript must not be re-collected")
	assert.Equal(t, 1, fb.commentCalls, "comments must not be re-collected")
}

func TestResumeRetriesFailedStage(t *testing.T) {
	engine.Init(testConfig())
	base := t.TempDir()
	fb := &fakeBackend{transcriptErr: errors.New("blocked")}

	c, err := New(base, fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err, "skip policy tolerates transcript failure")
	assert.NotEmpty(t, res.Failures)

	snap, err := c.ckpt.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "FAILED", snap[testVideoID][StageTranscriptCollect])
	assert.Equal(t, "DONE", snap[testVideoID][StageCommentsNormalize])

	// Resume with a healthy collector: transcript retried, comments not.
	fb.transcriptErr = nil
	rc, err := Resume(base, c.RunID(), fb.collab())
	require.NoError(t, err)
	res, err = rc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 2, fb.transcriptCalls)
	assert.Equal(t, 1, fb.commentCalls, "comments must not be re-collected")

	segments, err := readUnitRecords[engine.Segment](rc.unitPath(testVideoID, dirTranscripts, fileSegments), testVideoID)
	require.NoError(t, err)
	assert.Len(t, segments, 3)
}

func TestCommentFailureMarksModeDone(t *testing.T) {
	engine.Init(testConfig())
	fb := &fakeBackend{commentsErr: errors.New("throttled")}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)

	// Absence of comments for a sort mode is not a stage failure.
	snap, err := c.ckpt.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "DONE", snap[testVideoID][commentsCollectStage("top")])
	assert.Equal(t, "DONE", snap[testVideoID][StageCommentsNormalize])

	comments, err := readUnitRecords[engine.Comment](c.unitPath(testVideoID, dirComments, fileComments), testVideoID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAbortPolicyStopsRun(t *testing.T) {
	cfg := testConfig()
	cfg.OnVideoFailure = "abort"
	engine.Init(cfg)
	fb := &fakeBackend{transcriptErr: errors.New("blocked")}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestSkipPolicyRecordsFailureAndContinues(t *testing.T) {
	engine.Init(testConfig())
	fb := &fakeBackend{transcriptErr: errors.New("blocked")}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)

	require.NotEmpty(t, res.Failures)
	assert.Equal(t, StageTranscriptCollect, res.Failures[0].Stage)

	// Failure file written once.
	entries, err := os.ReadDir(filepath.Join(c.unitDir(testVideoID), dirFailures))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Comments still collected despite the transcript failure.
	comments, err := readUnitRecords[engine.Comment](c.unitPath(testVideoID, dirComments, fileComments), testVideoID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestEmptyTranscriptIsNotAFailure(t *testing.T) {
	engine.Init(testConfig())
	fb := &fakeBackend{transcriptErr: fmt.Errorf("no captions: %w", engine.ErrEmpty)}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Empty(t, res.Failures)

	snap, err := c.ckpt.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "DONE", snap[testVideoID][StageTranscriptCollect])

	segments, err := readUnitRecords[engine.Segment](c.unitPath(testVideoID, dirTranscripts, fileSegments), testVideoID)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSearchDiscoveryDedup(t *testing.T) {
	cfg := testConfig()
	cfg.VideoURL = ""
	cfg.SearchTerms = []string{"first term", "second term"}
	engine.Init(cfg)
	fb := &fakeBackend{}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err)

	// Both terms resolve the same video; it is processed once.
	assert.Equal(t, 1, res.VideosTotal)
	assert.Equal(t, 1, fb.transcriptCalls)
}

func TestResumeValidation(t *testing.T) {
	engine.Init(testConfig())
	base := t.TempDir()

	for _, id := range []string{"../evil", "a/b", "", ".hidden", "x..y/../z"} {
		_, err := Resume(base, id, Collaborators{})
		assert.Error(t, err, "run id %q must be rejected", id)
	}

	// Well-formed but unknown run IDs fail on the missing manifest.
	_, err := Resume(base, "20250101T000000Z", Collaborators{})
	assert.Error(t, err)
}

// stubStage is a controllable enrichment stage.
type stubStage struct {
	name string
	err  error
	runs int
}

func (s *stubStage) Name() string { return s.name }
func (s *stubStage) Run(_ context.Context, a enrich.Assets) (*enrich.Output, error) {
	s.runs++
	if s.err != nil {
		return nil, s.err
	}
	return &enrich.Output{
		File:    s.name + ".jsonl",
		Records: []any{engine.SummaryRecord{VideoID: a.VideoID, AssetType: "comments", Summary: "stub"}},
	}, nil
}

func TestEnrichmentFailureIsolation(t *testing.T) {
	engine.Init(testConfig())
	fb := &fakeBackend{}
	collab := fb.collab()

	broken := &stubStage{name: "embeddings", err: errors.New("endpoint down")}
	healthy := &stubStage{name: "topics"}
	collab.Stages = []enrich.Stage{broken, healthy}

	c, err := New(t.TempDir(), collab)
	require.NoError(t, err)
	res, err := c.Execute(context.Background())
	require.NoError(t, err, "enrichment failures never abort the run")
	assert.Equal(t, StatusComplete, res.Status)

	assert.Equal(t, 1, broken.runs)
	assert.Equal(t, 1, healthy.runs, "later stages run despite earlier failure")

	snap, err := c.ckpt.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "FAILED", snap[testVideoID]["enrich_embeddings"])
	assert.Equal(t, "DONE", snap[testVideoID]["enrich_topics"])

	records, err := readUnitRecords[engine.SummaryRecord](c.unitPath(testVideoID, dirEnrich, "topics.jsonl"), testVideoID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFlatOutputModeSharesFiles(t *testing.T) {
	cfg := testConfig()
	cfg.VideoURL = ""
	cfg.SearchTerms = []string{"only term"}
	cfg.OutputPerVideo = false
	engine.Init(cfg)
	fb := &fakeBackend{}

	c, err := New(t.TempDir(), fb.collab())
	require.NoError(t, err)
	_, err = c.Execute(context.Background())
	require.NoError(t, err)

	// Shared file lives at the run root's comments/ and filters by unit.
	path := c.unitPath("dup12345678", dirComments, fileComments)
	comments, err := readUnitRecords[engine.Comment](path, "dup12345678")
	require.NoError(t, err)
	assert.Len(t, comments, 2)

	other, err := readUnitRecords[engine.Comment](path, "nonexistent1")
	require.NoError(t, err)
	assert.Empty(t, other)
}
