// Package run orchestrates a collection run end to end: preflight,
// discovery, per-video collection, normalization, enrichment, and the
// checkpoint bookkeeping that makes every step resumable.
//
// Run lifecycle: NEW → PREFLIGHT → RUNNING → COMPLETE for fresh runs,
// RESUMING → RUNNING → COMPLETE for resumed ones. A resumed run skips
// preflight and discovery; the discovery manifest written by the original
// run is the authoritative video list.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/anatolykoptev/go_ytminer/internal/archive"
	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/preflight"
	"github.com/anatolykoptev/go_ytminer/internal/state"
)

// Run statuses.
const (
	StatusNew       = "NEW"
	StatusPreflight = "PREFLIGHT"
	StatusResuming  = "RESUMING"
	StatusRunning   = "RUNNING"
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
)

// Checkpoint stage names. Comment collection checkpoints per sort mode as
// "comments_collect_<mode>".
const (
	StageTranscriptCollect   = "transcript_collect"
	StageTranscriptNormalize = "transcript_normalize"
	StageTranscriptChunk     = "transcript_chunk"
	StageCommentsNormalize   = "comments_normalize"
)

// ErrPreflight marks a run aborted by failed preflight checks; callers can
// give it a distinct exit code.
var ErrPreflight = errors.New("preflight checks failed")

const runIDFormat = "20060102T150405Z"

var runIDRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// validateRunID rejects identifiers that could escape the base directory.
func validateRunID(id string) error {
	if !runIDRE.MatchString(id) || id != filepath.Base(id) {
		return fmt.Errorf("invalid run id %q", id)
	}
	return nil
}

// Coordinator drives one run. Construct with New or Resume.
type Coordinator struct {
	log     *slog.Logger
	baseDir string
	runID   string
	runDir  string
	ckpt    *state.Store
	collab  Collaborators
	tracker *Tracker
	arch    *archive.Archive
	result  *Result
	resumed bool

	outFiles map[string]bool
	logFile  *os.File
}

// noteOutput records an output file path in the run result, once.
func (c *Coordinator) noteOutput(path string) {
	if c.outFiles[path] {
		return
	}
	c.outFiles[path] = true
	c.result.OutputFiles = append(c.result.OutputFiles, path)
}

// writeUnitRecords replaces the unit's lines in path and tracks the file
// in the run result. With zero records an absent file stays absent; an
// existing file still gets the unit's stale lines cleared.
func (c *Coordinator) writeUnitRecords(path, videoID string, recs []any) error {
	if len(recs) == 0 {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
	}
	if err := replaceUnitRecords(path, videoID, recs); err != nil {
		return err
	}
	if len(recs) > 0 {
		c.noteOutput(path)
	}
	return nil
}

// New creates a fresh run under baseDir with a timestamp-derived run ID.
func New(baseDir string, collab Collaborators) (*Coordinator, error) {
	runID := time.Now().UTC().Format(runIDFormat)
	return newCoordinator(baseDir, runID, collab, false)
}

// Resume attaches to an existing run directory. The run ID must name a
// previously created run; its manifest and checkpoint are the source of
// truth for what remains to be done.
func Resume(baseDir, runID string, collab Collaborators) (*Coordinator, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	runDir := filepath.Join(baseDir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "manifest.json")); err != nil {
		return nil, fmt.Errorf("run %s: no manifest found: %w", runID, err)
	}
	return newCoordinator(baseDir, runID, collab, true)
}

func newCoordinator(baseDir, runID string, collab Collaborators, resumed bool) (*Coordinator, error) {
	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "logs"), filepath.Join(runDir, "state")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	logFile, err := os.OpenFile(filepath.Join(runDir, "logs", "run.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	log := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, logFile), nil)).
		With(slog.String("run_id", runID))

	c := &Coordinator{
		log:     log,
		baseDir: baseDir,
		runID:   runID,
		runDir:  runDir,
		ckpt:    state.NewStore(filepath.Join(runDir, "state", "checkpoint.json"), log),
		collab:  collab,
		result:  newResult(runID, resumed),
		resumed: resumed,

		outFiles: make(map[string]bool),
		logFile:  logFile,
	}

	tracker, err := OpenTracker(baseDir)
	if err != nil {
		log.Warn("run tracker unavailable", slog.Any("err", err))
	} else {
		c.tracker = tracker
	}

	if url := engine.Cfg.DatabaseURL; url != "" {
		arch, err := archive.Connect(context.Background(), url, log)
		if err != nil {
			log.Warn("archive disabled", slog.Any("err", err))
		} else {
			c.arch = arch
		}
	}

	return c, nil
}

// RunID returns the coordinator's run identifier.
func (c *Coordinator) RunID() string { return c.runID }

// RunDir returns the run's root directory.
func (c *Coordinator) RunDir() string { return c.runDir }

func (c *Coordinator) reportsDir() string { return filepath.Join(c.runDir, "reports") }

// Per-unit output categories.
const (
	dirComments    = "comments"
	dirTranscripts = "transcripts"
	dirEnrich      = "enrich"
	dirFailures    = "failures"
)

// unitDir is where one video's output categories live: nested under
// videos/<id>/ in per-video output mode, shared at the run root otherwise.
func (c *Coordinator) unitDir(videoID string) string {
	if engine.Cfg.OutputPerVideo {
		return filepath.Join(c.runDir, "videos", videoID)
	}
	return c.runDir
}

func (c *Coordinator) unitPath(videoID, category, name string) string {
	return filepath.Join(c.unitDir(videoID), category, name)
}

// manifest is the run manifest written at creation. Secret values are
// masked; the manifest exists to make a run self-describing, not to leak
// credentials into the output tree.
type manifest struct {
	RunID     string   `json:"run_id"`
	CreatedAt string   `json:"created_at"`
	VideoURL  string   `json:"video_url,omitempty"`
	Terms     []string `json:"search_terms,omitempty"`
	Subs      []string `json:"subscriptions,omitempty"`

	MaxVideosPerTerm int      `json:"max_videos_per_term"`
	MaxSubVideos     int      `json:"max_sub_videos"`
	MaxTotalVideos   int      `json:"max_total_videos"`
	SortModes        []string `json:"sort_modes"`
	MaxComments      int      `json:"max_comments_per_video"`
	OnVideoFailure   string   `json:"on_video_failure"`
	OutputPerVideo   bool     `json:"output_per_video"`

	TranscriptsEnable bool    `json:"transcripts_enable"`
	ChunkSeconds      float64 `json:"chunk_seconds"`
	ChunkOverlap      float64 `json:"chunk_overlap_seconds"`

	LLMModel        string `json:"llm_model,omitempty"`
	LLMAPIKey       string `json:"llm_api_key,omitempty"`
	YouTubeAPIKey   string `json:"youtube_api_key,omitempty"`
	EmbeddingsModel string `json:"embeddings_model,omitempty"`
	EmbeddingsKey   string `json:"embeddings_api_key,omitempty"`
}

const masked = "***"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

func (c *Coordinator) writeManifest() error {
	cfg := engine.Cfg
	m := manifest{
		RunID:     c.runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		VideoURL:  cfg.VideoURL,
		Terms:     cfg.SearchTerms,
		Subs:      cfg.Subscriptions,

		MaxVideosPerTerm: cfg.MaxVideosPerTerm,
		MaxSubVideos:     cfg.MaxSubVideos,
		MaxTotalVideos:   cfg.MaxTotalVideos,
		SortModes:        cfg.CollectSortModes,
		MaxComments:      cfg.MaxCommentsPerVideo,
		OnVideoFailure:   cfg.OnVideoFailure,
		OutputPerVideo:   cfg.OutputPerVideo,

		TranscriptsEnable: cfg.TranscriptsEnable,
		ChunkSeconds:      cfg.ChunkSeconds,
		ChunkOverlap:      cfg.ChunkOverlapSeconds,

		LLMModel:        cfg.LLMModel,
		LLMAPIKey:       maskSecret(cfg.LLMAPIKey),
		YouTubeAPIKey:   maskSecret(cfg.YouTubeAPIKey),
		EmbeddingsModel: cfg.EmbeddingsModel,
		EmbeddingsKey:   maskSecret(cfg.EmbeddingsAPIKey),
	}
	return writeJSONFile(filepath.Join(c.runDir, "manifest.json"), m)
}

func (c *Coordinator) setStatus(status string) {
	c.result.Status = status
	c.log.Info("run status", slog.String("status", status))
	if c.tracker != nil {
		if err := c.tracker.SetStatus(c.runID, status); err != nil {
			c.log.Warn("tracker update failed", slog.Any("err", err))
		}
	}
}

// Preflight writes the run manifest and runs the preflight checks without
// starting collection. Useful for validating configuration before a long
// run.
func (c *Coordinator) Preflight() (*preflight.Result, error) {
	defer c.close()
	if err := c.writeManifest(); err != nil {
		return nil, err
	}
	return preflight.Run(c.runID, c.reportsDir(), c.log)
}

// Execute runs the whole pipeline and returns the run result. The result
// is also written to result.json in the run directory.
func (c *Coordinator) Execute(ctx context.Context) (*Result, error) {
	defer c.close()

	if c.tracker != nil {
		if err := c.tracker.Begin(c.runID, c.resumed); err != nil {
			c.log.Warn("tracker insert failed", slog.Any("err", err))
		}
	}

	if c.resumed {
		c.setStatus(StatusResuming)
	} else {
		c.setStatus(StatusPreflight)
		pf, err := preflight.Run(c.runID, c.reportsDir(), c.log)
		if err != nil {
			return c.fail(err)
		}
		if !pf.OK {
			return c.fail(fmt.Errorf("%w, see %s", ErrPreflight, pf.ReportPath))
		}
	}

	if err := c.writeManifest(); err != nil {
		return c.fail(err)
	}
	if err := c.ckpt.InitIfMissing(); err != nil {
		return c.fail(err)
	}
	c.setStatus(StatusRunning)

	var videos []engine.VideoEntry
	var err error
	if c.resumed {
		videos, err = c.loadUnits()
		if err != nil {
			return c.fail(fmt.Errorf("resume: %w", err))
		}
		c.log.Info("resuming run", slog.Int("videos", len(videos)))
	} else {
		videos, err = c.discover(ctx)
		if err != nil {
			return c.fail(err)
		}
	}
	c.result.VideosTotal = len(videos)

	for _, v := range videos {
		if ctx.Err() != nil {
			return c.fail(ctx.Err())
		}
		if err := c.processVideo(ctx, v); err != nil {
			return c.fail(err)
		}
	}

	for _, v := range videos {
		if ctx.Err() != nil {
			return c.fail(ctx.Err())
		}
		c.enrichVideo(ctx, v)
	}

	c.setStatus(StatusComplete)
	c.result.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := writeJSONFile(filepath.Join(c.runDir, "result.json"), c.result); err != nil {
		c.log.Warn("result write failed", slog.Any("err", err))
	}
	c.log.Info("run complete",
		slog.Int("videos", c.result.VideosTotal),
		slog.Int("failures", len(c.result.Failures)))
	c.log.Info("metrics\n" + engine.FormatMetrics())
	return c.result, nil
}

func (c *Coordinator) fail(err error) (*Result, error) {
	c.setStatus(StatusFailed)
	c.result.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	c.result.Error = err.Error()
	if werr := writeJSONFile(filepath.Join(c.runDir, "result.json"), c.result); werr != nil {
		c.log.Warn("result write failed", slog.Any("err", werr))
	}
	return c.result, err
}

func (c *Coordinator) close() {
	if c.arch != nil {
		c.arch.Close()
	}
	if c.logFile != nil {
		c.logFile.Close()
	}
}
