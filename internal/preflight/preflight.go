// Package preflight validates a run's configuration before any network
// work starts. Checks are leveled: level 0 failures block the run, higher
// levels only inform. Every run writes a report pair (markdown + JSON)
// under the run's reports directory so a failed preflight leaves evidence.
package preflight

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/engine/sources"
)

// Check levels.
const (
	LevelBlocking = 0
	LevelInfo     = 1
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name    string `json:"name"`
	Level   int    `json:"level"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Result is the full preflight outcome.
type Result struct {
	OK         bool          `json:"ok"`
	RunID      string        `json:"run_id"`
	Timestamp  string        `json:"timestamp"`
	Checks     []CheckResult `json:"checks"`
	ReportPath string        `json:"-"`
}

// Discovery and collection hard limits.
const (
	maxVideosPerTermLimit = 10
	maxSubVideosLimit     = 50
	maxTotalVideosLimit   = 500
)

var validSortModes = map[string]bool{"top": true, "new": true}

// runChecks evaluates every check against the current engine config.
func runChecks() []CheckResult {
	cfg := engine.Cfg
	var out []CheckResult

	add := func(name string, level int, ok bool, format string, args ...any) {
		out = append(out, CheckResult{
			Name: name, Level: level, OK: ok,
			Message: fmt.Sprintf(format, args...),
		})
	}

	// Level 0: exactly one input mode.
	modes := 0
	if cfg.VideoURL != "" {
		modes++
	}
	if len(cfg.SearchTerms) > 0 {
		modes++
	}
	if len(cfg.Subscriptions) > 0 {
		modes++
	}
	switch modes {
	case 1:
		add("input_mode", LevelBlocking, true, "exactly one input mode configured")
	case 0:
		add("input_mode", LevelBlocking, false, "no input configured: set a video URL, search terms, or subscriptions")
	default:
		add("input_mode", LevelBlocking, false, "input modes are mutually exclusive: %d configured", modes)
	}

	if cfg.VideoURL != "" {
		if id := sources.ExtractVideoID(cfg.VideoURL); id == "" {
			add("video_url", LevelBlocking, false, "cannot extract a video ID from %q", cfg.VideoURL)
		} else {
			add("video_url", LevelBlocking, true, "video ID %s", id)
		}
	}

	// Level 0: discovery bounds.
	add("max_videos_per_term", LevelBlocking,
		cfg.MaxVideosPerTerm > 0 && cfg.MaxVideosPerTerm <= maxVideosPerTermLimit,
		"%d (allowed 1..%d)", cfg.MaxVideosPerTerm, maxVideosPerTermLimit)
	add("max_sub_videos", LevelBlocking,
		cfg.MaxSubVideos > 0 && cfg.MaxSubVideos <= maxSubVideosLimit,
		"%d (allowed 1..%d)", cfg.MaxSubVideos, maxSubVideosLimit)
	add("max_total_videos", LevelBlocking,
		cfg.MaxTotalVideos > 0 && cfg.MaxTotalVideos <= maxTotalVideosLimit,
		"%d (allowed 1..%d)", cfg.MaxTotalVideos, maxTotalVideosLimit)

	// Level 0: collection settings.
	badModes := []string{}
	for _, m := range cfg.CollectSortModes {
		if !validSortModes[m] {
			badModes = append(badModes, m)
		}
	}
	add("sort_modes", LevelBlocking,
		len(cfg.CollectSortModes) > 0 && len(badModes) == 0,
		"%v (valid: top, new)", cfg.CollectSortModes)

	add("on_video_failure", LevelBlocking,
		cfg.OnVideoFailure == "skip" || cfg.OnVideoFailure == "abort",
		"%q (valid: skip, abort)", cfg.OnVideoFailure)

	if cfg.TranscriptsEnable {
		add("chunk_window", LevelBlocking, cfg.ChunkSeconds > 0,
			"window %.1fs overlap %.1fs", cfg.ChunkSeconds, cfg.ChunkOverlapSeconds)
		if cfg.ChunkOverlapSeconds >= cfg.ChunkSeconds && cfg.ChunkSeconds > 0 {
			add("chunk_overlap", LevelInfo, true,
				"overlap >= window, non-overlapping windows will be used")
		}
	}

	add("topic_clustering", LevelBlocking,
		cfg.TopicClustering == "nlp" || cfg.TopicClustering == "llm",
		"%q (valid: nlp, llm)", cfg.TopicClustering)

	// Level 1: provider availability.
	add("llm", LevelInfo, engine.LLMAvailable(),
		"LLM client %s", presence(engine.LLMAvailable()))
	add("browser_client", LevelInfo, cfg.BrowserClient != nil,
		"stealth browser client %s; comments fall back to plain HTTP when absent", presence(cfg.BrowserClient != nil))
	add("youtube_api_key", LevelInfo, cfg.YouTubeAPIKey != "",
		"Data API key %s; search falls back to scraping when absent", presence(cfg.YouTubeAPIKey != ""))
	if cfg.EmbeddingsEnable {
		add("embeddings_endpoint", LevelInfo, cfg.EmbeddingsEndpoint != "",
			"embeddings endpoint %s", presence(cfg.EmbeddingsEndpoint != ""))
	}
	add("archive_db", LevelInfo, cfg.DatabaseURL != "",
		"Postgres archive %s", presence(cfg.DatabaseURL != ""))

	return out
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

// Run executes all checks and writes the report pair under reportsDir.
// Result.OK is false iff any blocking check failed; report writing
// failures are returned as errors since losing the evidence defeats the
// point of preflight.
func Run(runID, reportsDir string, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}

	checks := runChecks()
	ok := true
	for _, c := range checks {
		if c.Level == LevelBlocking && !c.OK {
			ok = false
			log.Error("preflight check failed", slog.String("check", c.Name), slog.String("detail", c.Message))
		}
	}

	res := &Result{
		OK:        ok,
		RunID:     runID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir reports: %w", err)
	}

	jsonPath := filepath.Join(reportsDir, "preflight_"+runID+".json")
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal preflight report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write preflight report: %w", err)
	}

	mdPath := filepath.Join(reportsDir, "preflight_"+runID+".md")
	if err := os.WriteFile(mdPath, []byte(res.markdown()), 0o644); err != nil {
		return nil, fmt.Errorf("write preflight report: %w", err)
	}

	res.ReportPath = mdPath
	log.Info("preflight complete", slog.Bool("ok", ok), slog.String("report", mdPath))
	return res, nil
}

// markdown renders the human-readable report.
func (r *Result) markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Preflight report — run %s\n\n", r.RunID)
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.Timestamp)
	if r.OK {
		sb.WriteString("**Result: PASS**\n\n")
	} else {
		sb.WriteString("**Result: FAIL** (blocking checks failed)\n\n")
	}
	sb.WriteString("| Check | Level | Status | Detail |\n")
	sb.WriteString("|-------|-------|--------|--------|\n")
	for _, c := range r.Checks {
		status := "ok"
		if !c.OK {
			if c.Level == LevelBlocking {
				status = "FAIL"
			} else {
				status = "warn"
			}
		}
		fmt.Fprintf(&sb, "| %s | %d | %s | %s |\n", c.Name, c.Level, status, c.Message)
	}
	return sb.String()
}
