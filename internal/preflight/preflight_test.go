package preflight

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validConfig() engine.Config {
	return engine.Config{
		VideoURL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		MaxVideosPerTerm:    5,
		MaxSubVideos:        5,
		MaxTotalVideos:      50,
		CollectSortModes:    []string{"top", "new"},
		OnVideoFailure:      "skip",
		TranscriptsEnable:   true,
		ChunkSeconds:        60,
		ChunkOverlapSeconds: 10,
		TopicClustering:     "nlp",
	}
}

func TestPreflightPass(t *testing.T) {
	engine.Init(validConfig())

	res, err := Run("20250101T000000Z", t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.True(t, res.OK)

	// Report pair exists and the JSON one round-trips.
	data, err := os.ReadFile(filepath.Join(filepath.Dir(res.ReportPath), "preflight_20250101T000000Z.json"))
	require.NoError(t, err)
	var parsed Result
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, parsed.OK)
	assert.NotEmpty(t, parsed.Checks)

	_, err = os.Stat(res.ReportPath)
	require.NoError(t, err)
}

func TestPreflightMutuallyExclusiveInputs(t *testing.T) {
	cfg := validConfig()
	cfg.SearchTerms = []string{"golang"}
	engine.Init(cfg)

	res, err := Run("20250101T000000Z", t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.False(t, res.OK, "two input modes must fail preflight")
}

func TestPreflightNoInput(t *testing.T) {
	cfg := validConfig()
	cfg.VideoURL = ""
	engine.Init(cfg)

	res, err := Run("20250101T000000Z", t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestPreflightBoundsEnforced(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engine.Config)
	}{
		{"per-term cap", func(c *engine.Config) { c.MaxVideosPerTerm = 11 }},
		{"total cap", func(c *engine.Config) { c.MaxTotalVideos = 501 }},
		{"sub cap", func(c *engine.Config) { c.MaxSubVideos = 51 }},
		{"bad sort mode", func(c *engine.Config) { c.CollectSortModes = []string{"controversial"} }},
		{"bad failure policy", func(c *engine.Config) { c.OnVideoFailure = "retry" }},
		{"bad video url", func(c *engine.Config) { c.VideoURL = "https://example.com/nope" }},
		{"bad clustering", func(c *engine.Config) { c.TopicClustering = "magic" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			engine.Init(cfg)

			res, err := Run("20250101T000000Z", t.TempDir(), testLogger())
			require.NoError(t, err)
			assert.False(t, res.OK)
		})
	}
}

func TestPreflightInfoChecksDoNotBlock(t *testing.T) {
	// No LLM, no browser client, no API key: all informational only.
	engine.Init(validConfig())

	res, err := Run("20250101T000000Z", t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.True(t, res.OK)

	warned := false
	for _, c := range res.Checks {
		if c.Level == LevelInfo && !c.OK {
			warned = true
		}
	}
	assert.True(t, warned, "expected informational warnings for missing providers")
}
