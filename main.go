// go_ytminer — YouTube comments and transcripts mining pipeline.
//
// Discovers videos from a URL, search terms, or channel subscriptions,
// collects transcripts and comments, normalizes them into line-delimited
// records, and runs NLP/LLM enrichment stages over the result. Every
// stage checkpoints per video, so an interrupted run resumes with
// -resume <run_id> without repeating finished work.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/run"
)

var version = "dev"

// envBool reads a boolean env var; go-kit's env package has no Bool getter.
func envBool(key string, def bool) bool {
	v := env.Str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("bad boolean env value, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	return b
}

func main() {
	var (
		resumeID      = flag.String("resume", "", "resume the run with this ID instead of starting a new one")
		preflightOnly = flag.Bool("preflight", false, "run preflight checks and exit")
		history       = flag.Int("history", 0, "print the N most recent runs and exit")
	)
	flag.Parse()

	outputDir := env.Str("OUTPUT_DIR", "./output")
	initEngine()

	slog.Info("starting go_ytminer",
		slog.String("version", version),
		slog.String("output", outputDir),
	)

	if *history > 0 {
		printHistory(outputDir, *history)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collab := run.DefaultCollaborators(slog.Default())

	var (
		c   *run.Coordinator
		err error
	)
	if *resumeID != "" {
		c, err = run.Resume(outputDir, *resumeID, collab)
		if err != nil {
			slog.Error("cannot resume run", slog.String("run_id", *resumeID), slog.Any("error", err))
			os.Exit(2)
		}
	} else {
		c, err = run.New(outputDir, collab)
		if err != nil {
			slog.Error("run setup failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if *preflightOnly {
		res, err := c.Preflight()
		if err != nil {
			slog.Error("preflight failed", slog.Any("error", err))
			os.Exit(1)
		}
		if !res.OK {
			slog.Error("preflight checks failed", slog.String("report", res.ReportPath))
			os.Exit(2)
		}
		slog.Info("preflight passed", slog.String("report", res.ReportPath))
		return
	}

	res, err := c.Execute(ctx)
	if err != nil {
		slog.Error("run failed",
			slog.String("run_id", c.RunID()), slog.Any("error", err))
		if errors.Is(err, run.ErrPreflight) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	slog.Info("run finished",
		slog.String("run_id", res.RunID),
		slog.Int("videos", res.VideosTotal),
		slog.Int("comments", res.CommentsCollected),
		slog.Int("segments", res.SegmentsWritten),
		slog.Int("failures", len(res.Failures)),
	)
}

func printHistory(outputDir string, n int) {
	tracker, err := run.OpenTracker(outputDir)
	if err != nil {
		slog.Error("tracker unavailable", slog.Any("error", err))
		os.Exit(1)
	}
	defer tracker.Close()

	runs, err := tracker.History(n)
	if err != nil {
		slog.Error("history query failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Printf("%s  %-10s resumed=%v  started=%s  finished=%s\n",
			r.RunID, r.Status, r.Resumed, r.StartedAt, r.FinishedAt)
	}
}

func initEngine() {
	c := engine.Config{
		VideoURL:      env.Str("VIDEO_URL", ""),
		SearchTerms:   env.List("SEARCH_TERMS", ""),
		Subscriptions: env.List("SUBSCRIPTIONS", ""),

		MaxVideosPerTerm: env.Int("MAX_VIDEOS_PER_TERM", 5),
		MaxSubVideos:     env.Int("MAX_SUB_VIDEOS", 5),
		MaxTotalVideos:   env.Int("MAX_TOTAL_VIDEOS", 50),

		CollectSortModes:    env.List("COMMENT_SORT_MODES", "top,new"),
		MaxCommentsPerVideo: env.Int("MAX_COMMENTS_PER_VIDEO", 500),
		OnVideoFailure:      env.Str("ON_VIDEO_FAILURE", "skip"),
		OutputPerVideo:      envBool("OUTPUT_PER_VIDEO", true),

		TranscriptsEnable:       envBool("TRANSCRIPTS_ENABLE", true),
		TranscriptsPreferManual: envBool("TRANSCRIPTS_PREFER_MANUAL", true),
		TranscriptsAllowAuto:    envBool("TRANSCRIPTS_ALLOW_AUTO", true),
		TranscriptLangs:         env.List("TRANSCRIPT_LANGS", "en"),
		MaxTranscriptChars:      env.Int("MAX_TRANSCRIPT_CHARS", 400000),
		ChunkSeconds:            env.Float("CHUNK_SECONDS", 60),
		ChunkOverlapSeconds:     env.Float("CHUNK_OVERLAP_SECONDS", 10),

		EmbeddingsEnable:    envBool("EMBEDDINGS_ENABLE", false),
		EmbeddingsEndpoint:  env.Str("EMBEDDINGS_ENDPOINT", ""),
		EmbeddingsModel:     env.Str("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsAPIKey:    env.Str("EMBEDDINGS_API_KEY", ""),
		URLExtractionEnable: envBool("URL_EXTRACTION_ENABLE", true),
		SummaryEnable:       envBool("SUMMARY_ENABLE", true),
		SummaryMaxItems:     env.Int("SUMMARY_MAX_ITEMS", 40),
		TopicClustering:     env.Str("TOPIC_CLUSTERING", "nlp"),

		LLMAPIKey:          env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks: env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:         env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:     env.Float("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:       env.Int("LLM_MAX_TOKENS", 16384),

		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),

		APIRateLimitRPS:   env.Float("API_RATE_LIMIT_RPS", 2),
		APIRateLimitBurst: env.Int("API_RATE_LIMIT_BURST", 4),

		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),

		DatabaseURL: env.Str("DATABASE_URL", ""),

		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, browser comment collector disabled", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
	} else {
		slog.Info("no LLM API key, LLM enrichment strategies disabled")
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 15*time.Minute)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}
