package engine

import (
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	stealth "github.com/anatolykoptev/go-stealth"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	// Input modes — exactly one is expected; preflight enforces exclusivity.
	VideoURL      string
	SearchTerms   []string
	Subscriptions []string

	// Discovery bounds
	MaxVideosPerTerm int
	MaxSubVideos     int
	MaxTotalVideos   int

	// Collection
	CollectSortModes    []string // checkpointed independently per mode
	MaxCommentsPerVideo int
	OnVideoFailure      string // "skip" or "abort"
	OutputPerVideo      bool

	// Transcripts
	TranscriptsEnable       bool
	TranscriptsPreferManual bool
	TranscriptsAllowAuto    bool
	TranscriptLangs         []string
	MaxTranscriptChars      int
	ChunkSeconds            float64
	ChunkOverlapSeconds     float64

	// Enrichment
	EmbeddingsEnable    bool
	EmbeddingsEndpoint  string
	EmbeddingsModel     string
	EmbeddingsAPIKey    string
	URLExtractionEnable bool
	SummaryEnable       bool
	SummaryMaxItems     int
	TopicClustering     string // "nlp" or "llm"

	// LLM
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int

	// YouTube Data API
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string

	// Rate limiting for Innertube / Data API calls
	APIRateLimitRPS   float64
	APIRateLimitBurst int

	// Caching
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	// Storage
	DatabaseURL string // optional Postgres archive

	HTTPClient    *http.Client
	LLMClient     *llm.Client            // nil = LLM enrichment strategies disabled
	BrowserClient *stealth.BrowserClient // nil = browser comment collector disabled
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (run, sources, enrich).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
	initLimiter(c.APIRateLimitRPS, c.APIRateLimitBurst)
}

// LLMAvailable reports whether an LLM client is configured. Gates the LLM-only
// enrichment stages (triples, summaries) and LLM strategies for topics/sentiment.
func LLMAvailable() bool {
	return cfg.LLMClient != nil
}
