package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SearchRequests     atomic.Int64
	ChannelRequests    atomic.Int64
	TranscriptRequests atomic.Int64
	CommentRequests    atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	EmbeddingRequests  atomic.Int64
	StagesCompleted    atomic.Int64
	StagesFailed       atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"search_requests":     metrics.SearchRequests.Load(),
		"channel_requests":    metrics.ChannelRequests.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"comment_requests":    metrics.CommentRequests.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"embedding_requests":  metrics.EmbeddingRequests.Load(),
		"stages_completed":    metrics.StagesCompleted.Load(),
		"stages_failed":       metrics.StagesFailed.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text block for logging at run end.
func FormatMetrics() string {
	m := GetMetrics()
	keys := []string{
		"search_requests", "channel_requests",
		"transcript_requests", "comment_requests",
		"llm_calls", "llm_errors", "embedding_requests",
		"stages_completed", "stages_failed",
		"cache_hits", "cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrSearchRequests()     { metrics.SearchRequests.Add(1) }
func IncrChannelRequests()    { metrics.ChannelRequests.Add(1) }
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrCommentRequests()    { metrics.CommentRequests.Add(1) }
func IncrLLMCalls()           { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()          { metrics.LLMErrors.Add(1) }
func IncrEmbeddingRequests()  { metrics.EmbeddingRequests.Add(1) }
func IncrStagesCompleted()    { metrics.StagesCompleted.Add(1) }
func IncrStagesFailed()       { metrics.StagesFailed.Add(1) }
