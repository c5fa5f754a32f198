// Package enrich implements the per-video enrichment stages: embeddings,
// topics, sentiment, relation triples, URL extraction, and summaries.
//
// Capabilities are resolved once at startup into a fixed, ordered stage
// list. A stage whose strategy needs an unavailable provider either swaps
// to a degraded strategy (topics, sentiment) or stays registered and
// reports an empty result with a warning (triples, summary), so the
// checkpoint ledger always sees the same stage set for a given config.
package enrich

import (
	"context"
	"log/slog"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Asset type labels stored on every enrichment record.
const (
	AssetTranscript = "transcript"
	AssetComments   = "comments"
)

// Assets is the normalized per-video input to every stage.
type Assets struct {
	VideoID  string
	Chunks   []engine.Chunk
	Comments []engine.Comment
}

// Output is what a stage produced: the records, and the base file name
// they are appended to under the run's enrichment directory.
type Output struct {
	File    string
	Records []any
}

// Stage is one enrichment capability. Name is the checkpoint stage suffix
// ("embeddings" checkpoints as "enrich_embeddings").
type Stage interface {
	Name() string
	Run(ctx context.Context, a Assets) (*Output, error)
}

// BuildStages resolves the configured enrichment capabilities into the
// fixed execution order. Disabled capabilities are simply absent.
func BuildStages(log *slog.Logger) []Stage {
	if log == nil {
		log = slog.Default()
	}
	cfg := engine.Cfg

	var stages []Stage

	if cfg.EmbeddingsEnable && cfg.EmbeddingsEndpoint != "" {
		stages = append(stages, &embeddingsStage{log: log})
	} else if cfg.EmbeddingsEnable {
		log.Warn("embeddings enabled but no endpoint configured, stage disabled")
	}

	if cfg.TopicClustering == "llm" && engine.LLMAvailable() {
		stages = append(stages, &topicsStage{log: log, useLLM: true})
	} else {
		if cfg.TopicClustering == "llm" {
			log.Warn("llm topic clustering requested but no LLM configured, using keyword clustering")
		}
		stages = append(stages, &topicsStage{log: log})
	}

	if engine.LLMAvailable() {
		stages = append(stages, &sentimentStage{log: log, useLLM: true})
	} else {
		log.Info("no LLM configured, sentiment uses lexicon scoring")
		stages = append(stages, &sentimentStage{log: log})
	}

	stages = append(stages, &triplesStage{log: log})

	if cfg.URLExtractionEnable {
		stages = append(stages, &urlsStage{})
	}

	if cfg.SummaryEnable {
		stages = append(stages, &summaryStage{log: log})
	}

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	log.Info("enrichment stages resolved", slog.Any("stages", names))
	return stages
}
