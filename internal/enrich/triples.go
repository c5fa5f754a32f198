package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Relation triple extraction is LLM-only: there is no usable degraded
// strategy. Without a provider the stage still runs and checkpoints, it
// just produces nothing and says so once per video.

const triplesBatchSize = 20

type triplesStage struct {
	log *slog.Logger
}

func (s *triplesStage) Name() string { return "triples" }

type llmTriple struct {
	ID         string  `json:"id"`
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

func (s *triplesStage) extractBatch(ctx context.Context, batch []item) ([]llmTriple, error) {
	var sb strings.Builder
	for _, it := range batch {
		fmt.Fprintf(&sb, "[%s] %s\n", it.ID, engine.Truncate(it.Text, 800))
	}
	prompt := fmt.Sprintf(triplesPrompt, sb.String())
	return engine.CallLLMJSON[[]llmTriple](ctx, prompt)
}

func (s *triplesStage) Run(ctx context.Context, a Assets) (*Output, error) {
	if !engine.LLMAvailable() {
		s.log.Warn("triples stage skipped: no LLM configured",
			slog.String("video_id", a.VideoID))
		return &Output{File: "triples.jsonl"}, nil
	}

	var records []any
	for asset, items := range itemsByAsset(a) {
		texts := make(map[string]string, len(items))
		for _, it := range items {
			texts[it.ID] = it.Text
		}

		for start := 0; start < len(items); start += triplesBatchSize {
			end := min(start+triplesBatchSize, len(items))
			batch := items[start:end]

			triples, err := s.extractBatch(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("triples %s batch at %d: %w", asset, start, err)
			}
			for _, tr := range triples {
				if tr.Subject == "" || tr.Predicate == "" || tr.Object == "" {
					continue
				}
				records = append(records, engine.TripleRecord{
					VideoID:    a.VideoID,
					AssetType:  asset,
					Subject:    tr.Subject,
					Predicate:  tr.Predicate,
					Object:     tr.Object,
					Confidence: tr.Confidence,
					SourceText: excerpt(texts[tr.ID]),
				})
			}
		}
	}
	return &Output{File: "triples.jsonl", Records: records}, nil
}
