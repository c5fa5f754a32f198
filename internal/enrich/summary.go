package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Per-video summaries, one record per asset type. LLM-only; without a
// provider the stage checkpoints with no output.

type summaryStage struct {
	log *slog.Logger
}

func (s *summaryStage) Name() string { return "summary" }

// strideSample picks k items evenly spaced over the input, preserving
// order. Used for transcript chunks so the sample spans the whole video.
func strideSample(items []item, k int) []item {
	if len(items) <= k {
		return items
	}
	out := make([]item, 0, k)
	step := float64(len(items)) / float64(k)
	for i := 0; i < k; i++ {
		out = append(out, items[int(float64(i)*step)])
	}
	return out
}

// randomSample picks k items uniformly without replacement. Used for
// comments, where position carries no meaning.
func randomSample(items []item, k int) []item {
	if len(items) <= k {
		return items
	}
	idx := rand.Perm(len(items))[:k]
	out := make([]item, 0, k)
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

type llmSummary struct {
	Summary   string   `json:"summary"`
	KeyThemes []string `json:"key_themes"`
	Tone      string   `json:"tone"`
}

func (s *summaryStage) summarize(ctx context.Context, asset string, sample []item) (llmSummary, error) {
	var sb strings.Builder
	for _, it := range sample {
		fmt.Fprintf(&sb, "- %s\n", engine.Truncate(it.Text, 500))
	}
	prompt := fmt.Sprintf(summaryPrompt, asset, sb.String())
	return engine.CallLLMJSON[llmSummary](ctx, prompt)
}

func (s *summaryStage) Run(ctx context.Context, a Assets) (*Output, error) {
	if !engine.LLMAvailable() {
		s.log.Warn("summary stage skipped: no LLM configured",
			slog.String("video_id", a.VideoID))
		return &Output{File: "summaries.jsonl"}, nil
	}

	maxItems := engine.Cfg.SummaryMaxItems
	if maxItems <= 0 {
		maxItems = 40
	}

	var records []any
	for asset, items := range itemsByAsset(a) {
		var sample []item
		if asset == AssetTranscript {
			sample = strideSample(items, maxItems)
		} else {
			sample = randomSample(items, maxItems)
		}

		parsed, err := s.summarize(ctx, asset, sample)
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", asset, err)
		}
		if parsed.Summary == "" {
			continue
		}
		records = append(records, engine.SummaryRecord{
			VideoID:           a.VideoID,
			AssetType:         asset,
			Summary:           parsed.Summary,
			KeyThemes:         parsed.KeyThemes,
			Tone:              parsed.Tone,
			ItemCount:         len(items),
			ItemCountAnalyzed: len(sample),
		})
	}
	return &Output{File: "summaries.jsonl", Records: records}, nil
}
