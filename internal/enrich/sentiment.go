package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Sentiment scoring. LLM strategy scores batches of items in one call;
// without an LLM a small lexicon scorer keeps the stage functional.

const sentimentBatchSize = 50

// Polarity thresholds on the -1..1 score.
const polarityThreshold = 0.1

type sentimentStage struct {
	log    *slog.Logger
	useLLM bool
}

func (s *sentimentStage) Name() string { return "sentiment" }

func polarityFor(score float64) string {
	switch {
	case score > polarityThreshold:
		return "positive"
	case score < -polarityThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

type llmSentimentItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// scoreBatchLLM scores one batch via the LLM. The response maps item IDs
// to -1..1 scores; items the model skipped get no record.
func (s *sentimentStage) scoreBatchLLM(ctx context.Context, batch []item) (map[string]float64, error) {
	var sb strings.Builder
	for _, it := range batch {
		fmt.Fprintf(&sb, "[%s] %s\n", it.ID, engine.Truncate(it.Text, 500))
	}
	prompt := fmt.Sprintf(sentimentPrompt, sb.String())

	parsed, err := engine.CallLLMJSON[[]llmSentimentItem](ctx, prompt)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(parsed))
	for _, p := range parsed {
		score := p.Score
		if score > 1 {
			score = 1
		}
		if score < -1 {
			score = -1
		}
		scores[p.ID] = score
	}
	return scores, nil
}

// Minimal sentiment lexicon for the degraded strategy. Intentionally
// small; the point is a usable signal without a provider, not parity.
var (
	positiveWords = map[string]bool{
		"good": true, "great": true, "love": true, "loved": true, "awesome": true,
		"amazing": true, "excellent": true, "best": true, "helpful": true,
		"thanks": true, "thank": true, "wonderful": true, "perfect": true,
		"nice": true, "brilliant": true, "fantastic": true, "useful": true,
		"clear": true, "insightful": true, "enjoyed": true,
	}
	negativeWords = map[string]bool{
		"bad": true, "terrible": true, "hate": true, "hated": true, "awful": true,
		"worst": true, "wrong": true, "boring": true, "waste": true, "useless": true,
		"confusing": true, "misleading": true, "disappointing": true, "poor": true,
		"horrible": true, "annoying": true, "stupid": true, "broken": true,
	}
)

// scoreLexicon computes (positive - negative) / tokens over a word lexicon.
func scoreLexicon(text string) float64 {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0
	}
	score := 0
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:'\"()")
		if positiveWords[tok] {
			score++
		} else if negativeWords[tok] {
			score--
		}
	}
	v := float64(score) / float64(len(tokens))
	// Scale up so short emphatic comments cross the polarity thresholds.
	v *= 5
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

func (s *sentimentStage) Run(ctx context.Context, a Assets) (*Output, error) {
	var records []any
	for asset, items := range itemsByAsset(a) {
		if s.useLLM {
			for start := 0; start < len(items); start += sentimentBatchSize {
				end := min(start+sentimentBatchSize, len(items))
				batch := items[start:end]

				scores, err := s.scoreBatchLLM(ctx, batch)
				if err != nil {
					return nil, fmt.Errorf("sentiment %s batch at %d: %w", asset, start, err)
				}
				for _, it := range batch {
					score, ok := scores[it.ID]
					if !ok {
						continue
					}
					records = append(records, engine.SentimentRecord{
						VideoID:     a.VideoID,
						AssetType:   asset,
						ItemID:      it.ID,
						Polarity:    polarityFor(score),
						Score:       score,
						TextExcerpt: excerpt(it.Text),
					})
				}
			}
			continue
		}

		for _, it := range items {
			score := scoreLexicon(it.Text)
			records = append(records, engine.SentimentRecord{
				VideoID:     a.VideoID,
				AssetType:   asset,
				ItemID:      it.ID,
				Polarity:    polarityFor(score),
				Score:       score,
				TextExcerpt: excerpt(it.Text),
			})
		}
	}
	return &Output{File: "sentiment.jsonl", Records: records}, nil
}
