package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Topic discovery. The LLM strategy asks the model for labeled topics over
// a sample of texts. The keyword strategy clusters items around their
// highest-scoring terms and needs no provider.

// topicSampleSize caps how many texts go into one LLM topics prompt.
const topicSampleSize = 80

type topicsStage struct {
	log    *slog.Logger
	useLLM bool
}

func (s *topicsStage) Name() string { return "topics" }

// topicCount scales topic count with corpus size, capped at 10.
func topicCount(n int) int {
	k := n/20 + 1
	if k > 10 {
		k = 10
	}
	return k
}

func (s *topicsStage) Run(ctx context.Context, a Assets) (*Output, error) {
	var records []any
	for asset, items := range itemsByAsset(a) {
		var (
			topics []engine.TopicRecord
			err    error
		)
		if s.useLLM {
			topics, err = s.topicsLLM(ctx, a.VideoID, asset, items)
			if err != nil {
				return nil, fmt.Errorf("topics %s: %w", asset, err)
			}
		} else {
			topics = keywordTopics(a.VideoID, asset, items)
		}
		for _, t := range topics {
			records = append(records, t)
		}
	}
	return &Output{File: "topics.jsonl", Records: records}, nil
}

// --- LLM strategy ---

type llmTopic struct {
	Label     string   `json:"label"`
	Keywords  []string `json:"keywords"`
	ItemIDs   []string `json:"item_ids"`
	Relevance float64  `json:"relevance"`
}

func (s *topicsStage) topicsLLM(ctx context.Context, videoID, asset string, items []item) ([]engine.TopicRecord, error) {
	sample := items
	if len(sample) > topicSampleSize {
		sample = strideSample(sample, topicSampleSize)
	}

	texts := make(map[string]string, len(items))
	for _, it := range items {
		texts[it.ID] = it.Text
	}

	var sb strings.Builder
	for _, it := range sample {
		fmt.Fprintf(&sb, "[%s] %s\n", it.ID, engine.Truncate(it.Text, 400))
	}
	prompt := fmt.Sprintf(topicsPrompt, topicCount(len(items)), sb.String())

	parsed, err := engine.CallLLMJSON[[]llmTopic](ctx, prompt)
	if err != nil {
		return nil, err
	}

	out := make([]engine.TopicRecord, 0, len(parsed))
	for i, t := range parsed {
		if t.Label == "" {
			continue
		}
		var reps []string
		for _, id := range t.ItemIDs {
			if txt, ok := texts[id]; ok {
				reps = append(reps, excerpt(txt))
			}
			if len(reps) == 3 {
				break
			}
		}
		out = append(out, engine.TopicRecord{
			VideoID:             videoID,
			AssetType:           asset,
			TopicID:             i,
			Label:               t.Label,
			Keywords:            t.Keywords,
			RepresentativeTexts: reps,
			Score:               t.Relevance,
		})
	}
	return out, nil
}

// --- Keyword strategy ---

var tokenRE = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]{2,}`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "you": true, "not": true, "are": true, "was": true,
	"but": true, "have": true, "has": true, "had": true, "they": true,
	"them": true, "their": true, "from": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "how": true, "why": true,
	"can": true, "will": true, "would": true, "could": true, "should": true,
	"just": true, "like": true, "get": true, "got": true, "out": true,
	"all": true, "about": true, "more": true, "one": true, "your": true,
	"its": true, "it's": true, "i'm": true, "don't": true, "doesn't": true,
	"there": true, "here": true, "been": true, "being": true, "were": true,
	"into": true, "than": true, "then": true, "also": true, "because": true,
	"really": true, "very": true, "some": true, "any": true, "only": true,
	"even": true, "much": true, "make": true, "know": true, "think": true,
	"going": true, "want": true, "say": true, "said": true, "see": true,
}

func tokenize(text string) []string {
	raw := tokenRE.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// keywordTopics clusters items around their strongest TF-IDF terms.
// Each of the top-scoring terms seeds one topic containing every item
// that mentions it; seeds whose items mostly overlap an earlier seed are
// skipped to keep topics distinct.
func keywordTopics(videoID, asset string, items []item) []engine.TopicRecord {
	n := len(items)
	if n == 0 {
		return nil
	}

	docTokens := make([][]string, n)
	df := map[string]int{}
	tf := map[string]int{}
	for i, it := range items {
		toks := tokenize(it.Text)
		docTokens[i] = toks
		seen := map[string]bool{}
		for _, tok := range toks {
			tf[tok]++
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	// Rank terms by tf * idf.
	type scored struct {
		term  string
		score float64
	}
	ranked := make([]scored, 0, len(tf))
	for term, f := range tf {
		idf := math.Log(float64(n+1) / float64(df[term]+1))
		ranked = append(ranked, scored{term, float64(f) * idf})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].term < ranked[j].term
	})

	membersOf := func(term string) []int {
		var m []int
		for i, toks := range docTokens {
			for _, tok := range toks {
				if tok == term {
					m = append(m, i)
					break
				}
			}
		}
		return m
	}

	var topics []engine.TopicRecord
	claimed := make([]bool, n)
	want := topicCount(n)

	for _, cand := range ranked {
		if len(topics) >= want {
			break
		}
		members := membersOf(cand.term)
		if len(members) == 0 {
			continue
		}
		overlap := 0
		for _, i := range members {
			if claimed[i] {
				overlap++
			}
		}
		if float64(overlap) > 0.6*float64(len(members)) {
			continue
		}
		for _, i := range members {
			claimed[i] = true
		}

		// Keywords: the seed plus its top co-occurring terms.
		co := map[string]int{}
		for _, i := range members {
			for _, tok := range docTokens[i] {
				if tok != cand.term {
					co[tok]++
				}
			}
		}
		coRanked := make([]scored, 0, len(co))
		for term, f := range co {
			coRanked = append(coRanked, scored{term, float64(f)})
		}
		sort.Slice(coRanked, func(i, j int) bool {
			if coRanked[i].score != coRanked[j].score {
				return coRanked[i].score > coRanked[j].score
			}
			return coRanked[i].term < coRanked[j].term
		})
		keywords := []string{cand.term}
		for _, c := range coRanked {
			if len(keywords) == 8 {
				break
			}
			keywords = append(keywords, c.term)
		}

		var reps []string
		for _, i := range members {
			reps = append(reps, excerpt(items[i].Text))
			if len(reps) == 3 {
				break
			}
		}

		topics = append(topics, engine.TopicRecord{
			VideoID:             videoID,
			AssetType:           asset,
			TopicID:             len(topics),
			Label:               cand.term,
			Keywords:            keywords,
			RepresentativeTexts: reps,
			Score:               float64(len(members)) / float64(n),
		})
	}
	return topics
}
