package enrich

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// URL extraction is pure text processing; it never needs a provider.

var urlRE = regexp.MustCompile(`https?://[^\s<>"'\]\},;]+`)

type urlsStage struct{}

func (s *urlsStage) Name() string { return "urls" }

// cleanURL strips trailing punctuation that the regex swallows and trims a
// trailing ')' when the URL has no matching '(' inside it.
func cleanURL(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?")
	for strings.HasSuffix(raw, ")") && strings.Count(raw, ")") > strings.Count(raw, "(") {
		raw = strings.TrimSuffix(raw, ")")
	}
	return raw
}

// extractURLs pulls cleaned URLs from one text in order of appearance.
func extractURLs(text string) []string {
	matches := urlRE.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if u := cleanURL(m); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func urlDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func (s *urlsStage) Run(_ context.Context, a Assets) (*Output, error) {
	var records []any
	for asset, items := range itemsByAsset(a) {
		counts := map[string]int{}
		firstSeen := map[string]string{}
		var order []string

		for _, it := range items {
			for _, u := range extractURLs(it.Text) {
				if counts[u] == 0 {
					order = append(order, u)
					firstSeen[u] = it.ID
				}
				counts[u]++
			}
		}

		// Most-mentioned first; ties keep first-seen order.
		sort.SliceStable(order, func(i, j int) bool {
			return counts[order[i]] > counts[order[j]]
		})

		for _, u := range order {
			records = append(records, engine.URLRecord{
				VideoID:         a.VideoID,
				AssetType:       asset,
				URL:             u,
				Domain:          urlDomain(u),
				MentionCount:    counts[u],
				FirstSeenItemID: firstSeen[u],
			})
		}
	}
	return &Output{File: "urls.jsonl", Records: records}, nil
}
