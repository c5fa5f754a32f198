package enrich

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "check https://example.com for more", []string{"https://example.com"}},
		{"trailing punctuation", "see https://example.com/page.", []string{"https://example.com/page"}},
		{"trailing comma", "link: https://example.com/a?b=1", []string{"https://example.com/a?b=1"}},
		{"wrapping parens", "(https://example.com/x)", []string{"https://example.com/x"}},
		{"parens inside path kept", "https://en.wikipedia.org/wiki/Go_(language)", []string{"https://en.wikipedia.org/wiki/Go_(language)"}},
		{"multiple", "a http://a.com b https://b.com", []string{"http://a.com", "https://b.com"}},
		{"none", "no links here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractURLs(tt.in))
		})
	}
}

func TestURLsStageAggregation(t *testing.T) {
	a := Assets{
		VideoID: "vid00000001",
		Comments: []engine.Comment{
			{CommentID: "c1", Text: "see https://example.com and https://other.org"},
			{CommentID: "c2", Text: "again https://example.com"},
		},
	}
	out, err := (&urlsStage{}).Run(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	first := out.Records[0].(engine.URLRecord)
	assert.Equal(t, "https://example.com", first.URL)
	assert.Equal(t, 2, first.MentionCount)
	assert.Equal(t, "c1", first.FirstSeenItemID)
	assert.Equal(t, "example.com", first.Domain)

	second := out.Records[1].(engine.URLRecord)
	assert.Equal(t, 1, second.MentionCount)
}

func TestPolarityThresholds(t *testing.T) {
	assert.Equal(t, "positive", polarityFor(0.5))
	assert.Equal(t, "negative", polarityFor(-0.5))
	assert.Equal(t, "neutral", polarityFor(0.05))
	assert.Equal(t, "neutral", polarityFor(-0.1))
	assert.Equal(t, "positive", polarityFor(0.11))
}

func TestScoreLexicon(t *testing.T) {
	assert.Greater(t, scoreLexicon("great video, love it"), polarityThreshold)
	assert.Less(t, scoreLexicon("terrible and boring waste"), -polarityThreshold)
	assert.InDelta(t, 0.0, scoreLexicon("the weather report at noon"), polarityThreshold)
	assert.Equal(t, 0.0, scoreLexicon(""))
}

func TestSentimentLexiconRecords(t *testing.T) {
	a := Assets{
		VideoID: "vid00000001",
		Comments: []engine.Comment{
			{CommentID: "c1", Text: "awesome video, thanks"},
			{CommentID: "c2", Text: "awful and useless"},
		},
	}
	out, err := (&sentimentStage{}).Run(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	r1 := out.Records[0].(engine.SentimentRecord)
	assert.Equal(t, "positive", r1.Polarity)
	assert.Equal(t, AssetComments, r1.AssetType)
	assert.Equal(t, "c1", r1.ItemID)

	r2 := out.Records[1].(engine.SentimentRecord)
	assert.Equal(t, "negative", r2.Polarity)
}

func TestKeywordTopics(t *testing.T) {
	items := []item{
		{ID: "1", Text: "golang concurrency channels goroutines explained"},
		{ID: "2", Text: "goroutines and channels in golang runtime"},
		{ID: "3", Text: "cooking pasta recipes italian kitchen"},
		{ID: "4", Text: "italian pasta sauce recipes tutorial"},
	}
	topics := keywordTopics("vid00000001", AssetTranscript, items)
	require.NotEmpty(t, topics)

	for i, tp := range topics {
		assert.Equal(t, i, tp.TopicID)
		assert.Equal(t, "vid00000001", tp.VideoID)
		assert.NotEmpty(t, tp.Keywords)
		assert.NotEmpty(t, tp.RepresentativeTexts)
		assert.Greater(t, tp.Score, 0.0)
		assert.LessOrEqual(t, tp.Score, 1.0)
	}
}

func TestKeywordTopicsEmpty(t *testing.T) {
	assert.Nil(t, keywordTopics("vid00000001", AssetTranscript, nil))
}

func TestTopicCount(t *testing.T) {
	assert.Equal(t, 1, topicCount(5))
	assert.Equal(t, 2, topicCount(20))
	assert.Equal(t, 10, topicCount(500))
}

func TestStrideSample(t *testing.T) {
	items := make([]item, 10)
	for i := range items {
		items[i] = item{ID: string(rune('a' + i))}
	}
	sample := strideSample(items, 3)
	require.Len(t, sample, 3)
	assert.Equal(t, "a", sample[0].ID)
	// Evenly spaced and in order.
	assert.Less(t, sample[0].ID, sample[1].ID)
	assert.Less(t, sample[1].ID, sample[2].ID)

	// Fewer items than k returns everything.
	assert.Len(t, strideSample(items[:2], 5), 2)
}

func TestTriplesWithoutLLM(t *testing.T) {
	a := Assets{
		VideoID:  "vid00000001",
		Comments: []engine.Comment{{CommentID: "c1", Text: "the sky is blue"}},
	}
	out, err := (&triplesStage{log: testLogger()}).Run(context.Background(), a)
	require.NoError(t, err, "missing provider is not a failure")
	assert.Empty(t, out.Records)
	assert.Equal(t, "triples.jsonl", out.File)
}

func TestBuildStagesWithoutLLM(t *testing.T) {
	engine.Init(engine.Config{
		URLExtractionEnable: true,
		SummaryEnable:       true,
		TopicClustering:     "llm", // degrades to keyword clustering without a client
	})

	stages := BuildStages(testLogger())
	var names []string
	for _, s := range stages {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"topics", "sentiment", "triples", "urls", "summary"}, names)
}
