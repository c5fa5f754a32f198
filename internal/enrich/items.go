package enrich

import (
	"fmt"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// item is the uniform (id, text) view of an enrichable asset.
type item struct {
	ID   string
	Text string
}

// chunkItemID is the stable item identifier for a transcript chunk.
func chunkItemID(videoID string, idx int) string {
	return fmt.Sprintf("%s_chunk_%d", videoID, idx)
}

// transcriptItems views a video's chunks as enrichable items.
func transcriptItems(a Assets) []item {
	out := make([]item, 0, len(a.Chunks))
	for _, c := range a.Chunks {
		if c.Text == "" {
			continue
		}
		out = append(out, item{ID: chunkItemID(a.VideoID, c.ChunkIndex), Text: c.Text})
	}
	return out
}

// commentItems views a video's comments as enrichable items. Comments
// without an ID get a positional one so every record stays addressable.
func commentItems(a Assets) []item {
	out := make([]item, 0, len(a.Comments))
	for i, c := range a.Comments {
		if c.Text == "" {
			continue
		}
		id := c.CommentID
		if id == "" {
			id = fmt.Sprintf("%s_comment_%d", a.VideoID, i)
		}
		out = append(out, item{ID: id, Text: c.Text})
	}
	return out
}

// itemsByAsset returns both asset views keyed by asset type label.
func itemsByAsset(a Assets) map[string][]item {
	out := map[string][]item{}
	if items := transcriptItems(a); len(items) > 0 {
		out[AssetTranscript] = items
	}
	if items := commentItems(a); len(items) > 0 {
		out[AssetComments] = items
	}
	return out
}

// excerpt caps a source text for storage on a record.
func excerpt(s string) string {
	return engine.Truncate(s, 200)
}
