package parse

import (
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// commentText renders a raw comment body to plain text. YouTube sometimes
// returns rich HTML fragments (links, formatting); those go through the
// HTML-to-markdown converter, plain bodies pass through untouched.
func commentText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return strings.TrimSpace(engine.CleanHTML(s))
	}
	return strings.TrimSpace(md)
}

// NormalizeComments converts raw comments from one sort mode into canonical
// records. Parent "root" or empty means a top-level comment (depth 0);
// anything else is a first-level reply (depth 1) keyed to its parent.
// Unknown timestamps become an empty PUBLISHED_AT.
func NormalizeComments(videoID, sortMode string, raw []engine.RawComment) []engine.Comment {
	out := make([]engine.Comment, 0, len(raw))
	for _, rc := range raw {
		parentID := ""
		depth := 0
		if rc.Parent != "" && rc.Parent != "root" {
			parentID = rc.Parent
			depth = 1
		}

		published := ""
		if rc.Timestamp > 0 {
			published = time.Unix(rc.Timestamp, 0).UTC().Format(time.RFC3339)
		}

		out = append(out, engine.Comment{
			VideoID:     videoID,
			CommentID:   rc.ID,
			ParentID:    parentID,
			Author:      rc.Author,
			Text:        commentText(rc.Text),
			LikeCount:   rc.LikeCount,
			ReplyCount:  rc.ReplyCount,
			PublishedAt: published,
			SortMode:    sortMode,
			ThreadDepth: depth,
		})
	}
	return out
}

// DedupComments merges per-mode comment batches in the given mode order,
// keeping the first occurrence of each COMMENT_ID. Comments with empty IDs
// cannot be distinguished from each other and are always kept.
func DedupComments(batches map[string][]engine.Comment, modeOrder []string) []engine.Comment {
	seen := make(map[string]bool)
	var out []engine.Comment
	for _, mode := range modeOrder {
		for _, c := range batches[mode] {
			if c.CommentID != "" {
				if seen[c.CommentID] {
					continue
				}
				seen[c.CommentID] = true
			}
			out = append(out, c)
		}
	}
	return out
}
