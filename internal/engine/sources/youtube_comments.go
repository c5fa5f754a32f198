package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Comment collection via Innertube /next continuations.
//
// Primary collector rides the stealth browser client (Chrome TLS
// fingerprint); YouTube throttles comment continuations aggressively for
// plain HTTP clients. Secondary falls back to the shared net/http client
// with the default sort only.
//
// The continuation graph is walked breadth-first: each /next response
// yields comment entities plus more tokens (next page, reply threads).

// innertubePoster abstracts the transport so both collectors share one walk.
type innertubePoster func(ctx context.Context, endpoint string, payload any, visitorData string) ([]byte, error)

// ytCommentPayload is the modern commentEntityPayload carried in
// frameworkUpdates mutations.
type ytCommentPayload struct {
	Properties struct {
		CommentID string `json:"commentId"`
		Content   struct {
			Content string `json:"content"`
		} `json:"content"`
		PublishedTime string `json:"publishedTime"`
	} `json:"properties"`
	Author struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Toolbar struct {
		LikeCountNotliked string `json:"likeCountNotliked"`
		ReplyCount        string `json:"replyCount"`
	} `json:"toolbar"`
}

type ytFrameworkUpdates struct {
	FrameworkUpdates struct {
		EntityBatchUpdate struct {
			Mutations []struct {
				Payload struct {
					CommentEntityPayload *ytCommentPayload `json:"commentEntityPayload"`
				} `json:"payload"`
			} `json:"mutations"`
		} `json:"entityBatchUpdate"`
	} `json:"frameworkUpdates"`
}

// parseCount turns YouTube's abbreviated counts ("1.2K", "3M", "42") into ints.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		mult, s = 1e9, strings.TrimSuffix(s, "B")
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(f * mult)
}

var relTimeUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// parseRelativeTime converts YouTube's "3 weeks ago (edited)" style
// published time into an approximate unix timestamp. Returns 0 when the
// string cannot be parsed.
func parseRelativeTime(s string, now time.Time) int64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "(edited)"))
	fields := strings.Fields(s)
	if len(fields) < 3 || fields[len(fields)-1] != "ago" {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		if fields[0] == "a" || fields[0] == "an" {
			n = 1
		} else {
			return 0
		}
	}
	unit := strings.TrimSuffix(fields[1], "s")
	d, ok := relTimeUnits[unit]
	if !ok {
		return 0
	}
	return now.Add(-time.Duration(n) * d).Unix()
}

// commentParent derives the parent from a comment ID. Reply IDs have the
// form "<parent>.<suffix>"; top-level comments report "root".
func commentParent(commentID string) string {
	if i := strings.Index(commentID, "."); i > 0 {
		return commentID[:i]
	}
	return "root"
}

// payloadToComment converts a commentEntityPayload to a RawComment.
func payloadToComment(p *ytCommentPayload, now time.Time) engine.RawComment {
	return engine.RawComment{
		ID:         p.Properties.CommentID,
		Parent:     commentParent(p.Properties.CommentID),
		Author:     p.Author.DisplayName,
		Text:       p.Properties.Content.Content,
		LikeCount:  parseCount(p.Toolbar.LikeCountNotliked),
		ReplyCount: parseCount(p.Toolbar.ReplyCount),
		Timestamp:  parseRelativeTime(p.Properties.PublishedTime, now),
	}
}

// extractContinuationTokens walks raw JSON for continuationCommand tokens.
func extractContinuationTokens(data []byte) []string {
	var tokens []string
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["continuationCommand"]; ok {
				var cc struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(raw, &cc); err == nil && cc.Token != "" {
					tokens = append(tokens, cc.Token)
				}
			}
			for _, child := range obj {
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				walk(item)
			}
		}
	}
	walk(data)
	return tokens
}

// extractSortTokens walks the initial /next response for the comment sort
// sub-menu. Index 0 is "Top comments", index 1 is "Newest first".
func extractSortTokens(data []byte) []string {
	var menus []json.RawMessage
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["sortFilterSubMenuRenderer"]; ok {
				menus = append(menus, raw)
			}
			for _, child := range obj {
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				walk(item)
			}
		}
	}
	walk(data)

	for _, menu := range menus {
		var m struct {
			SubMenuItems []struct {
				ServiceEndpoint struct {
					ContinuationCommand struct {
						Token string `json:"token"`
					} `json:"continuationCommand"`
				} `json:"serviceEndpoint"`
			} `json:"subMenuItems"`
		}
		if err := json.Unmarshal(menu, &m); err != nil {
			continue
		}
		var tokens []string
		for _, item := range m.SubMenuItems {
			if t := item.ServiceEndpoint.ContinuationCommand.Token; t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) > 0 {
			return tokens
		}
	}
	return nil
}

// maxCommentRequests bounds the continuation walk per video regardless of
// the comment cap, so a pathological continuation graph cannot spin forever.
const maxCommentRequests = 80

// collectComments drives the continuation walk over one transport.
func collectComments(ctx context.Context, post innertubePoster, videoID, sortMode string, max int) ([]engine.RawComment, error) {
	visitorData := generateVisitorData()

	initial, err := post(ctx, ytNextURL, map[string]any{
		"videoId": videoID,
		"context": ytWebContext(visitorData),
	}, visitorData)
	if err != nil {
		return nil, fmt.Errorf("/next initial: %w", err)
	}

	var queue []string
	if sortTokens := extractSortTokens(initial); len(sortTokens) > 0 {
		idx := 0
		if sortMode == "new" && len(sortTokens) > 1 {
			idx = 1
		}
		queue = append(queue, sortTokens[idx])
	} else {
		// No sort menu; fall back to whatever comment continuation exists.
		tokens := extractContinuationTokens(initial)
		if len(tokens) == 0 {
			// Comments disabled or none posted yet.
			return nil, fmt.Errorf("no comment continuation in /next response: %w", engine.ErrEmpty)
		}
		queue = append(queue, tokens[0])
	}

	seen := make(map[string]bool, len(queue))
	for _, t := range queue {
		seen[t] = true
	}

	now := time.Now().UTC()
	var comments []engine.RawComment
	requests := 0

	for len(queue) > 0 && len(comments) < max && requests < maxCommentRequests {
		token := queue[0]
		queue = queue[1:]
		requests++

		data, err := post(ctx, ytNextURL, map[string]any{
			"continuation": token,
			"context":      ytWebContext(visitorData),
		}, visitorData)
		if err != nil {
			if len(comments) > 0 {
				// Partial page failure after real progress: keep what we have.
				break
			}
			return nil, fmt.Errorf("/next continuation: %w", err)
		}

		var fw ytFrameworkUpdates
		if err := json.Unmarshal(data, &fw); err == nil {
			for _, m := range fw.FrameworkUpdates.EntityBatchUpdate.Mutations {
				if m.Payload.CommentEntityPayload == nil {
					continue
				}
				comments = append(comments, payloadToComment(m.Payload.CommentEntityPayload, now))
				if len(comments) >= max {
					break
				}
			}
		}

		for _, t := range extractContinuationTokens(data) {
			if !seen[t] {
				seen[t] = true
				queue = append(queue, t)
			}
		}
	}

	if len(comments) > max {
		comments = comments[:max]
	}
	return comments, nil
}

// CollectCommentsPrimary collects comments through the stealth browser
// client with the requested sort mode ("top" or "new").
func CollectCommentsPrimary(ctx context.Context, videoID, sortMode string, max int) ([]engine.RawComment, error) {
	engine.IncrCommentRequests()
	bc := engine.Cfg.BrowserClient
	if bc == nil {
		return nil, errors.New("browser client not configured")
	}
	post := func(ctx context.Context, endpoint string, payload any, vd string) ([]byte, error) {
		return postInnerTubeBrowser(ctx, bc, endpoint, payload, vd)
	}
	return collectComments(ctx, post, videoID, sortMode, max)
}

// CollectCommentsSecondary collects comments over plain HTTP. Sort mode is
// still requested but YouTube may ignore it for unauthenticated clients.
func CollectCommentsSecondary(ctx context.Context, videoID, sortMode string, max int) ([]engine.RawComment, error) {
	engine.IncrCommentRequests()
	return collectComments(ctx, postInnerTubeWEB, videoID, sortMode, max)
}
