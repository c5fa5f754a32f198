package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Channel resolution — subscription inputs become recent uploads from the
// channel's /videos tab, newest first as rendered by YouTube.

// channelVideosURL normalizes a subscription input to the channel /videos tab URL.
// Accepts @handle, bare handle, UC... channel ID, or a full channel URL.
func channelVideosURL(sub string) (string, error) {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", fmt.Errorf("empty subscription")
	}
	if strings.HasPrefix(sub, "http://") || strings.HasPrefix(sub, "https://") {
		return strings.TrimSuffix(sub, "/") + "/videos", nil
	}
	if strings.HasPrefix(sub, "UC") && len(sub) == 24 {
		return "https://www.youtube.com/channel/" + sub + "/videos", nil
	}
	if !strings.HasPrefix(sub, "@") {
		sub = "@" + sub
	}
	return "https://www.youtube.com/" + sub + "/videos", nil
}

// ResolveChannelVideos resolves a subscription to its most recent uploads.
// Scrapes ytInitialData from the channel /videos tab. Results are cached.
func ResolveChannelVideos(ctx context.Context, sub string, limit int) ([]engine.VideoEntry, error) {
	engine.IncrChannelRequests()
	if limit <= 0 {
		limit = 5
	}

	pageURL, err := channelVideosURL(sub)
	if err != nil {
		return nil, err
	}

	key := engine.CacheKey("channel", pageURL, fmt.Sprint(limit))
	if cached, ok := engine.CacheLoadJSON[[]engine.VideoEntry](ctx, key); ok {
		return cached, nil
	}

	body, err := fetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("channel page: %w", err)
	}

	idx := strings.Index(string(body), ytInitialDataMarker)
	if idx < 0 {
		return nil, fmt.Errorf("ytInitialData not found in channel page %s", pageURL)
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, fmt.Errorf("failed to extract ytInitialData JSON from %s", pageURL)
	}

	videos := extractChannelVideos(jsonData, limit)
	if len(videos) == 0 {
		return nil, fmt.Errorf("no videos found on %s", pageURL)
	}

	if name := channelTitle(body); name != "" {
		slog.Debug("youtube: resolved channel",
			slog.String("channel", name), slog.Int("videos", len(videos)))
	}

	engine.CacheStoreJSON(ctx, key, videos)
	return videos, nil
}

// extractChannelVideos walks ytInitialData for the channel uploads grid.
// Modern channel pages render richItemRenderer → videoRenderer; older
// layouts use gridVideoRenderer. Both carry videoId and title runs, so
// the generic videoRenderer walk covers the former and a second pass
// over gridVideoRenderer covers the latter.
func extractChannelVideos(data []byte, limit int) []engine.VideoEntry {
	videos := extractVideosFromInitialData(data, limit)
	if len(videos) > 0 {
		return videos
	}
	return extractRenderers(data, "gridVideoRenderer", limit)
}

// channelTitle extracts the channel display name from og:title meta, if present.
func channelTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	return title
}
