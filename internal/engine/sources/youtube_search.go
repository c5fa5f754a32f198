package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// YouTube search — Data API v3 with ytInitialData scraping fallback.

const (
	ytDataAPIBase       = "https://www.googleapis.com/youtube/v3"
	ytInitialDataMarker = "var ytInitialData = "
	ytSearchFilter      = "EgIQAQ%3D%3D" // videos-only filter param
)

// --- YouTube Data API v3 types ---

type ytDataSearchResp struct {
	Items []ytDataItem `json:"items"`
}

type ytDataItem struct {
	ID      ytDataItemID      `json:"id"`
	Snippet ytDataItemSnippet `json:"snippet"`
}

type ytDataItemID struct {
	VideoID string `json:"videoId"`
}

type ytDataItemSnippet struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
}

// --- ytInitialData scraping types ---

type ytVideoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct{ Text string } `json:"runs"`
	} `json:"title"`
}

// ResolveSearchVideos resolves a search term to a list of videos.
// Uses YouTube Data API v3 when a key is configured; otherwise scrapes
// ytInitialData from the results page. Results are cached by term+limit.
func ResolveSearchVideos(ctx context.Context, term string, limit int) ([]engine.VideoEntry, error) {
	engine.IncrSearchRequests()
	if limit <= 0 || limit > 10 {
		limit = 5
	}

	key := engine.CacheKey("search", term, fmt.Sprint(limit))
	if cached, ok := engine.CacheLoadJSON[[]engine.VideoEntry](ctx, key); ok {
		return cached, nil
	}

	var (
		videos []engine.VideoEntry
		err    error
	)
	if engine.Cfg.YouTubeAPIKey != "" {
		videos, err = searchDataAPI(ctx, term, limit)
		if err != nil {
			slog.Warn("youtube: data API search failed, scraping instead",
				slog.String("term", term), slog.Any("err", err))
			videos, err = searchInitialData(ctx, term, limit)
		}
	} else {
		videos, err = searchInitialData(ctx, term, limit)
	}
	if err != nil {
		return nil, err
	}

	for i := range videos {
		videos[i].SearchTerm = term
	}
	engine.CacheStoreJSON(ctx, key, videos)
	return videos, nil
}

// searchDataAPI searches via YouTube Data API v3.
// Automatically falls back to the secondary key on quota errors.
func searchDataAPI(ctx context.Context, term string, limit int) ([]engine.VideoEntry, error) {
	keys := []string{engine.Cfg.YouTubeAPIKey}
	if engine.Cfg.YouTubeAPIKeyFallback != "" {
		keys = append(keys, engine.Cfg.YouTubeAPIKeyFallback)
	}
	var lastErr error
	for _, key := range keys {
		videos, err := doDataSearch(ctx, term, limit, key)
		if err == nil {
			return videos, nil
		}
		lastErr = err
		slog.Debug("youtube data API key failed, trying fallback", slog.Any("err", err))
	}
	return nil, lastErr
}

func doDataSearch(ctx context.Context, term string, limit int, apiKey string) ([]engine.VideoEntry, error) {
	if err := engine.WaitAPI(ctx); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", term)
	params.Set("type", "video")
	params.Set("maxResults", fmt.Sprintf("%d", limit))
	params.Set("key", apiKey)

	apiURL := ytDataAPIBase + "/search?" + params.Encode()
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube data API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("youtube data API %d: %s", resp.StatusCode, string(body))
	}

	var result ytDataSearchResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode youtube data API: %w", err)
	}

	videos := make([]engine.VideoEntry, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, engine.VideoEntry{
			VideoID:  item.ID.VideoID,
			VideoURL: WatchURL(item.ID.VideoID),
			Title:    item.Snippet.Title,
		})
	}
	return videos, nil
}

// searchInitialData scrapes YouTube search results by parsing ytInitialData.
func searchInitialData(ctx context.Context, term string, limit int) ([]engine.VideoEntry, error) {
	searchURL := "https://www.youtube.com/results?search_query=" + url.QueryEscape(term) + "&sp=" + ytSearchFilter

	body, err := fetchPage(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("youtube search page: %w", err)
	}

	idx := strings.Index(string(body), ytInitialDataMarker)
	if idx < 0 {
		return nil, fmt.Errorf("ytInitialData not found in YouTube search response")
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, fmt.Errorf("failed to extract ytInitialData JSON")
	}
	return extractVideosFromInitialData(jsonData, limit), nil
}

// fetchPage GETs a YouTube HTML page with browser-like headers.
func fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := engine.WaitAPI(ctx); err != nil {
		return nil, err
	}
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
}

// extractVideosFromInitialData recursively walks ytInitialData JSON for videoRenderer entries.
func extractVideosFromInitialData(data []byte, limit int) []engine.VideoEntry {
	return extractRenderers(data, "videoRenderer", limit)
}

// extractRenderers recursively walks ytInitialData JSON for entries under
// the given renderer key (videoRenderer, gridVideoRenderer).
func extractRenderers(data []byte, rendererKey string, limit int) []engine.VideoEntry {
	var results []engine.VideoEntry
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(results) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj[rendererKey]; ok {
				var vr ytVideoRenderer
				if err := json.Unmarshal(raw, &vr); err == nil && vr.VideoID != "" {
					title := ""
					if len(vr.Title.Runs) > 0 {
						title = vr.Title.Runs[0].Text
					}
					results = append(results, engine.VideoEntry{
						VideoID:  vr.VideoID,
						VideoURL: WatchURL(vr.VideoID),
						Title:    title,
					})
					return
				}
			}
			for _, child := range obj {
				if len(results) >= limit {
					return
				}
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				if len(results) >= limit {
					return
				}
				walk(item)
			}
		}
	}
	walk(data)
	return results
}
