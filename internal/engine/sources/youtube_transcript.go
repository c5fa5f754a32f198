package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// YouTube transcript fetching with segment timing.
// Primary:  scrape watch page ytInitialPlayerResponse → caption timedtext XML
// Fallback: ANDROID Innertube /player → captionTracks → timedtext XML
// Both paths end at the timedtext endpoint, which carries start/dur per line.

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the configured
// language preferences. Skips PoToken tracks. Manual tracks win over
// auto-generated unless manual preference is disabled; auto-generated
// tracks are only considered when allowed.
func pickBestTrack(tracks []captionTrack, langs []string, preferManual, allowAuto bool) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if needsPoToken(t.BaseURL) {
			continue
		}
		if t.Kind == "asr" && !allowAuto {
			continue
		}
		usable = append(usable, t)
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	if preferManual {
		// 1. Manual track in preferred language
		for _, lang := range langs {
			for _, t := range usable {
				if t.LanguageCode == lang && t.Kind != "asr" {
					return t, true
				}
			}
		}
	}
	// 2. Any track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	// 3. Any English track
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// fetchTimedText fetches and parses a YouTube timedtext XML caption URL
// into timed entries.
func fetchTimedText(ctx context.Context, baseURL string) ([]engine.RawTranscriptEntry, error) {
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}

	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	entries := make([]engine.RawTranscriptEntry, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := engine.CleanHTML(line.Text)
		if text == "" {
			continue
		}
		entries = append(entries, engine.RawTranscriptEntry{
			Text:      text,
			StartS:    line.Start,
			DurationS: line.Dur,
		})
	}
	if len(entries) == 0 {
		return nil, errors.New("timedtext returned no usable lines")
	}
	return entries, nil
}

// trackSource maps a caption track kind to the transcript source label.
func trackSource(t captionTrack) string {
	if t.Kind == "asr" {
		return "auto"
	}
	return "manual"
}

// transcriptFromTracks picks a track and fetches its timed entries.
func transcriptFromTracks(ctx context.Context, videoID string, tracks []captionTrack) (engine.RawTranscript, error) {
	track, ok := pickBestTrack(tracks, engine.Cfg.TranscriptLangs,
		engine.Cfg.TranscriptsPreferManual, engine.Cfg.TranscriptsAllowAuto)
	if !ok {
		return engine.RawTranscript{}, fmt.Errorf("no usable caption track: %w", engine.ErrEmpty)
	}
	entries, err := fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return engine.RawTranscript{}, err
	}
	return engine.RawTranscript{
		VideoID: videoID,
		Source:  trackSource(track),
		Lang:    track.LanguageCode,
		Entries: entries,
	}, nil
}

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// transcriptViaPageScrape scrapes the YouTube watch page HTML and extracts
// the caption track XML URL from ytInitialPlayerResponse. Works from any IP.
func transcriptViaPageScrape(ctx context.Context, videoID string) (engine.RawTranscript, error) {
	body, err := fetchPage(ctx, WatchURL(videoID))
	if err != nil {
		return engine.RawTranscript{}, fmt.Errorf("watch page: %w", err)
	}

	idx := strings.Index(string(body), ytInitialPlayerResponseMarker)
	if idx < 0 {
		return engine.RawTranscript{}, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return engine.RawTranscript{}, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return engine.RawTranscript{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if playerResp.Captions == nil {
		return engine.RawTranscript{}, fmt.Errorf("no captions in ytInitialPlayerResponse: %w", engine.ErrEmpty)
	}
	tracks := playerResp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return engine.RawTranscript{}, fmt.Errorf("no caption tracks in watch page: %w", engine.ErrEmpty)
	}
	return transcriptFromTracks(ctx, videoID, tracks)
}

// transcriptViaPlayer uses the ANDROID Innertube /player endpoint.
// Works from non-blocked (residential/cloud) IP addresses.
func transcriptViaPlayer(ctx context.Context, videoID string) (engine.RawTranscript, error) {
	if err := engine.WaitAPI(ctx); err != nil {
		return engine.RawTranscript{}, err
	}
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return engine.RawTranscript{}, err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ytInnertubeURL+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return engine.RawTranscript{}, fmt.Errorf("android innertube: %w", err)
	}
	defer resp.Body.Close()

	var playerResp innertubePlayerResp
	if err := json.NewDecoder(resp.Body).Decode(&playerResp); err != nil {
		return engine.RawTranscript{}, fmt.Errorf("decode player: %w", err)
	}
	if playerResp.Captions == nil {
		reason := ""
		if playerResp.PlayabilityStatus != nil {
			reason = playerResp.PlayabilityStatus.Reason
		}
		if reason != "" {
			return engine.RawTranscript{}, fmt.Errorf("captions unavailable: %s", reason)
		}
		return engine.RawTranscript{}, fmt.Errorf("no captions in player response: %w", engine.ErrEmpty)
	}
	tracks := playerResp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return engine.RawTranscript{}, fmt.Errorf("no caption tracks: %w", engine.ErrEmpty)
	}
	return transcriptFromTracks(ctx, videoID, tracks)
}

// CollectTranscript fetches the timed transcript for a video.
// A video with captions disabled is not an error at this level; callers
// distinguish empty from failed by the returned error.
func CollectTranscript(ctx context.Context, videoID string) (engine.RawTranscript, error) {
	engine.IncrTranscriptRequests()

	key := engine.CacheKey("transcript", videoID)
	if cached, ok := engine.CacheLoadJSON[engine.RawTranscript](ctx, key); ok {
		return cached, nil
	}

	tr, err := transcriptViaPageScrape(ctx, videoID)
	if err != nil {
		slog.Warn("youtube: page scrape failed, trying player",
			slog.String("id", videoID), slog.Any("err", err))
		tr, err = transcriptViaPlayer(ctx, videoID)
	}
	if err != nil {
		return engine.RawTranscript{}, err
	}

	engine.CacheStoreJSON(ctx, key, tr)
	return tr, nil
}
