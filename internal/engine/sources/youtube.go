package sources

import "regexp"

// YouTube implementation is split across five files by responsibility:
//   youtube_innertube.go  — Innertube API types, constants, and low-level HTTP primitives
//   youtube_search.go     — video search (Data API v3 + ytInitialData scraping)
//   youtube_channel.go    — channel /videos tab resolution
//   youtube_transcript.go — timed transcript fetching (watch page + ANDROID player fallback)
//   youtube_comments.go   — comment collection via Innertube /next continuations

var (
	bareVideoIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	videoIDRE     = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|v/|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
)

// ExtractVideoID pulls the 11-char video ID from any YouTube URL format.
// A bare 11-char ID is accepted as-is. Returns "" when nothing matches.
func ExtractVideoID(rawURL string) string {
	if bareVideoIDRE.MatchString(rawURL) {
		return rawURL
	}
	m := videoIDRE.FindStringSubmatch(rawURL)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}

// WatchURL builds the canonical watch page URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
