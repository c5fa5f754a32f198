// Package parse converts raw collector output into the canonical
// newline-delimited record shapes: transcript segments, chunks, and
// comments. Everything here is pure; no I/O, no network.
package parse

import (
	"math"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// round3 rounds to 3 decimal places, the precision of all stored timings.
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// NormalizeTranscript converts raw timed entries into ordered segments
// under a total character budget. When an entry would overflow the budget
// its text is cut to the remaining characters and normalization stops;
// maxChars <= 0 disables the budget.
func NormalizeTranscript(raw engine.RawTranscript, maxChars int) []engine.Segment {
	segments := make([]engine.Segment, 0, len(raw.Entries))
	remaining := maxChars

	for _, e := range raw.Entries {
		text := e.Text
		if maxChars > 0 {
			if remaining <= 0 {
				break
			}
			if len(text) > remaining {
				text = text[:remaining]
			}
			remaining -= len(text)
		}
		if text == "" {
			continue
		}
		segments = append(segments, engine.Segment{
			VideoID:      raw.VideoID,
			SegmentIndex: len(segments),
			StartS:       round3(e.StartS),
			EndS:         round3(e.StartS + e.DurationS),
			Text:         text,
			Speaker:      "",
			Source:       raw.Source,
			Lang:         raw.Lang,
		})
	}
	return segments
}
