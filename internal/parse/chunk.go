package parse

import (
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// ChunkSegments slices ordered segments into fixed-width, overlapping time
// windows. Window start advances by windowS-overlapS each step; a segment
// belongs to every window it overlaps in time. Windows with no segment
// text are skipped and do not consume a chunk index.
//
// An overlap >= window is degenerate (the window would never advance), so
// it falls back to non-overlapping windows with a warning.
func ChunkSegments(segments []engine.Segment, windowS, overlapS float64, log *slog.Logger) []engine.Chunk {
	if len(segments) == 0 || windowS <= 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	if overlapS >= windowS {
		log.Warn("chunk overlap >= window, using non-overlapping windows",
			slog.Float64("window_s", windowS), slog.Float64("overlap_s", overlapS))
		overlapS = 0
	}
	step := windowS - overlapS

	maxEnd := 0.0
	for _, seg := range segments {
		if seg.EndS > maxEnd {
			maxEnd = seg.EndS
		}
	}

	var chunks []engine.Chunk
	for start := 0.0; start < maxEnd; start += step {
		end := start + windowS

		var texts []string
		var indices []int
		for _, seg := range segments {
			if seg.StartS < end && seg.EndS > start {
				texts = append(texts, seg.Text)
				indices = append(indices, seg.SegmentIndex)
			}
		}
		if len(texts) == 0 {
			continue
		}

		overlap := overlapS
		if len(chunks) == 0 {
			overlap = 0
		}
		endS := end
		if endS > maxEnd {
			endS = maxEnd
		}
		chunks = append(chunks, engine.Chunk{
			VideoID:        segments[0].VideoID,
			ChunkIndex:     len(chunks),
			StartS:         round3(start),
			EndS:           round3(endS),
			Text:           strings.Join(texts, " "),
			SegmentIndices: indices,
			OverlapS:       round3(overlap),
		})
	}
	return chunks
}
