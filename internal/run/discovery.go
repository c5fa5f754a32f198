package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/engine/sources"
)

// Discovery resolves the configured input into the run's video list. Search
// and subscription modes persist it as discovery/discovered_videos.jsonl;
// the manifest is written before the failure policy is evaluated, so even
// an aborting run records what it did resolve. Single-video mode needs no
// manifest: the unit derives from configuration alone.

const videoManifestName = "discovered_videos.jsonl"

func (c *Coordinator) videoManifestPath() string {
	return filepath.Join(c.runDir, "discovery", videoManifestName)
}

func singleVideoUnit(videoURL string) ([]engine.VideoEntry, error) {
	id := sources.ExtractVideoID(videoURL)
	if id == "" {
		return nil, fmt.Errorf("cannot extract video ID from %q", videoURL)
	}
	return []engine.VideoEntry{{
		VideoID:  id,
		VideoURL: sources.WatchURL(id),
	}}, nil
}

// discover builds, dedups, caps, and persists the video list. Runs once per
// run; resume never re-enters here.
func (c *Coordinator) discover(ctx context.Context) ([]engine.VideoEntry, error) {
	cfg := engine.Cfg
	var (
		videos     []engine.VideoEntry
		sourceErrs []error
	)

	switch {
	case cfg.VideoURL != "":
		return singleVideoUnit(cfg.VideoURL)

	case len(cfg.SearchTerms) > 0:
		for _, term := range cfg.SearchTerms {
			found, err := c.collab.ResolveSearch(ctx, term, cfg.MaxVideosPerTerm)
			if err != nil {
				c.log.Error("search term failed", slog.String("term", term), slog.Any("err", err))
				sourceErrs = append(sourceErrs, fmt.Errorf("term %q: %w", term, err))
				continue
			}
			videos = append(videos, found...)
		}
		videos = dedupVideos(videos)

	case len(cfg.Subscriptions) > 0:
		for _, sub := range cfg.Subscriptions {
			found, err := c.collab.ResolveChannel(ctx, sub, cfg.MaxSubVideos)
			if err != nil {
				c.log.Error("subscription failed", slog.String("sub", sub), slog.Any("err", err))
				sourceErrs = append(sourceErrs, fmt.Errorf("subscription %q: %w", sub, err))
				continue
			}
			videos = append(videos, found...)
		}

	default:
		c.log.Warn("no input configured, nothing to collect")
		return nil, nil
	}

	if len(videos) > cfg.MaxTotalVideos && cfg.MaxTotalVideos > 0 {
		c.log.Warn("discovery truncated to total cap",
			slog.Int("found", len(videos)), slog.Int("cap", cfg.MaxTotalVideos))
		videos = videos[:cfg.MaxTotalVideos]
	}

	// Persist what resolved before deciding whether to abort.
	if err := writeVideoManifest(c.videoManifestPath(), videos); err != nil {
		return nil, err
	}
	c.log.Info("discovery complete",
		slog.Int("videos", len(videos)), slog.Int("source_errors", len(sourceErrs)))

	if len(sourceErrs) > 0 && cfg.OnVideoFailure == "abort" {
		return nil, fmt.Errorf("discovery: %d source(s) failed, aborting per policy: %v",
			len(sourceErrs), sourceErrs[0])
	}
	if len(videos) == 0 {
		c.log.Warn("discovery resolved no videos")
	}
	return videos, nil
}

// dedupVideos keeps the first occurrence of each video ID.
func dedupVideos(videos []engine.VideoEntry) []engine.VideoEntry {
	seen := make(map[string]bool, len(videos))
	out := videos[:0]
	for _, v := range videos {
		if v.VideoID == "" || seen[v.VideoID] {
			continue
		}
		seen[v.VideoID] = true
		out = append(out, v)
	}
	return out
}

func writeVideoManifest(path string, videos []engine.VideoEntry) error {
	var buf bytes.Buffer
	for _, v := range videos {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal video entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(path, buf.Bytes())
}

// loadUnits rebuilds a resumed run's unit list: from configuration in
// single-video mode, from the frozen discovery manifest otherwise.
func (c *Coordinator) loadUnits() ([]engine.VideoEntry, error) {
	cfg := engine.Cfg
	if cfg.VideoURL != "" {
		return singleVideoUnit(cfg.VideoURL)
	}
	if len(cfg.SearchTerms) == 0 && len(cfg.Subscriptions) == 0 {
		c.log.Warn("no input configured, nothing to resume")
		return nil, nil
	}

	path := c.videoManifestPath()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read video manifest: %w", err)
	}
	videos, err := readUnitRecords[engine.VideoEntry](path, "")
	if err != nil {
		return nil, fmt.Errorf("parse video manifest: %w", err)
	}
	return videos, nil
}
