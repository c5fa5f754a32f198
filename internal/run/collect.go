package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/engine/sources"
	"github.com/anatolykoptev/go_ytminer/internal/enrich"
	"github.com/anatolykoptev/go_ytminer/internal/parse"
)

// Collaborators are the injectable collection and enrichment backends.
// Production wiring comes from DefaultCollaborators; tests swap in fakes.
type Collaborators struct {
	ResolveSearch     func(ctx context.Context, term string, limit int) ([]engine.VideoEntry, error)
	ResolveChannel    func(ctx context.Context, sub string, limit int) ([]engine.VideoEntry, error)
	CollectTranscript func(ctx context.Context, videoID string) (engine.RawTranscript, error)
	CollectComments   func(ctx context.Context, videoID, sortMode string, max int) ([]engine.RawComment, error)
	Stages            []enrich.Stage
}

// DefaultCollaborators wires the real YouTube collectors and the resolved
// enrichment stages. Comment collection chains the stealth browser
// collector into the plain HTTP one: a failed or empty primary falls
// through to the secondary.
func DefaultCollaborators(log *slog.Logger) Collaborators {
	return Collaborators{
		ResolveSearch:     sources.ResolveSearchVideos,
		ResolveChannel:    sources.ResolveChannelVideos,
		CollectTranscript: sources.CollectTranscript,
		CollectComments: func(ctx context.Context, videoID, sortMode string, max int) ([]engine.RawComment, error) {
			if engine.Cfg.BrowserClient != nil {
				comments, err := sources.CollectCommentsPrimary(ctx, videoID, sortMode, max)
				if err == nil && len(comments) > 0 {
					return comments, nil
				}
				if err != nil && !errors.Is(err, engine.ErrEmpty) {
					log.Warn("primary comment collector failed, falling back",
						slog.String("video_id", videoID), slog.String("mode", sortMode), slog.Any("err", err))
				}
			}
			return sources.CollectCommentsSecondary(ctx, videoID, sortMode, max)
		},
		Stages: enrich.BuildStages(log),
	}
}

// Per-unit output file names.
const (
	fileTranscriptRaw = "transcript_raw.json"
	fileSegments      = "transcript_segments.jsonl"
	fileChunks        = "transcript_chunks.jsonl"
	fileComments      = "comments.jsonl"
)

func commentsModeFile(mode string) string {
	return "comments_" + mode + ".jsonl"
}

func commentsCollectStage(mode string) string {
	return "comments_collect_" + mode
}

// processVideo runs the collection and normalization pipeline for one
// video. A collection failure follows the configured policy: "skip"
// records it and moves on, "abort" stops the run. Stages already marked
// DONE in the checkpoint are not repeated.
func (c *Coordinator) processVideo(ctx context.Context, v engine.VideoEntry) error {
	log := c.log.With(slog.String("video_id", v.VideoID))
	log.Info("processing video", slog.String("title", v.Title))

	if engine.Cfg.TranscriptsEnable {
		if err := c.transcriptPipeline(ctx, v, log); err != nil {
			if engine.Cfg.OnVideoFailure == "abort" {
				return fmt.Errorf("video %s: %w", v.VideoID, err)
			}
			log.Warn("transcript pipeline failed, skipping video's transcripts", slog.Any("err", err))
		}
	}

	if err := c.commentsPipeline(ctx, v, log); err != nil {
		if engine.Cfg.OnVideoFailure == "abort" {
			return fmt.Errorf("video %s: %w", v.VideoID, err)
		}
		log.Warn("comments pipeline failed, skipping video's comments", slog.Any("err", err))
	}

	return nil
}

// runStage executes fn under a checkpoint gate: skip when DONE, mark DONE
// on success, mark FAILED and write a failure record on error. An
// ErrEmpty result counts as success with nothing collected.
func (c *Coordinator) runStage(videoID, stage string, log *slog.Logger, fn func() error) error {
	done, err := c.ckpt.IsDone(videoID, stage)
	if err != nil {
		return err
	}
	if done {
		log.Debug("stage already done, skipping", slog.String("stage", stage))
		return nil
	}

	if err := fn(); err != nil && !errors.Is(err, engine.ErrEmpty) {
		engine.IncrStagesFailed()
		if merr := c.ckpt.MarkFailed(videoID, stage); merr != nil {
			return merr
		}
		c.recordFailure(stage, videoID, err)
		return fmt.Errorf("%s: %w", stage, err)
	}
	engine.IncrStagesCompleted()
	return c.ckpt.Mark(videoID, stage)
}

// transcriptPipeline: collect raw, normalize to segments, chunk.
func (c *Coordinator) transcriptPipeline(ctx context.Context, v engine.VideoEntry, log *slog.Logger) error {
	rawPath := c.unitPath(v.VideoID, dirTranscripts, fileTranscriptRaw)

	if err := c.runStage(v.VideoID, StageTranscriptCollect, log, func() error {
		raw, err := c.collab.CollectTranscript(ctx, v.VideoID)
		if errors.Is(err, engine.ErrEmpty) {
			log.Info("no transcript available")
			raw = engine.RawTranscript{VideoID: v.VideoID}
			if werr := writeJSONFile(rawPath, raw); werr != nil {
				return werr
			}
			return err // ErrEmpty still checkpoints as DONE
		}
		if err != nil {
			return err
		}
		c.result.TranscriptsCollected++
		return writeJSONFile(rawPath, raw)
	}); err != nil {
		return err
	}

	if err := c.runStage(v.VideoID, StageTranscriptNormalize, log, func() error {
		raw, err := readJSONFile[engine.RawTranscript](rawPath)
		if err != nil {
			return err
		}
		segments := parse.NormalizeTranscript(raw, engine.Cfg.MaxTranscriptChars)
		c.result.SegmentsWritten += len(segments)
		recs := make([]any, len(segments))
		for i, s := range segments {
			recs[i] = s
		}
		return c.writeUnitRecords(c.unitPath(v.VideoID, dirTranscripts, fileSegments), v.VideoID, recs)
	}); err != nil {
		return err
	}

	return c.runStage(v.VideoID, StageTranscriptChunk, log, func() error {
		segments, err := readUnitRecords[engine.Segment](c.unitPath(v.VideoID, dirTranscripts, fileSegments), v.VideoID)
		if err != nil {
			return err
		}
		chunks := parse.ChunkSegments(segments, engine.Cfg.ChunkSeconds, engine.Cfg.ChunkOverlapSeconds, log)
		c.result.ChunksWritten += len(chunks)
		recs := make([]any, len(chunks))
		for i, ch := range chunks {
			recs[i] = ch
		}
		return c.writeUnitRecords(c.unitPath(v.VideoID, dirTranscripts, fileChunks), v.VideoID, recs)
	})
}

// commentsPipeline: collect each sort mode, then merge and dedup. A sort
// mode whose collectors all fail or come back empty is still marked done:
// the absence of comments for a mode is not a stage failure.
func (c *Coordinator) commentsPipeline(ctx context.Context, v engine.VideoEntry, log *slog.Logger) error {
	cfg := engine.Cfg

	if done, err := c.ckpt.IsDone(v.VideoID, StageCommentsNormalize); err != nil {
		return err
	} else if done {
		log.Debug("comments already normalized, skipping")
		return nil
	}

	for _, mode := range cfg.CollectSortModes {
		stage := commentsCollectStage(mode)
		err := c.runStage(v.VideoID, stage, log, func() error {
			raw, err := c.collab.CollectComments(ctx, v.VideoID, mode, cfg.MaxCommentsPerVideo)
			if err != nil && !errors.Is(err, engine.ErrEmpty) {
				log.Warn("comment collection failed for mode, treating as empty",
					slog.String("mode", mode), slog.Any("err", err))
				raw = nil
			}
			comments := parse.NormalizeComments(v.VideoID, mode, raw)
			c.result.CommentsCollected += len(comments)
			recs := make([]any, len(comments))
			for i, cm := range comments {
				recs[i] = cm
			}
			return c.writeUnitRecords(c.unitPath(v.VideoID, dirComments, commentsModeFile(mode)), v.VideoID, recs)
		})
		if err != nil {
			return err
		}
	}

	return c.runStage(v.VideoID, StageCommentsNormalize, log, func() error {
		batches := make(map[string][]engine.Comment, len(cfg.CollectSortModes))
		for _, mode := range cfg.CollectSortModes {
			comments, err := readUnitRecords[engine.Comment](c.unitPath(v.VideoID, dirComments, commentsModeFile(mode)), v.VideoID)
			if err != nil {
				return err
			}
			batches[mode] = comments
		}
		merged := parse.DedupComments(batches, cfg.CollectSortModes)
		recs := make([]any, len(merged))
		for i, cm := range merged {
			recs[i] = cm
		}
		return c.writeUnitRecords(c.unitPath(v.VideoID, dirComments, fileComments), v.VideoID, recs)
	})
}
