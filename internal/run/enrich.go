package run

import (
	"context"
	"log/slog"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
	"github.com/anatolykoptev/go_ytminer/internal/enrich"
)

// Enrichment runs after collection, stage by stage per video in the fixed
// order the registry resolved. Failures are always stage-isolated: a
// broken embeddings endpoint must not cost the topics that would have
// worked, regardless of the collection failure policy.

func enrichStageName(stage enrich.Stage) string {
	return "enrich_" + stage.Name()
}

// enrichVideo runs every registered stage for one video. Errors are
// recorded and the next stage still runs; nothing propagates up.
func (c *Coordinator) enrichVideo(ctx context.Context, v engine.VideoEntry) {
	if len(c.collab.Stages) == 0 {
		return
	}
	log := c.log.With(slog.String("video_id", v.VideoID))

	assets, err := c.loadAssets(v.VideoID)
	if err != nil {
		log.Error("cannot load assets for enrichment", slog.Any("err", err))
		c.recordFailure("enrich_load", v.VideoID, err)
		return
	}
	if len(assets.Chunks) == 0 && len(assets.Comments) == 0 {
		log.Info("nothing to enrich")
		return
	}

	for _, stage := range c.collab.Stages {
		name := enrichStageName(stage)
		err := c.runStage(v.VideoID, name, log, func() error {
			out, err := stage.Run(ctx, assets)
			if err != nil {
				return err
			}
			if out == nil || len(out.Records) == 0 {
				return nil
			}
			path := c.unitPath(v.VideoID, dirEnrich, out.File)
			if err := c.writeUnitRecords(path, v.VideoID, out.Records); err != nil {
				return err
			}
			c.result.EnrichmentRecords += len(out.Records)
			if c.arch != nil {
				if aerr := c.arch.StoreRecords(ctx, v.VideoID, stage.Name(), out.Records); aerr != nil {
					log.Warn("archive store failed", slog.String("stage", name), slog.Any("err", aerr))
				}
			}
			return nil
		})
		if err != nil {
			log.Error("enrichment stage failed", slog.String("stage", name), slog.Any("err", err))
		}
	}

	if c.arch != nil {
		if err := c.arch.StoreComments(ctx, v.VideoID, assets.Comments); err != nil {
			log.Warn("archive comments failed", slog.Any("err", err))
		}
	}
}

// loadAssets reads the video's normalized chunks and comments from disk.
// Missing files mean that sub-pipeline produced nothing; that is not an
// error here.
func (c *Coordinator) loadAssets(videoID string) (enrich.Assets, error) {
	chunks, err := readUnitRecords[engine.Chunk](c.unitPath(videoID, dirTranscripts, fileChunks), videoID)
	if err != nil {
		return enrich.Assets{}, err
	}
	comments, err := readUnitRecords[engine.Comment](c.unitPath(videoID, dirComments, fileComments), videoID)
	if err != nil {
		return enrich.Assets{}, err
	}
	return enrich.Assets{VideoID: videoID, Chunks: chunks, Comments: comments}, nil
}
