// Package archive mirrors normalized and enriched records into Postgres.
// It is strictly optional: the file tree under the run directory stays
// the source of truth, and any archive error downgrades to a warning at
// the call site.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Archive is a connected Postgres mirror.
type Archive struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS yt_comments (
	video_id     TEXT NOT NULL,
	comment_id   TEXT NOT NULL,
	parent_id    TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	like_count   INTEGER NOT NULL DEFAULT 0,
	reply_count  INTEGER NOT NULL DEFAULT 0,
	published_at TEXT NOT NULL DEFAULT '',
	sort_mode    TEXT NOT NULL DEFAULT '',
	thread_depth INTEGER NOT NULL DEFAULT 0,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (video_id, comment_id)
);
CREATE TABLE IF NOT EXISTS yt_enrichment (
	video_id    TEXT NOT NULL,
	stage       TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	record      JSONB NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (video_id, stage, seq)
);
`

// Connect opens a pool against databaseURL and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	log.Info("archive connected")
	return &Archive{pool: pool, log: log}, nil
}

// Close releases the pool.
func (a *Archive) Close() {
	a.pool.Close()
}

// StoreComments upserts a video's merged comments. Comments without an ID
// are skipped; they cannot be addressed by the primary key.
func (a *Archive) StoreComments(ctx context.Context, videoID string, comments []engine.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range comments {
		if c.CommentID == "" {
			continue
		}
		batch.Queue(`INSERT INTO yt_comments
			(video_id, comment_id, parent_id, author, body, like_count, reply_count, published_at, sort_mode, thread_depth)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (video_id, comment_id) DO UPDATE SET
				like_count = excluded.like_count,
				reply_count = excluded.reply_count,
				archived_at = now()`,
			videoID, c.CommentID, c.ParentID, c.Author, c.Text,
			c.LikeCount, c.ReplyCount, c.PublishedAt, c.SortMode, c.ThreadDepth)
	}
	if batch.Len() == 0 {
		return nil
	}
	return a.pool.SendBatch(ctx, batch).Close()
}

// StoreRecords replaces a video's rows for one enrichment stage with the
// given records, stored as JSONB in sequence order.
func (a *Archive) StoreRecords(ctx context.Context, videoID, stage string, records []any) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM yt_enrichment WHERE video_id = $1 AND stage = $2`, videoID, stage); err != nil {
		return err
	}
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("archive: marshal record: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO yt_enrichment (video_id, stage, seq, record) VALUES ($1, $2, $3, $4)`,
			videoID, stage, i, data); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
