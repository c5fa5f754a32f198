package run

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Result is the run summary written to result.json at the end of a run.
type Result struct {
	RunID      string `json:"run_id"`
	Resumed    bool   `json:"resumed"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`

	OutputFiles []string `json:"output_files,omitempty"`

	VideosTotal          int `json:"videos_total"`
	TranscriptsCollected int `json:"transcripts_collected"`
	SegmentsWritten      int `json:"segments_written"`
	ChunksWritten        int `json:"chunks_written"`
	CommentsCollected    int `json:"comments_collected"`
	EnrichmentRecords    int `json:"enrichment_records"`

	Failures []engine.FailureRecord `json:"failures,omitempty"`
}

// errorChain flattens the wrap chain, outermost first.
func errorChain(err error) []string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	return chain
}

func newResult(runID string, resumed bool) *Result {
	return &Result{
		RunID:     runID,
		Resumed:   resumed,
		Status:    StatusNew,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// recordFailure appends the failure to the run result and writes the
// write-once failure file. An existing file from a previous attempt is
// left alone; the first recorded failure for a stage+video is the one
// worth keeping.
func (c *Coordinator) recordFailure(stage, videoID string, err error) {
	rec := engine.FailureRecord{
		Stage:        stage,
		VideoID:      videoID,
		ErrorType:    fmt.Sprintf("%T", err),
		ErrorMessage: err.Error(),
		Traceback:    errorChain(err),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	c.result.Failures = append(c.result.Failures, rec)

	name := fmt.Sprintf("%s_%s.json", engine.SanitizeKey(stage), engine.SanitizeKey(videoID))
	path := c.unitPath(videoID, dirFailures, name)
	if _, serr := os.Stat(path); serr == nil {
		return
	}
	if werr := writeJSONFile(path, rec); werr != nil {
		c.log.Warn("failure record write failed", "path", path, "err", werr)
	}
}
