// Package state implements the durable per-run checkpoint ledger.
//
// The ledger is a single JSON file mapping unit keys (video IDs) to
// per-stage status. Every mutation rewrites the whole file atomically, so
// a crash at any point leaves either the previous or the next consistent
// ledger on disk, never a torn one. Stage granularity is the resume
// contract: a stage marked DONE is never re-executed on resume.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Stage status values stored in the ledger.
const (
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

// ledger is the on-disk shape of the checkpoint file.
type ledger struct {
	Units map[string]map[string]string `json:"UNITS"`
}

// Store owns one checkpoint file. All methods are safe for concurrent use;
// a single mutex serializes the read-modify-write cycle.
type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewStore creates a Store for the checkpoint file at path.
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

// InitIfMissing creates an empty ledger when no checkpoint file exists.
// An existing file is left untouched, so calling this on resume is safe.
func (s *Store) InitIfMissing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat checkpoint: %w", err)
	}
	return s.write(ledger{Units: map[string]map[string]string{}})
}

// IsDone reports whether the stage is recorded as DONE for the unit.
// Any other status, including FAILED or absent, reports false.
func (s *Store) IsDone(unit, stage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.load()
	if err != nil {
		return false, err
	}
	return led.Units[unit][stage] == StatusDone, nil
}

// Mark records the stage as DONE for the unit.
func (s *Store) Mark(unit, stage string) error {
	return s.MarkStatus(unit, stage, StatusDone)
}

// MarkFailed records the stage as FAILED for the unit. A later successful
// attempt overwrites it with DONE.
func (s *Store) MarkFailed(unit, stage string) error {
	return s.MarkStatus(unit, stage, StatusFailed)
}

// MarkStatus records an arbitrary status for a unit's stage. The whole
// ledger is re-read and rewritten under the lock.
func (s *Store) MarkStatus(unit, stage, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.load()
	if err != nil {
		return err
	}
	if led.Units == nil {
		led.Units = map[string]map[string]string{}
	}
	if led.Units[unit] == nil {
		led.Units[unit] = map[string]string{}
	}
	led.Units[unit][stage] = status
	return s.write(led)
}

// Snapshot returns a deep copy of the current ledger contents.
func (s *Store) Snapshot() (map[string]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(led.Units))
	for unit, stages := range led.Units {
		cp := make(map[string]string, len(stages))
		for k, v := range stages {
			cp[k] = v
		}
		out[unit] = cp
	}
	return out, nil
}

// load reads and parses the checkpoint file. A corrupt file is preserved
// as a .corrupt sibling and replaced with an empty ledger; collected data
// on disk is untouched, only resume knowledge is lost.
func (s *Store) load() (ledger, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ledger{Units: map[string]map[string]string{}}, nil
	}
	if err != nil {
		return ledger{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var led ledger
	if err := json.Unmarshal(data, &led); err != nil {
		backup := s.path + ".corrupt"
		if werr := os.WriteFile(backup, data, 0o644); werr != nil {
			return ledger{}, fmt.Errorf("checkpoint corrupt and backup failed: %w", werr)
		}
		s.log.Warn("checkpoint file corrupt, reinitializing",
			slog.String("path", s.path), slog.String("backup", backup), slog.Any("err", err))
		led = ledger{Units: map[string]map[string]string{}}
		if werr := s.write(led); werr != nil {
			return ledger{}, werr
		}
		return led, nil
	}
	if led.Units == nil {
		led.Units = map[string]map[string]string{}
	}
	return led, nil
}

// write persists the ledger atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) write(led ledger) error {
	data, err := json.MarshalIndent(led, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
