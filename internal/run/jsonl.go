package run

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Newline-delimited JSON storage. Writes are unit-scoped and atomic: when
// a stage re-runs after a crash, its unit's previous lines are replaced
// rather than appended, so the files never accumulate duplicates.

// videoIDProbe reads just the VIDEO_ID field of a record line.
type videoIDProbe struct {
	VideoID string `json:"VIDEO_ID"`
}

// readLines returns the raw JSONL lines of path, or nil when it is absent.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}

// writeFileAtomic writes data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// replaceUnitRecords rewrites path keeping other units' lines and replacing
// the given unit's lines with records. Works for fresh files too.
func replaceUnitRecords(path, videoID string, records []any) error {
	existing, err := readLines(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, line := range existing {
		var probe videoIDProbe
		if err := json.Unmarshal(line, &probe); err == nil && probe.VideoID == videoID {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(path, buf.Bytes())
}

// readUnitRecords decodes the lines of path belonging to videoID.
// An empty videoID decodes every line.
func readUnitRecords[T any](path, videoID string) ([]T, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, line := range lines {
		if videoID != "" {
			var probe videoIDProbe
			if err := json.Unmarshal(line, &probe); err != nil || probe.VideoID != videoID {
				continue
			}
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode line in %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// readJSONFile decodes one JSON document from path.
func readJSONFile[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// writeJSONFile marshals v with indentation and writes it atomically.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}
