// Package storage keeps local state: saved job configurations and the
// login session in SQLite, and JSONL snapshots of fetched results for
// offline processing.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// maxSnapshotLine bounds one JSONL record; results carry raw HTML
const maxSnapshotLine = 32 << 20

// Snapshot is a JSONL file of scraped results, one per line
type Snapshot struct {
	path string
	mu   sync.Mutex
}

// NewSnapshot creates a snapshot at path, creating its directory
func NewSnapshot(path string) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Snapshot{path: path}, nil
}

// Path returns the snapshot file path
func (s *Snapshot) Path() string {
	return s.path
}

// Write replaces the snapshot contents with results
func (s *Snapshot) Write(results []types.ScrapedResult) error {
	return s.write(results, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// Append adds results to the end of the snapshot
func (s *Snapshot) Append(results []types.ScrapedResult) error {
	return s.write(results, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func (s *Snapshot) write(results []types.ScrapedResult, flag int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, flag, 0644)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	w := bufio.NewWriter(file)

	for _, result := range results {
		data, err := json.Marshal(result)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to marshal result %d: %w", result.ID, err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return file.Close()
}

// Load reads every result in the snapshot. Lines that fail to decode are
// skipped and counted. A missing file is an empty snapshot.
func (s *Snapshot) Load() ([]types.ScrapedResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ScrapedResult{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	results := make([]types.ScrapedResult, 0)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var result types.ScrapedResult
		if err := json.Unmarshal(line, &result); err != nil {
			skipped++
			continue
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return results, skipped, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return results, skipped, nil
}
