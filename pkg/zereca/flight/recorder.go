// Package flight implements the Flight Recorder: a bounded audit
// trail of state-change records with an atomic disk dump on demand
// (spec §4.4).
package flight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is a single State Change Record.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	ComponentID    string    `json:"component_id"`
	OldValue       string    `json:"old_value"`
	NewValue       string    `json:"new_value"`
	ExpectedGain   float64   `json:"expected_gain"`
	ActualDelta    float64   `json:"actual_delta"`
	RollbackReason string    `json:"rollback_reason,omitempty"`
}

const (
	maxRecords      = 10000
	maxBufferWindow = 5 * time.Minute
)

// Recorder is the bounded FIFO of Records. Pruned on every append to
// at most maxRecords entries no older than maxBufferWindow.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	dumpDir string
}

// NewRecorder returns an empty Recorder that dumps under dumpDir.
func NewRecorder(dumpDir string) *Recorder {
	return &Recorder{dumpDir: dumpDir}
}

// Append adds a record and prunes records older than the buffer
// window or beyond the max count.
func (r *Recorder) Append(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.pruneLocked()
}

func (r *Recorder) pruneLocked() {
	cutoff := time.Now().Add(-maxBufferWindow)
	start := 0
	for start < len(r.records) && r.records[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		r.records = append([]Record(nil), r.records[start:]...)
	}
	if len(r.records) > maxRecords {
		overflow := len(r.records) - maxRecords
		r.records = append([]Record(nil), r.records[overflow:]...)
	}
}

// Count returns the number of records currently held.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of the current buffer, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// dumpFile is the {reason, dump_timestamp, record_count} envelope
// written ahead of the record array.
type dumpFile struct {
	Reason        string    `json:"dump_reason"`
	DumpTimestamp time.Time `json:"dump_timestamp"`
	RecordCount   int       `json:"record_count"`
	Records       []Record  `json:"records"`
}

// Dump atomically writes the current buffer plus its header to a
// timestamped file under the app data directory's zereca_dumps/
// subdirectory, and returns the path written.
func (r *Recorder) Dump(reason string) (string, error) {
	r.mu.Lock()
	r.pruneLocked()
	records := append([]Record(nil), r.records...)
	r.mu.Unlock()

	now := time.Now()
	df := dumpFile{
		Reason:        reason,
		DumpTimestamp: now,
		RecordCount:   len(records),
		Records:       records,
	}
	data, err := json.MarshalIndent(df, "", "  ")
	if err != nil {
		return "", fmt.Errorf("flight: marshal dump: %w", err)
	}

	dir := filepath.Join(r.dumpDir, "zereca_dumps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("flight: create dump dir: %w", err)
	}
	name := fmt.Sprintf("flight_recorder_%s.json", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("flight: create temp dump file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flight: write temp dump file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("flight: close temp dump file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("flight: rename temp dump file: %w", err)
	}
	return path, nil
}
