// Package probation implements the Probation Ledger: a persistent,
// per-context blocklist for configurations that previously failed
// (spec §3, §4.8).
package probation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/neo-z/zereca/pkg/types"
)

// Entry is a Probation Entry, keyed by ConfigHash.
type Entry struct {
	ConfigHash     types.ConfigHash     `json:"config_hash"`
	LastFailureTs  int64                `json:"last_failure_ts"`
	Severity       types.Severity       `json:"severity"`
	Context        types.SystemContext  `json:"context"`
	BackoffMult    float64              `json:"backoff"`
}

const (
	lowBaseWindow = 5 * time.Minute
	backoffClamp  = 1 << 16 // generous ceiling so repeated failures can't overflow
)

// Ledger is the lock-protected map of probation entries, persisted as
// a JSON array under the app-data directory.
type Ledger struct {
	path string

	mu      sync.Mutex
	entries map[types.ConfigHash]Entry
}

// NewLedger loads entries from path, tolerating a missing or
// malformed file by starting empty.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: make(map[types.ConfigHash]Entry)}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("probation: read ledger: %w", err)
	}
	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		// Tolerant loader: a malformed file is treated as an empty
		// ledger rather than a startup failure.
		return nil
	}
	for _, e := range list {
		l.entries[e.ConfigHash] = e
	}
	return nil
}

func (l *Ledger) saveLocked() error {
	list := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		list = append(list, e)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("probation: marshal ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("probation: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("probation: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("probation: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("probation: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("probation: rename temp file: %w", err)
	}
	return nil
}

// RecordFailure adds or updates a probation entry for hash at the
// given severity and context. Re-failures of an existing LOW entry
// double its backoff multiplier (clamped).
func (l *Ledger) RecordFailure(hash types.ConfigHash, severity types.Severity, ctx types.SystemContext, now time.Time) error {
	l.mu.Lock()
	existing, had := l.entries[hash]
	backoff := 1.0
	if had && existing.Severity == types.SeverityLow {
		backoff = existing.BackoffMult * 2
		if backoff > backoffClamp {
			backoff = backoffClamp
		}
	}
	l.entries[hash] = Entry{
		ConfigHash:    hash,
		LastFailureTs: now.Unix(),
		Severity:      severity,
		Context:       ctx,
		BackoffMult:   backoff,
	}
	err := l.saveLocked()
	l.mu.Unlock()
	return err
}

// IsOnProbation reports whether hash is currently blocked under ctx.
// CRITICAL entries never resurrect. MEDIUM entries resurrect only on
// a context shift. LOW entries resurrect after an exponential backoff
// window starting at 5 minutes.
func (l *Ledger) IsOnProbation(hash types.ConfigHash, ctx types.SystemContext, now time.Time) bool {
	l.mu.Lock()
	e, ok := l.entries[hash]
	l.mu.Unlock()
	if !ok {
		return false
	}

	switch e.Severity {
	case types.SeverityCritical:
		return true
	case types.SeverityMedium:
		return !ctx.HasShiftedFrom(e.Context)
	case types.SeverityLow:
		window := time.Duration(float64(lowBaseWindow) * e.BackoffMult)
		resurrectAt := time.Unix(e.LastFailureTs, 0).Add(window)
		return now.Before(resurrectAt)
	default:
		return false
	}
}

// ClearAll wipes every entry and persists the empty ledger. Reserved
// for Operator use after an acknowledged rollback.
func (l *Ledger) ClearAll() error {
	l.mu.Lock()
	l.entries = make(map[types.ConfigHash]Entry)
	err := l.saveLocked()
	l.mu.Unlock()
	return err
}

// Count returns the number of entries currently on probation
// (regardless of resurrection eligibility), the probationCount
// property the bridge exposes.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
