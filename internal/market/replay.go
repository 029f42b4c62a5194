package market

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ReplaySource serves snapshots from a recorded JSON file, one per Fetch call.
// Used for dry runs and reproducible tests.
type ReplaySource struct {
	mu        sync.Mutex
	snapshots []Snapshot
	cursor    int
	loop      bool
}

// NewReplaySource loads a recorded snapshot file. When loop is true the
// sequence repeats instead of running out.
func NewReplaySource(path string, loop bool) (*ReplaySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}

	var snapshots []Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to parse replay file: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("replay file %s contains no snapshots", path)
	}

	return &ReplaySource{snapshots: snapshots, loop: loop}, nil
}

// NewStaticSource wraps a fixed snapshot sequence, mainly for tests.
func NewStaticSource(snapshots []Snapshot, loop bool) *ReplaySource {
	return &ReplaySource{snapshots: snapshots, loop: loop}
}

// Fetch returns the next recorded snapshot.
func (r *ReplaySource) Fetch() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(r.snapshots) {
		if !r.loop {
			return nil, fmt.Errorf("replay exhausted after %d snapshots", len(r.snapshots))
		}
		r.cursor = 0
	}

	snap := r.snapshots[r.cursor]
	r.cursor++

	out := Snapshot{
		Tickers: make(map[string]Ticker, len(snap.Tickers)),
		TakenAt: time.Now(),
	}
	for k, v := range snap.Tickers {
		out.Tickers[k] = v
	}
	return &out, nil
}

// Close is a no-op for replay sources.
func (r *ReplaySource) Close() error { return nil }
