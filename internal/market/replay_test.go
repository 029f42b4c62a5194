package market

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func sampleSnapshots() []Snapshot {
	return []Snapshot{
		{Tickers: map[string]Ticker{
			"BTCUSDT": {Symbol: "BTCUSDT", Price: 50000, Change24hPct: 1.2, Volume: 1000, Venue: "paper"},
		}},
		{Tickers: map[string]Ticker{
			"BTCUSDT": {Symbol: "BTCUSDT", Price: 50500, Change24hPct: 2.1, Volume: 1100, Venue: "paper"},
		}},
	}
}

func TestReplaySourceServesInOrder(t *testing.T) {
	src := NewStaticSource(sampleSnapshots(), false)

	first, err := src.Fetch()
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if got := first.Tickers["BTCUSDT"].Price; got != 50000 {
		t.Errorf("first price = %v, want 50000", got)
	}

	second, err := src.Fetch()
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if got := second.Tickers["BTCUSDT"].Price; got != 50500 {
		t.Errorf("second price = %v, want 50500", got)
	}

	if _, err := src.Fetch(); err == nil {
		t.Error("expected exhaustion error after last snapshot")
	}
}

func TestReplaySourceLoops(t *testing.T) {
	src := NewStaticSource(sampleSnapshots(), true)

	for i := 0; i < 5; i++ {
		if _, err := src.Fetch(); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
}

func TestReplaySourceCopiesTickers(t *testing.T) {
	src := NewStaticSource(sampleSnapshots(), true)

	snap, err := src.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	snap.Tickers["BTCUSDT"] = Ticker{Symbol: "BTCUSDT", Price: 1}

	src.Fetch() // second
	again, err := src.Fetch()
	if err != nil {
		t.Fatalf("Fetch after loop: %v", err)
	}
	if got := again.Tickers["BTCUSDT"].Price; got != 50000 {
		t.Errorf("mutating a fetched snapshot leaked into the source, price = %v", got)
	}
}

func TestNewReplaySourceFromFile(t *testing.T) {
	data, err := json.Marshal(sampleSnapshots())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "replay.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewReplaySource(path, false)
	if err != nil {
		t.Fatalf("NewReplaySource: %v", err)
	}
	snap, err := src.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.Tickers) != 1 {
		t.Errorf("tickers = %d, want 1", len(snap.Tickers))
	}
}

func TestNewReplaySourceRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReplaySource(path, false); err == nil {
		t.Error("expected error for empty replay file")
	}
}
