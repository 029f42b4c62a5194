// Package market defines the market snapshot contract consumed by the engine
// and the data sources that produce it.
package market

import "time"

// Ticker holds one symbol's view of the market for a single cycle.
type Ticker struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Change24hPct float64 `json:"change_24h_pct"`
	Volume       float64 `json:"volume"`
	Momentum     float64 `json:"momentum"`
	Venue        string  `json:"venue"`
}

// Snapshot is the per-cycle market view: symbol -> ticker.
type Snapshot struct {
	Tickers map[string]Ticker `json:"tickers"`
	TakenAt time.Time         `json:"taken_at"`
}

// Source produces market snapshots. Implementations may block on I/O; the
// engine treats a failed fetch as a skipped cycle input, never as fatal.
type Source interface {
	Fetch() (*Snapshot, error)
	Close() error
}
