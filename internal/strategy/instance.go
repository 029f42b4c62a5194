package strategy

import (
	"fmt"
	"sync"
	"time"
)

// Position side constants
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Position is one open entry in an instance's book.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	Side       string    `json:"side"`
	OpenedAt   time.Time `json:"opened_at"`
}

// observedSignal is a recent signal seen from another instance for a symbol.
type observedSignal struct {
	kind   Kind
	signal float64
}

// maxObservedPerSymbol bounds the per-symbol observation ring.
const maxObservedPerSymbol = 16

// Instance is one parallel strategy simulator. Instances are created once at
// engine start and never destroyed, only re-capitalized.
type Instance struct {
	mu sync.Mutex

	ID          int     `json:"id"`
	Kind        Kind    `json:"kind"`
	Equity      float64 `json:"equity"`
	StartEquity float64 `json:"start_equity"`
	TradeCount  int     `json:"trade_count"`
	WinCount    int     `json:"win_count"`

	positions map[string]*Position

	// Trust weights toward other kinds, moved by Observe.
	trust     map[Kind]float64
	trustStep float64

	// Recent signals observed from other instances, per symbol.
	observed map[string][]observedSignal
}

// NewInstance creates a simulator for the given kind.
func NewInstance(id int, kind Kind, equity, trustStep float64) *Instance {
	return &Instance{
		ID:          id,
		Kind:        kind,
		Equity:      equity,
		StartEquity: equity,
		positions:   make(map[string]*Position),
		trust:       make(map[Kind]float64),
		observed:    make(map[string][]observedSignal),
		trustStep:   trustStep,
	}
}

// Evaluate runs this instance's heuristic on one symbol.
func (in *Instance) Evaluate(symbol string, price, changePct, volume, momentum float64) (signal, confidence float64) {
	return Evaluate(in.Kind, symbol, price, changePct, volume, momentum)
}

// WinRate is the realized hit rate, 0 before any closed trades.
func (in *Instance) WinRate() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.TradeCount == 0 {
		return 0
	}
	return float64(in.WinCount) / float64(in.TradeCount)
}

// TotalPnL is equity growth since start.
func (in *Instance) TotalPnL() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.Equity - in.StartEquity
}

// Observe moves this instance's trust toward another instance's kind when
// that instance is currently succeeding (positive P&L, win rate above 0.5).
// An exponential moving update, not meta-learning: trust approaches 1 but
// never jumps.
func (in *Instance) Observe(other *Instance) {
	if other == nil || other.ID == in.ID {
		return
	}
	if other.TotalPnL() <= 0 || other.WinRate() <= 0.5 {
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	current := in.trust[other.Kind]
	in.trust[other.Kind] = current + in.trustStep*(1.0-current)
}

// Trust returns the current trust weight toward a kind.
func (in *Instance) Trust(kind Kind) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.trust[kind]
}

// RecordObserved notes a signal another instance produced for a symbol, used
// later by AdaptSignal. The ring keeps the most recent entries only.
func (in *Instance) RecordObserved(symbol string, kind Kind, signal float64) {
	in.mu.Lock()
	defer in.mu.Unlock()

	ring := append(in.observed[symbol], observedSignal{kind: kind, signal: signal})
	if len(ring) > maxObservedPerSymbol {
		ring = ring[len(ring)-maxObservedPerSymbol:]
	}
	in.observed[symbol] = ring
}

// AdaptSignal blends the raw signal with the trust-weighted average of
// recently observed signals for the same symbol. The 80/20 split is fixed;
// with nothing observed (or no trust built) the raw signal passes through.
func (in *Instance) AdaptSignal(raw float64, symbol string) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	ring := in.observed[symbol]
	if len(ring) == 0 {
		return raw
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for _, obs := range ring {
		w := in.trust[obs.kind]
		if w <= 0 {
			continue
		}
		weightedSum += obs.signal * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return raw
	}

	return 0.8*raw + 0.2*(weightedSum/totalWeight)
}

// OpenPosition adds an entry to the book. One position per symbol.
func (in *Instance) OpenPosition(symbol string, entryPrice, quantity float64, side string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.positions[symbol]; exists {
		return fmt.Errorf("position already open for %s", symbol)
	}
	if entryPrice <= 0 || quantity <= 0 {
		return fmt.Errorf("invalid position parameters for %s: price=%v qty=%v", symbol, entryPrice, quantity)
	}
	in.positions[symbol] = &Position{
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Side:       side,
		OpenedAt:   time.Now(),
	}
	return nil
}

// CloseAt removes the position for symbol and settles its P&L at the given
// price in one critical section. Returns the realized pnl and whether a
// position existed. Pure in-memory: no I/O happens under the lock.
func (in *Instance) CloseAt(symbol string, price float64) (pnl float64, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	pos, exists := in.positions[symbol]
	if !exists {
		return 0, false
	}
	delete(in.positions, symbol)

	pnl = (price - pos.EntryPrice) * pos.Quantity
	if pos.Side == SideShort {
		pnl = -pnl
	}
	in.Equity += pnl
	in.TradeCount++
	if pnl > 0 {
		in.WinCount++
	}
	return pnl, true
}

// Positions returns a copy of the open book.
func (in *Instance) Positions() map[string]Position {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make(map[string]Position, len(in.positions))
	for k, v := range in.positions {
		out[k] = *v
	}
	return out
}

// PositionCount returns the number of open positions.
func (in *Instance) PositionCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.positions)
}

// Recapitalize resets equity without touching the book or stats.
func (in *Instance) Recapitalize(equity float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.Equity = equity
	in.StartEquity = equity
}
