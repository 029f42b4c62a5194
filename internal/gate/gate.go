// Package gate translates the mesh's global signal into the per-cycle
// execution directive. Every entry candidate, whatever produced it, must
// pass through the gate before an order is placed.
package gate

import (
	"math"
	"sort"

	"mesh-trading-engine/config"
	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/market"
)

// Mode is the gate's risk posture for one cycle.
type Mode string

const (
	ModeRiskOn  Mode = "RISK_ON"
	ModeNeutral Mode = "NEUTRAL"
	ModeRiskOff Mode = "RISK_OFF"
)

// Directive is the gating contract consumed by the order-placement layer.
// Recomputed every cycle; only the last value matters.
type Directive struct {
	Mode               Mode            `json:"mode"`
	AllowEntries       bool            `json:"allow_entries"`
	BudgetScale        float64         `json:"budget_scale"`
	ConfidenceFloor    float64         `json:"confidence_floor"`
	MaxEntriesPerCycle int             `json:"max_entries_per_cycle"`
	MaxPositionsTotal  int             `json:"max_positions_total"`
	PreferredSymbols   map[string]bool `json:"preferred_symbols,omitempty"`
}

// Gate maps global signal bands to directives.
type Gate struct {
	topMovers         int
	overrideBar       float64
	maxPositionsTotal int
	logger            *logging.Logger
}

func New(cfg *config.GateConfig, logger *logging.Logger) *Gate {
	return &Gate{
		topMovers:         cfg.TopMovers,
		overrideBar:       cfg.OverrideBar,
		maxPositionsTotal: cfg.MaxPositionsTotal,
		logger:            logger.WithComponent("gate"),
	}
}

// Evaluate maps the global signal to a directive. The signal bands are
// fixed: >=0.6 and [0.4,0.6) are RISK_ON at different budgets, (-0.4,0.4)
// is NEUTRAL, and anything at or below -0.4 shuts entries off entirely.
func (g *Gate) Evaluate(globalSignal float64, snap *market.Snapshot) Directive {
	d := Directive{MaxPositionsTotal: g.maxPositionsTotal}

	switch {
	case globalSignal >= 0.6:
		d.Mode = ModeRiskOn
		d.AllowEntries = true
		d.BudgetScale = 1.25
		d.ConfidenceFloor = 0.35
		d.MaxEntriesPerCycle = 5
	case globalSignal >= 0.4:
		d.Mode = ModeRiskOn
		d.AllowEntries = true
		d.BudgetScale = 1.0
		d.ConfidenceFloor = 0.40
		d.MaxEntriesPerCycle = 4
	case globalSignal > -0.4:
		d.Mode = ModeNeutral
		d.AllowEntries = true
		d.BudgetScale = 0.5
		d.ConfidenceFloor = 0.70
		d.MaxEntriesPerCycle = 1
		d.PreferredSymbols = g.topMoverSet(snap)
	default:
		d.Mode = ModeRiskOff
		d.AllowEntries = false
		d.BudgetScale = 0.0
		d.ConfidenceFloor = 1.0
		d.MaxEntriesPerCycle = 0
	}

	g.logger.Debug("directive computed",
		"global_signal", globalSignal,
		"mode", string(d.Mode),
		"budget_scale", d.BudgetScale)
	return d
}

// PermitsEntry applies the directive to one entry candidate. entriesSoFar
// and openPositions are the counts already committed this cycle and across
// the whole engine.
func (g *Gate) PermitsEntry(d Directive, dec consensus.Decision, entriesSoFar, openPositions int) bool {
	if !d.AllowEntries {
		return false
	}
	if entriesSoFar >= d.MaxEntriesPerCycle {
		return false
	}
	if openPositions >= d.MaxPositionsTotal {
		return false
	}
	if dec.Confidence < d.ConfidenceFloor {
		return false
	}
	// In NEUTRAL mode only top movers may be bought, unless the candidate's
	// own confidence clears the override bar.
	if d.Mode == ModeNeutral && dec.Action == consensus.ActionBuy && !d.PreferredSymbols[dec.Symbol] {
		return dec.Confidence > g.overrideBar
	}
	return true
}

// topMoverSet picks the K symbols with the largest absolute 24h change.
func (g *Gate) topMoverSet(snap *market.Snapshot) map[string]bool {
	if snap == nil || len(snap.Tickers) == 0 || g.topMovers <= 0 {
		return map[string]bool{}
	}

	type mover struct {
		symbol string
		change float64
	}
	movers := make([]mover, 0, len(snap.Tickers))
	for sym, tk := range snap.Tickers {
		movers = append(movers, mover{symbol: sym, change: math.Abs(tk.Change24hPct)})
	}
	sort.Slice(movers, func(i, j int) bool {
		if movers[i].change != movers[j].change {
			return movers[i].change > movers[j].change
		}
		return movers[i].symbol < movers[j].symbol
	})

	k := g.topMovers
	if k > len(movers) {
		k = len(movers)
	}
	set := make(map[string]bool, k)
	for _, m := range movers[:k] {
		set[m.symbol] = true
	}
	return set
}
