// Package sweeper scans open positions across all strategy instances and
// closes any that crossed the profit threshold. Sweeps are pure in-memory
// settlements: order placement against the venue stays with the executor.
package sweeper

import (
	"time"

	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/strategy"

	"github.com/google/uuid"
)

// Candidate is a position that crossed the sweep threshold this cycle.
type Candidate struct {
	Instance     *strategy.Instance
	Symbol       string
	Side         string
	EntryPrice   float64
	CurrentPrice float64
	Quantity     float64
	PnLPct       float64
	PnLValue     float64
}

// Result records one executed sweep for the accounting layer.
type Result struct {
	ID         string        `json:"id"`
	InstanceID int           `json:"instance_id"`
	Symbol     string        `json:"symbol"`
	Side       string        `json:"side"`
	EntryPrice float64       `json:"entry_price"`
	ClosePrice float64       `json:"close_price"`
	PnLValue   float64       `json:"pnl_value"`
	PnLPct     float64       `json:"pnl_pct"`
	SweptAt    time.Time     `json:"swept_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Sweeper closes positions past a profit threshold within a bounded reaction
// time. Exceeding the budget is an invariant breach (there is no I/O here to
// time out on), logged loudly rather than retried.
type Sweeper struct {
	thresholdPct   float64
	reactionBudget time.Duration
	logger         *logging.Logger
}

// New creates a sweeper. thresholdPct is fractional (0.002 = 0.2%) and
// inclusive: a position at exactly the threshold is swept.
func New(thresholdPct float64, reactionBudget time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		thresholdPct:   thresholdPct,
		reactionBudget: reactionBudget,
		logger:         logger.WithComponent("sweeper"),
	}
}

// Scan walks every instance's book and returns positions at or past the
// threshold. Read-only: candidates are settled by ExecuteSweep.
func (s *Sweeper) Scan(instances []*strategy.Instance, prices map[string]float64) []Candidate {
	var candidates []Candidate
	for _, in := range instances {
		for symbol, pos := range in.Positions() {
			price, ok := prices[symbol]
			if !ok || price <= 0 || pos.EntryPrice <= 0 {
				continue
			}

			pnlPct := (price - pos.EntryPrice) / pos.EntryPrice
			if pos.Side == strategy.SideShort {
				pnlPct = -pnlPct
			}
			if pnlPct < s.thresholdPct {
				continue
			}

			pnlValue := pnlPct * pos.EntryPrice * pos.Quantity
			candidates = append(candidates, Candidate{
				Instance:     in,
				Symbol:       symbol,
				Side:         pos.Side,
				EntryPrice:   pos.EntryPrice,
				CurrentPrice: price,
				Quantity:     pos.Quantity,
				PnLPct:       pnlPct,
				PnLValue:     pnlValue,
			})
		}
	}
	return candidates
}

// ExecuteSweep settles one candidate: the position leaves the owning
// instance's book and its P&L lands on the instance's equity in a single
// critical section. Returns nil if the position disappeared since the scan.
func (s *Sweeper) ExecuteSweep(c Candidate) *Result {
	start := time.Now()

	pnl, ok := c.Instance.CloseAt(c.Symbol, c.CurrentPrice)
	if !ok {
		return nil
	}

	elapsed := time.Since(start)
	if s.reactionBudget > 0 && elapsed > s.reactionBudget {
		s.logger.Error("Sweep exceeded reaction budget",
			"symbol", c.Symbol, "elapsed", elapsed.String(), "budget", s.reactionBudget.String())
	}

	res := &Result{
		ID:         uuid.New().String(),
		InstanceID: c.Instance.ID,
		Symbol:     c.Symbol,
		Side:       c.Side,
		EntryPrice: c.EntryPrice,
		ClosePrice: c.CurrentPrice,
		PnLValue:   pnl,
		PnLPct:     c.PnLPct,
		SweptAt:    start,
		Elapsed:    elapsed,
	}

	s.logger.Info("Position swept",
		"instance", c.Instance.ID, "symbol", c.Symbol,
		"pnl_pct", c.PnLPct, "pnl_value", pnl)
	return res
}

// Sweep scans and settles in one pass, returning the results for the ledger.
func (s *Sweeper) Sweep(instances []*strategy.Instance, prices map[string]float64) []*Result {
	candidates := s.Scan(instances, prices)
	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		if res := s.ExecuteSweep(c); res != nil {
			results = append(results, res)
		}
	}
	return results
}
