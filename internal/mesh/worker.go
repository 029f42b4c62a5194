package mesh

import (
	"math"
	"math/rand"
)

// primeTable gives each worker a reproducibly distinct bias and position size
// without randomness: 25 primes spanning 2..97, used cyclically by index.
var primeTable = []int{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29,
	31, 37, 41, 43, 47, 53, 59, 61, 67, 71,
	73, 79, 83, 89, 97,
}

func primeAt(index int) int {
	return primeTable[index%len(primeTable)]
}

// Features is the per-cycle market input to signal computation.
type Features struct {
	Price      float64
	Momentum   float64
	Trend      float64
	Volatility float64
}

// Worker is a single capital-holding strategy unit. Workers are created at
// colony formation and live exactly as long as their colony.
type Worker struct {
	ID          string  `json:"id"`
	ColonyID    string  `json:"colony_id"`
	Equity      float64 `json:"equity"`
	StartEquity float64 `json:"start_equity"`
	TradeCount  int     `json:"trade_count"`
	WinCount    int     `json:"win_count"`
	BiasIndex   int     `json:"bias_index"`
}

// TradeResult reports one simulated trade.
type TradeResult struct {
	Executed  bool
	Direction int // +1 long, -1 short
	Size      float64
	PnL       float64
	NewEquity float64
	Win       bool
}

// NewWorker creates a worker with the given prime-table bias index.
func NewWorker(id, colonyID string, equity float64, biasIndex int) *Worker {
	return &Worker{
		ID:          id,
		ColonyID:    colonyID,
		Equity:      equity,
		StartEquity: equity,
		BiasIndex:   biasIndex,
	}
}

// ComputeSignal derives a deterministic signal in [-1,1] from momentum, trend,
// volatility and the worker's fixed prime bias. Two workers with different
// bias indexes disagree on the same features, which is what keeps a colony's
// vote from collapsing into a single opinion.
func (w *Worker) ComputeSignal(f Features) float64 {
	bias := float64(primeAt(w.BiasIndex))/100.0 - 0.5
	raw := f.Momentum*6.0 + f.Trend*3.0 - f.Volatility*2.0 + bias*0.2
	return math.Tanh(raw)
}

// ExecuteSimulatedTrade risks primeValue*1% of equity on the signal's
// direction. The outcome draws from the injected PRNG with a win probability
// that grows with signal conviction, so stronger signals pay off more often
// and paper results are reproducible under a fixed seed.
func (w *Worker) ExecuteSimulatedTrade(signal, price float64, rng *rand.Rand) TradeResult {
	if signal == 0 || price <= 0 || w.Equity <= 0 {
		return TradeResult{NewEquity: w.Equity}
	}

	size := float64(primeAt(w.BiasIndex)) * 0.01 * w.Equity
	direction := 1
	if signal < 0 {
		direction = -1
	}

	conviction := math.Abs(signal)
	if conviction > 1 {
		conviction = 1
	}
	winProb := 0.35 + 0.3*conviction

	win := rng.Float64() < winProb
	move := 0.004 + 0.006*rng.Float64() // simulated price move fraction
	pnl := size * move
	if !win {
		pnl = -pnl
	}

	w.Equity += pnl
	if w.Equity < 0 {
		w.Equity = 0
	}
	w.TradeCount++
	if win {
		w.WinCount++
	}

	return TradeResult{
		Executed:  true,
		Direction: direction,
		Size:      size,
		PnL:       pnl,
		NewEquity: w.Equity,
		Win:       win,
	}
}

// WinRate returns the worker's hit rate, 0 before any trades.
func (w *Worker) WinRate() float64 {
	if w.TradeCount == 0 {
		return 0
	}
	return float64(w.WinCount) / float64(w.TradeCount)
}

// Profit is equity growth since formation.
func (w *Worker) Profit() float64 {
	return w.Equity - w.StartEquity
}
