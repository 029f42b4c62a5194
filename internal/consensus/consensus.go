// Package consensus aggregates per-instance votes into one action per symbol
// via weighted voting.
package consensus

import "sort"

// Action is a vote's direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Vote is one instance's opinion on a symbol for this cycle. Ephemeral:
// produced and consumed within a single cycle.
type Vote struct {
	SourceInstanceID int     `json:"source_instance_id"`
	Symbol           string  `json:"symbol"`
	Action           Action  `json:"action"`
	Strength         float64 `json:"strength"`   // [-1, 1]
	Confidence       float64 `json:"confidence"` // [0, 1]
	WinRate          float64 `json:"win_rate"`   // instance's realized win rate
}

// Decision is the aggregated outcome for one symbol.
type Decision struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
	VoteCount  int     `json:"vote_count"`
}

// Engine computes weighted consensus decisions.
type Engine struct {
	threshold float64 // the winning action's required vote share
}

// NewEngine creates a consensus engine. threshold is the vote share the
// winning action must carry before the decision stands (default 0.6).
func NewEngine(threshold float64) *Engine {
	return &Engine{threshold: threshold}
}

// VoteFromSignal converts a raw signal into an action. Signals inside the
// dead band vote HOLD.
func VoteFromSignal(signal float64) Action {
	const deadBand = 0.15
	switch {
	case signal > deadBand:
		return ActionBuy
	case signal < -deadBand:
		return ActionSell
	default:
		return ActionHold
	}
}

// ComputeConsensus aggregates one symbol's votes. Vote weight is
// (winRate+0.5)*confidence; the 0.5 offset keeps zero-win-rate instances
// from being silenced entirely. Strength is the weighted average. The action
// is the count majority; if its share falls below the threshold the decision
// downgrades to HOLD with strength halved. Ties resolve to HOLD.
// Deterministic: identical vote sets produce identical decisions.
func (e *Engine) ComputeConsensus(symbol string, votes []Vote) Decision {
	if len(votes) == 0 {
		return Decision{Symbol: symbol, Action: ActionHold}
	}

	counts := map[Action]int{}
	weightedStrength := 0.0
	weightedConfidence := 0.0
	totalWeight := 0.0

	for _, v := range votes {
		counts[v.Action]++
		w := (v.WinRate + 0.5) * v.Confidence
		weightedStrength += v.Strength * w
		weightedConfidence += v.Confidence * w
		totalWeight += w
	}

	strength := 0.0
	confidence := 0.0
	if totalWeight > 0 {
		strength = weightedStrength / totalWeight
		confidence = weightedConfidence / totalWeight
	}

	winner, winnerCount, tied := majority(counts)
	share := float64(winnerCount) / float64(len(votes))

	// Downgrade when no clear mandate: a tied vote, or a winning share below
	// the threshold, becomes HOLD at half strength. HOLD winning weakly is
	// still weakened, so downstream consumers see the ambivalence.
	if tied || share < e.threshold {
		winner = ActionHold
		strength /= 2
	}

	return Decision{
		Symbol:     symbol,
		Action:     winner,
		Strength:   strength,
		Confidence: confidence,
		VoteCount:  len(votes),
	}
}

// ComputeAll groups votes by symbol and computes each symbol's decision.
func (e *Engine) ComputeAll(votes []Vote) map[string]Decision {
	bySymbol := map[string][]Vote{}
	for _, v := range votes {
		bySymbol[v.Symbol] = append(bySymbol[v.Symbol], v)
	}

	decisions := make(map[string]Decision, len(bySymbol))
	for symbol, group := range bySymbol {
		decisions[symbol] = e.ComputeConsensus(symbol, group)
	}
	return decisions
}

// majority finds the action with the highest vote count. Reports a tie when
// two actions share the top count; iteration over a fixed action order keeps
// the result deterministic.
func majority(counts map[Action]int) (Action, int, bool) {
	order := []Action{ActionBuy, ActionSell, ActionHold}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	top := order[0]
	if counts[order[1]] == counts[top] {
		return top, counts[top], true
	}
	return top, counts[top], false
}
