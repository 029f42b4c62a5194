package mesh

const (
	// Weight bounds for adaptive edges. Updates clamp into this range so a
	// run of losses can dampen a link but never mute or invert it.
	MinWeight = 0.1
	MaxWeight = 2.0
)

// Edge is a directed, learning-capable link between two nodes. Source->target
// and target->source are independent edges; there is no shared state between
// the two directions.
type Edge struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Weight     float64 `json:"weight"`
	Plasticity float64 `json:"plasticity"`
	LastSignal float64 `json:"last_signal"`
}

// NewEdge creates an edge with neutral weight.
func NewEdge(sourceID, targetID string, plasticity float64) *Edge {
	return &Edge{
		SourceID:   sourceID,
		TargetID:   targetID,
		Weight:     1.0,
		Plasticity: plasticity,
	}
}

// Transmit passes a signal through the edge, recording it for the next
// adaptation step.
func (e *Edge) Transmit(signal float64) float64 {
	e.LastSignal = signal
	return signal * e.Weight
}

// Strengthen applies a Hebbian reinforcement update:
// weight += plasticity * reward * lastSignal, clamped to [MinWeight, MaxWeight].
func (e *Edge) Strengthen(reward float64) {
	e.Weight = clampWeight(e.Weight + e.Plasticity*reward*e.LastSignal)
}

// Weaken is the symmetric decrease.
func (e *Edge) Weaken(penalty float64) {
	e.Weight = clampWeight(e.Weight - e.Plasticity*penalty*e.LastSignal)
}

func clampWeight(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
