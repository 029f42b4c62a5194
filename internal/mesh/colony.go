package mesh

import (
	"fmt"
	"math"
	"math/rand"
)

// ErrConservationViolation reports a harvest that did not balance. The colony
// involved is frozen and must be reconciled manually.
var ErrConservationViolation = fmt.Errorf("harvest conservation violation")

const conservationTolerance = 1e-6

// Colony is a pool of workers sharing one aggregation node. Capital flows in
// three ways only: simulated trade P&L on workers, harvest into
// HarvestedCapital, and seed capital out to a child colony on split.
type Colony struct {
	ID               string  `json:"id"`
	Generation       int     `json:"generation"`
	Workers          []*Worker `json:"workers"`
	HarvestedCapital float64 `json:"harvested_capital"`
	TargetPerWorker  float64 `json:"target_per_worker"`
	Frozen           bool    `json:"frozen"`

	// Per-worker edges into the colony's aggregation node, keyed by worker id.
	Edges map[string]*Edge `json:"edges"`

	aggBias     float64
	harvestRate float64
	plasticity  float64
}

// ColonyConfig carries the tunables a colony needs at formation.
type ColonyConfig struct {
	WorkerCount     int
	WorkerEquity    float64
	TargetPerWorker float64
	HarvestRate     float64
	Plasticity      float64
}

// NewColony forms a colony and its workers. Workers are owned exclusively by
// the colony and are never created or destroyed independently of it.
func NewColony(id string, generation int, cfg ColonyConfig) *Colony {
	c := &Colony{
		ID:              id,
		Generation:      generation,
		TargetPerWorker: cfg.TargetPerWorker,
		Edges:           make(map[string]*Edge, cfg.WorkerCount),
		aggBias:         0.0,
		harvestRate:     cfg.HarvestRate,
		plasticity:      cfg.Plasticity,
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		wid := fmt.Sprintf("%s-w%d", id, i)
		w := NewWorker(wid, id, cfg.WorkerEquity, i)
		c.Workers = append(c.Workers, w)
		c.Edges[wid] = NewEdge(wid, id, cfg.Plasticity)
	}
	return c
}

// Step runs one cycle: each worker's signal flows through its edge into the
// aggregation node, workers still below target trade on the colony signal,
// and each trading worker's edge is reinforced by its outcome.
// Returns the colony signal, 0 when frozen.
func (c *Colony) Step(f Features, rng *rand.Rand) float64 {
	if c.Frozen {
		return 0
	}

	sum := 0.0
	signals := make(map[string]float64, len(c.Workers))
	for _, w := range c.Workers {
		sig := w.ComputeSignal(f)
		signals[w.ID] = sig
		sum += c.Edges[w.ID].Transmit(sig)
	}
	colonySignal := math.Tanh(sum + c.aggBias)

	for _, w := range c.Workers {
		if w.Equity >= c.TargetPerWorker {
			continue // reached target, holds its capital for harvest/split
		}
		res := w.ExecuteSimulatedTrade(colonySignal, f.Price, rng)
		if !res.Executed {
			continue
		}
		edge := c.Edges[w.ID]
		if res.Win {
			edge.Strengthen(1.0)
		} else {
			edge.Weaken(1.0)
		}
	}

	return colonySignal
}

// TotalEquity sums worker equity. HarvestedCapital is held separately.
func (c *Colony) TotalEquity() float64 {
	total := 0.0
	for _, w := range c.Workers {
		total += w.Equity
	}
	return total
}

// StartEquity sums worker start equity.
func (c *Colony) StartEquity() float64 {
	total := 0.0
	for _, w := range c.Workers {
		total += w.StartEquity
	}
	return total
}

// HarvestCapital skims harvestRate of the colony's positive profit into
// HarvestedCapital, deducted proportionally from profitable workers. The
// operation only moves capital: sum(before) == sum(after) + harvested must
// hold to tolerance, otherwise the colony freezes and an error is returned.
func (c *Colony) HarvestCapital() (float64, error) {
	if c.Frozen {
		return 0, nil
	}

	before := c.TotalEquity()
	profit := before - c.StartEquity()
	if profit <= 0 {
		return 0, nil
	}

	harvest := c.harvestRate * profit

	totalPositive := 0.0
	for _, w := range c.Workers {
		if p := w.Profit(); p > 0 {
			totalPositive += p
		}
	}
	if totalPositive <= 0 {
		return 0, nil
	}

	taken := 0.0
	for _, w := range c.Workers {
		p := w.Profit()
		if p <= 0 {
			continue
		}
		share := harvest * (p / totalPositive)
		w.Equity -= share
		taken += share
	}

	after := c.TotalEquity()
	if math.Abs(before-(after+taken)) > conservationTolerance {
		c.Frozen = true
		return 0, fmt.Errorf("%w: colony %s before=%.8f after=%.8f harvested=%.8f",
			ErrConservationViolation, c.ID, before, after, taken)
	}

	c.HarvestedCapital += taken
	return taken, nil
}

// CanSplit reports whether the colony is ready to spawn a child: at least
// half its workers reached target and there is harvested capital to seed with.
func (c *Colony) CanSplit() bool {
	if c.Frozen || c.HarvestedCapital <= 0 {
		return false
	}
	successful := 0
	for _, w := range c.Workers {
		if w.Equity >= c.TargetPerWorker {
			successful++
		}
	}
	return float64(successful) >= 0.5*float64(len(c.Workers))
}

// Split spawns a child colony (generation+1) seeded with the harvested
// capital, split evenly across the child's workers. Resets HarvestedCapital.
func (c *Colony) Split(childID string, workerCount int) *Colony {
	seed := c.HarvestedCapital
	c.HarvestedCapital = 0

	child := NewColony(childID, c.Generation+1, ColonyConfig{
		WorkerCount:     workerCount,
		WorkerEquity:    seed / float64(workerCount),
		TargetPerWorker: c.TargetPerWorker,
		HarvestRate:     c.harvestRate,
		Plasticity:      c.plasticity,
	})
	return child
}
