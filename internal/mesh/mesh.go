// Package mesh implements the adaptive signal network: workers grouped into
// colonies, weighted edges into aggregation nodes, capital harvesting and
// hierarchical colony spawning, and the mesh-level growth governance rule.
package mesh

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"mesh-trading-engine/internal/logging"
)

// Config carries mesh-level tunables.
type Config struct {
	ColonyCount      int
	WorkersPerColony int
	StartEquity      float64
	TargetPerWorker  float64
	HarvestRate      float64
	HarvestEvery     int
	Plasticity       float64
	MinProfitTarget  float64
	FullRiskProfit   float64
	MaxConfidenceReq float64
}

// Mesh is the full signal network. One aggregation node per colony plus a
// single top-level aggregator producing the global signal. All mutation
// happens inside the engine's cycle; the mesh itself is not goroutine-safe.
type Mesh struct {
	Colonies []*Colony

	// Colony aggregator -> top aggregator edges, keyed by colony id.
	colonyEdges map[string]*Edge

	cfg          Config
	rng          *rand.Rand
	logger       *logging.Logger
	cycleCount   int
	globalSignal float64
	nextColonyID int

	// Growth governance state.
	startEquity    float64
	netProfitTotal float64
	peakEquity     float64
	startedAt      time.Time
}

// New builds a mesh with the configured colonies. The PRNG is injected so
// simulated outcomes are reproducible under a fixed seed.
func New(cfg Config, rng *rand.Rand, logger *logging.Logger) *Mesh {
	m := &Mesh{
		colonyEdges: make(map[string]*Edge, cfg.ColonyCount),
		cfg:         cfg,
		rng:         rng,
		logger:      logger.WithComponent("mesh"),
		startedAt:   time.Now(),
	}
	for i := 0; i < cfg.ColonyCount; i++ {
		m.addColony(NewColony(m.newColonyID(), 0, ColonyConfig{
			WorkerCount:     cfg.WorkersPerColony,
			WorkerEquity:    cfg.StartEquity,
			TargetPerWorker: cfg.TargetPerWorker,
			HarvestRate:     cfg.HarvestRate,
			Plasticity:      cfg.Plasticity,
		}))
	}
	m.startEquity = m.TotalEquity()
	m.peakEquity = m.startEquity
	return m
}

func (m *Mesh) newColonyID() string {
	id := fmt.Sprintf("colony-%d", m.nextColonyID)
	m.nextColonyID++
	return id
}

func (m *Mesh) addColony(c *Colony) {
	m.Colonies = append(m.Colonies, c)
	m.colonyEdges[c.ID] = NewEdge(c.ID, "top", m.cfg.Plasticity)
}

// Step runs one mesh cycle: every colony steps, colony signals flow through
// their edges into the top aggregator, and on the harvest cadence capital is
// skimmed and split-ready colonies spawn children. Returns the global signal.
func (m *Mesh) Step(f Features) float64 {
	sum := 0.0
	for _, c := range m.Colonies {
		beforeEquity := c.TotalEquity()
		cs := c.Step(f, m.rng)
		sum += m.colonyEdges[c.ID].Transmit(cs)

		// Reinforce the colony's edge by this step's capital outcome.
		edge := m.colonyEdges[c.ID]
		if delta := c.TotalEquity() - beforeEquity; delta > 0 {
			edge.Strengthen(1.0)
		} else if delta < 0 {
			edge.Weaken(1.0)
		}
	}
	m.globalSignal = math.Tanh(sum)

	m.cycleCount++
	if m.cfg.HarvestEvery > 0 && m.cycleCount%m.cfg.HarvestEvery == 0 {
		m.runHarvestPass()
	}

	total := m.TotalEquity()
	m.netProfitTotal = total - m.startEquity
	if total > m.peakEquity {
		m.peakEquity = total
	}

	return m.globalSignal
}

// runHarvestPass harvests every colony and spawns children where ready.
// Harvesting runs on a cadence, not every cycle, so compounding is not starved.
func (m *Mesh) runHarvestPass() {
	var spawned []*Colony
	for _, c := range m.Colonies {
		harvested, err := c.HarvestCapital()
		if err != nil {
			// Invariant breach: surfaced loudly, colony already frozen.
			m.logger.Error("Harvest conservation breach, colony frozen",
				"colony", c.ID, "error", err)
			continue
		}
		if harvested > 0 {
			m.logger.Debug("Capital harvested",
				"colony", c.ID, "amount", harvested, "pool", c.HarvestedCapital)
		}
		if c.CanSplit() {
			child := c.Split(m.newColonyID(), m.cfg.WorkersPerColony)
			spawned = append(spawned, child)
			m.logger.Info("Colony split",
				"parent", c.ID, "child", child.ID, "generation", child.Generation,
				"seed_equity", child.TotalEquity())
		}
	}
	for _, child := range spawned {
		m.addColony(child)
	}
}

// GlobalSignal returns the last computed global signal.
func (m *Mesh) GlobalSignal() float64 {
	return m.globalSignal
}

// TotalEquity sums worker equity plus unharvested pools across all colonies.
func (m *Mesh) TotalEquity() float64 {
	total := 0.0
	for _, c := range m.Colonies {
		total += c.TotalEquity() + c.HarvestedCapital
	}
	return total
}

// NetProfitTotal is mesh-wide equity growth since construction.
func (m *Mesh) NetProfitTotal() float64 {
	return m.netProfitTotal
}

// PeakEquity is the high-water mark.
func (m *Mesh) PeakEquity() float64 {
	return m.peakEquity
}

// ProfitRatePerHour is net profit normalized by runtime.
func (m *Mesh) ProfitRatePerHour() float64 {
	hours := time.Since(m.startedAt).Hours()
	if hours <= 0 {
		return 0
	}
	return m.netProfitTotal / hours
}

// ShouldTakeTrade is the mesh's single gatekeeping rule. Below the minimum
// profit target the trade is rejected outright. Above it, the required
// confidence falls linearly from MaxConfidenceReq down to a 0.5 floor as
// expected profit approaches FullRiskProfit: more profit justifies more risk.
func (m *Mesh) ShouldTakeTrade(expectedNetProfit, confidence float64) bool {
	if expectedNetProfit < m.cfg.MinProfitTarget {
		return false
	}

	span := m.cfg.FullRiskProfit - m.cfg.MinProfitTarget
	frac := 1.0
	if span > 0 {
		frac = (expectedNetProfit - m.cfg.MinProfitTarget) / span
		if frac > 1 {
			frac = 1
		}
	}
	required := m.cfg.MaxConfidenceReq - (m.cfg.MaxConfidenceReq-0.5)*frac
	return confidence >= required
}

// CycleCount returns how many steps the mesh has run.
func (m *Mesh) CycleCount() int {
	return m.cycleCount
}
