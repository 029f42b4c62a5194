// Package engine owns the cycle loop: it wires the mesh, strategy instances,
// consensus, sweeper, router and gate together and runs them in a fixed
// order, one cycle at a time. There is no ambient global state; everything
// the engine touches is held by the Engine value constructed at startup.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mesh-trading-engine/config"
	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/events"
	"mesh-trading-engine/internal/executor"
	"mesh-trading-engine/internal/gate"
	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/market"
	"mesh-trading-engine/internal/mesh"
	"mesh-trading-engine/internal/router"
	"mesh-trading-engine/internal/strategy"
	"mesh-trading-engine/internal/sweeper"
)

// Deps carries the engine's collaborators. Persister and Publisher may be
// nil; they default to no-ops.
type Deps struct {
	Source    market.Source
	Executor  executor.OrderExecutor
	Router    *router.Router
	Bus       *events.EventBus
	Persister Persister
	Publisher Publisher
	Logger    *logging.Logger
	RNG       *rand.Rand
}

// Engine runs the per-cycle decision pipeline.
type Engine struct {
	// cycleMu serializes cycles: one logical step runs to completion before
	// the next begins.
	cycleMu sync.Mutex

	// stateMu guards the read-side copies served to the API layer.
	stateMu sync.RWMutex

	cfg    *config.Config
	logger *logging.Logger

	source    market.Source
	mesh      *mesh.Mesh
	instances []*strategy.Instance
	cons      *consensus.Engine
	sweep     *sweeper.Sweeper
	router    *router.Router
	gate      *gate.Gate
	exec      executor.OrderExecutor
	bus       *events.EventBus
	persister Persister
	publisher Publisher

	paused bool

	cycle            uint64
	startedAt        time.Time
	lastCycleAt      time.Time
	lastElapsed      time.Duration
	lastDirective    gate.Directive
	lastDecisions    map[string]consensus.Decision
	lastSweeps       []*sweeper.Result
	lastSnapshot     *market.Snapshot
	lastColonyCount  int
	frozenSeen       map[string]bool

	// Read-side copies refreshed at the end of every cycle. The API layer
	// only ever sees these, never live mesh or instance state.
	lastStats     meshStats
	lastColonies  []ColonyView
	lastInstances []InstanceView
}

// meshStats captures the mesh-derived headline figures at cycle end.
type meshStats struct {
	GlobalSignal      float64
	TotalEquity       float64
	NetProfit         float64
	PeakEquity        float64
	ProfitRatePerHour float64
}

// New constructs the engine and all core components from configuration.
func New(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	rng := deps.RNG
	if rng == nil {
		seed := cfg.EngineConfig.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	m := mesh.New(mesh.Config{
		ColonyCount:      cfg.MeshConfig.ColonyCount,
		WorkersPerColony: cfg.MeshConfig.WorkersPerColony,
		StartEquity:      cfg.MeshConfig.StartEquity,
		TargetPerWorker:  cfg.MeshConfig.TargetPerWorker,
		HarvestRate:      cfg.MeshConfig.HarvestRate,
		HarvestEvery:     cfg.MeshConfig.HarvestEvery,
		Plasticity:       cfg.MeshConfig.Plasticity,
		MinProfitTarget:  cfg.MeshConfig.MinProfitTarget,
		FullRiskProfit:   cfg.MeshConfig.FullRiskProfit,
		MaxConfidenceReq: cfg.MeshConfig.MaxConfidenceReq,
	}, rng, logger)

	instances := make([]*strategy.Instance, 0, cfg.StrategyConfig.InstanceCount)
	kinds := strategy.AllKinds
	for i := 0; i < cfg.StrategyConfig.InstanceCount; i++ {
		kind := kinds[i%len(kinds)]
		instances = append(instances, strategy.NewInstance(i, kind, cfg.StrategyConfig.StartEquity, cfg.StrategyConfig.TrustStep))
	}

	persister := deps.Persister
	if persister == nil {
		persister = NopPersister{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = NopPublisher{}
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewEventBus()
	}

	e := &Engine{
		cfg:             cfg,
		logger:          logger.WithComponent("engine"),
		source:          deps.Source,
		mesh:            m,
		instances:       instances,
		cons:            consensus.NewEngine(cfg.ConsensusConfig.Threshold),
		sweep:           sweeper.New(cfg.SweeperConfig.ThresholdPct, cfg.SweeperConfig.ReactionBudget, logger),
		router:          deps.Router,
		gate:            gate.New(&cfg.GateConfig, logger),
		exec:            deps.Executor,
		bus:             bus,
		persister:       persister,
		publisher:       publisher,
		startedAt:       time.Now(),
		lastDecisions:   map[string]consensus.Decision{},
		lastColonyCount: len(m.Colonies),
		frozenSeen:      map[string]bool{},
	}
	e.refreshReadState()
	return e
}

// refreshReadState recomputes the API-facing copies from live mesh and
// instance state. Callers must hold stateMu, or be the constructor.
func (e *Engine) refreshReadState() {
	e.lastStats = meshStats{
		GlobalSignal:      e.mesh.GlobalSignal(),
		TotalEquity:       e.mesh.TotalEquity(),
		NetProfit:         e.mesh.NetProfitTotal(),
		PeakEquity:        e.mesh.PeakEquity(),
		ProfitRatePerHour: e.mesh.ProfitRatePerHour(),
	}
	e.lastColonies = e.colonyViews()
	e.lastInstances = e.instanceViews()
}

// Run drives cycles on the configured interval until the context is done.
func (e *Engine) Run(ctx context.Context) error {
	e.bus.Publish(events.Event{Type: events.EventEngineStarted})
	e.logger.Info("engine started",
		"cycle_interval", e.cfg.EngineConfig.CycleInterval.String(),
		"instances", len(e.instances),
		"colonies", len(e.mesh.Colonies))

	ticker := time.NewTicker(e.cfg.EngineConfig.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.bus.Publish(events.Event{Type: events.EventEngineStopped})
			e.logger.Info("engine stopped", "cycles", e.Cycle())
			return ctx.Err()
		case <-ticker.C:
			if e.IsPaused() {
				continue
			}
			if err := e.RunCycle(ctx); err != nil {
				e.logger.Error("cycle failed", "error", err)
				e.bus.PublishError("engine", "cycle failed", err)
			}
		}
	}
}

// Pause stops new cycles from starting. The current cycle, if any, finishes.
func (e *Engine) Pause() {
	e.stateMu.Lock()
	e.paused = true
	e.stateMu.Unlock()
	e.bus.Publish(events.Event{Type: events.EventEnginePaused})
	e.logger.Info("engine paused")
}

// Resume re-enables cycles.
func (e *Engine) Resume() {
	e.stateMu.Lock()
	e.paused = false
	e.stateMu.Unlock()
	e.bus.Publish(events.Event{Type: events.EventEngineResumed})
	e.logger.Info("engine resumed")
}

// IsPaused reports whether the loop is skipping cycles.
func (e *Engine) IsPaused() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.paused
}

// Cycle returns the completed cycle count.
func (e *Engine) Cycle() uint64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.cycle
}

// Status returns the engine's headline numbers.
func (e *Engine) Status() Status {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return Status{
		Cycle:             e.cycle,
		Paused:            e.paused,
		GlobalSignal:      e.lastStats.GlobalSignal,
		TotalEquity:       e.lastStats.TotalEquity,
		NetProfit:         e.lastStats.NetProfit,
		PeakEquity:        e.lastStats.PeakEquity,
		ProfitRatePerHour: e.lastStats.ProfitRatePerHour,
		LastCycleAt:       e.lastCycleAt,
		LastCycleElapsed:  e.lastElapsed,
		StartedAt:         e.startedAt,
	}
}

// Directive returns the directive computed by the most recent cycle.
func (e *Engine) Directive() gate.Directive {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.lastDirective
}

// Decisions returns the most recent per-symbol consensus decisions.
func (e *Engine) Decisions() map[string]consensus.Decision {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make(map[string]consensus.Decision, len(e.lastDecisions))
	for k, v := range e.lastDecisions {
		out[k] = v
	}
	return out
}

// LastSweeps returns the sweep results from the most recent cycle.
func (e *Engine) LastSweeps() []*sweeper.Result {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]*sweeper.Result, len(e.lastSweeps))
	copy(out, e.lastSweeps)
	return out
}

// MarketSnapshot returns the snapshot used by the most recent cycle.
func (e *Engine) MarketSnapshot() *market.Snapshot {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.lastSnapshot
}

// Colonies returns the colony projections captured at the last cycle end.
func (e *Engine) Colonies() []ColonyView {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]ColonyView, len(e.lastColonies))
	copy(out, e.lastColonies)
	return out
}

// Instances returns the instance projections captured at the last cycle end.
func (e *Engine) Instances() []InstanceView {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]InstanceView, len(e.lastInstances))
	copy(out, e.lastInstances)
	return out
}

// colonyViews projects live mesh state. Only safe inside a cycle.
func (e *Engine) colonyViews() []ColonyView {
	views := make([]ColonyView, 0, len(e.mesh.Colonies))
	for _, c := range e.mesh.Colonies {
		views = append(views, ColonyView{
			ID:               c.ID,
			Generation:       c.Generation,
			WorkerCount:      len(c.Workers),
			TotalEquity:      c.TotalEquity(),
			HarvestedCapital: c.HarvestedCapital,
			Frozen:           c.Frozen,
		})
	}
	return views
}

func (e *Engine) instanceViews() []InstanceView {
	views := make([]InstanceView, 0, len(e.instances))
	for _, in := range e.instances {
		views = append(views, InstanceView{
			ID:            in.ID,
			Kind:          string(in.Kind),
			Equity:        in.Equity,
			WinRate:       in.WinRate(),
			TradeCount:    in.TradeCount,
			PositionCount: in.PositionCount(),
			TotalPnL:      in.TotalPnL(),
		})
	}
	return views
}

// snapshotState builds the persisted document from the read-side copies.
// Caller holds stateMu after refreshReadState.
func (e *Engine) snapshotState() *StateSnapshot {
	return &StateSnapshot{
		Version:      SnapshotVersion,
		Cycle:        e.cycle,
		TakenAt:      time.Now(),
		GlobalSignal: e.lastStats.GlobalSignal,
		TotalEquity:  e.lastStats.TotalEquity,
		NetProfit:    e.lastStats.NetProfit,
		PeakEquity:   e.lastStats.PeakEquity,
		Colonies:     e.lastColonies,
		Instances:    e.lastInstances,
		Directive:    e.lastDirective,
		Decisions:    e.lastDecisions,
	}
}
