package engine

import (
	"context"
	"time"

	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/gate"
	"mesh-trading-engine/internal/sweeper"
)

// SnapshotVersion tags the persisted state document schema.
const SnapshotVersion = 1

// ColonyView is a read-only projection of one colony for snapshots and the
// status API.
type ColonyView struct {
	ID               string  `json:"id"`
	Generation       int     `json:"generation"`
	WorkerCount      int     `json:"worker_count"`
	TotalEquity      float64 `json:"total_equity"`
	HarvestedCapital float64 `json:"harvested_capital"`
	Frozen           bool    `json:"frozen"`
}

// InstanceView is a read-only projection of one strategy instance.
type InstanceView struct {
	ID            int     `json:"id"`
	Kind          string  `json:"kind"`
	Equity        float64 `json:"equity"`
	WinRate       float64 `json:"win_rate"`
	TradeCount    int     `json:"trade_count"`
	PositionCount int     `json:"position_count"`
	TotalPnL      float64 `json:"total_pnl"`
}

// StateSnapshot is the versioned document handed to the persistence layer.
type StateSnapshot struct {
	Version      int                           `json:"version"`
	Cycle        uint64                        `json:"cycle"`
	TakenAt      time.Time                     `json:"taken_at"`
	GlobalSignal float64                       `json:"global_signal"`
	TotalEquity  float64                       `json:"total_equity"`
	NetProfit    float64                       `json:"net_profit"`
	PeakEquity   float64                       `json:"peak_equity"`
	Colonies     []ColonyView                  `json:"colonies"`
	Instances    []InstanceView                `json:"instances"`
	Directive    gate.Directive                `json:"directive"`
	Decisions    map[string]consensus.Decision `json:"decisions"`
}

// Status is the engine's headline numbers for the API layer.
type Status struct {
	Cycle             uint64        `json:"cycle"`
	Paused            bool          `json:"paused"`
	GlobalSignal      float64       `json:"global_signal"`
	TotalEquity       float64       `json:"total_equity"`
	NetProfit         float64       `json:"net_profit"`
	PeakEquity        float64       `json:"peak_equity"`
	ProfitRatePerHour float64       `json:"profit_rate_per_hour"`
	LastCycleAt       time.Time     `json:"last_cycle_at"`
	LastCycleElapsed  time.Duration `json:"last_cycle_elapsed"`
	StartedAt         time.Time     `json:"started_at"`
}

// Persister stores snapshots and sweep results. The engine degrades to a
// no-op when persistence is not configured.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap *StateSnapshot) error
	RecordSweeps(ctx context.Context, results []*sweeper.Result) error
}

// Publisher pushes per-cycle state to external consumers (dashboards,
// downstream services).
type Publisher interface {
	PublishDirective(ctx context.Context, d gate.Directive) error
	PublishDecisions(ctx context.Context, decisions map[string]consensus.Decision) error
}

// NopPersister drops everything.
type NopPersister struct{}

func (NopPersister) SaveSnapshot(context.Context, *StateSnapshot) error       { return nil }
func (NopPersister) RecordSweeps(context.Context, []*sweeper.Result) error    { return nil }

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishDirective(context.Context, gate.Directive) error { return nil }
func (NopPublisher) PublishDecisions(context.Context, map[string]consensus.Decision) error {
	return nil
}
