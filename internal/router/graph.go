// Package router builds the cross-venue asset graph and finds multi-hop
// conversion paths between assets that are not directly tradable.
package router

import (
	"fmt"
	"sync"
	"time"

	"mesh-trading-engine/internal/logging"
)

// Direction describes which side of the pair a hop trades.
type Direction string

const (
	DirectionSell Direction = "SELL" // base -> quote
	DirectionBuy  Direction = "BUY"  // quote -> base
)

// Edge is one tradable hop: converting FromAsset into ToAsset on a venue
// through the given pair. Immutable once the graph is built.
type Edge struct {
	FromAsset  string    `json:"from_asset"`
	ToAsset    string    `json:"to_asset"`
	Venue      string    `json:"venue"`
	PairSymbol string    `json:"pair_symbol"`
	Direction  Direction `json:"direction"`
}

// Path is an ordered hop sequence. The empty path means from == to.
type Path []Edge

// Pair is one tradable market on a venue, as reported by the venue's pair
// list collaborator.
type Pair struct {
	Base   string
	Quote  string
	Symbol string
}

// PairLister supplies a venue's live tradable pairs. The only I/O the router
// touches, and only during rebuilds.
type PairLister interface {
	Venue() string
	ListPairs() ([]Pair, error)
}

// Router holds the asset graph and per-path usage history. The graph is
// rebuilt on a TTL; a failed rebuild keeps the previous (stale-but-valid)
// graph rather than ever operating on an empty one.
type Router struct {
	mu sync.RWMutex

	listers   []PairLister
	blockList map[string]map[string]bool // venue -> blocked asset set
	adjacency map[string][]Edge          // asset -> outgoing edges
	builtAt   time.Time
	ttl       time.Duration

	feeRate      float64
	slippageRate float64

	stats  map[string]*pathStats
	logger *logging.Logger
}

// Config carries router tunables.
type Config struct {
	TTL          time.Duration
	FeeRate      float64
	SlippageRate float64
}

// New creates a router over the given venue pair listers.
func New(listers []PairLister, blockList map[string][]string, cfg Config, logger *logging.Logger) *Router {
	blocked := make(map[string]map[string]bool, len(blockList))
	for venue, assets := range blockList {
		set := make(map[string]bool, len(assets))
		for _, a := range assets {
			set[a] = true
		}
		blocked[venue] = set
	}

	return &Router{
		listers:      listers,
		blockList:    blocked,
		adjacency:    make(map[string][]Edge),
		ttl:          cfg.TTL,
		feeRate:      cfg.FeeRate,
		slippageRate: cfg.SlippageRate,
		stats:        make(map[string]*pathStats),
		logger:       logger.WithComponent("router"),
	}
}

// Rebuild queries every venue's pair list and rebuilds the graph. Each pair
// contributes two directed edges: SELL base->quote and BUY quote->base.
// Blocked assets contribute nothing. When every venue fails, the previous
// graph is retained.
func (r *Router) Rebuild() error {
	adjacency := make(map[string][]Edge)
	venuesOK := 0

	for _, lister := range r.listers {
		venue := lister.Venue()
		pairs, err := lister.ListPairs()
		if err != nil {
			r.logger.Warn("Pair list fetch failed, venue skipped", "venue", venue, "error", err)
			continue
		}
		venuesOK++

		blocked := r.blockList[venue]
		for _, p := range pairs {
			if blocked[p.Base] || blocked[p.Quote] {
				continue
			}
			adjacency[p.Base] = append(adjacency[p.Base], Edge{
				FromAsset: p.Base, ToAsset: p.Quote,
				Venue: venue, PairSymbol: p.Symbol, Direction: DirectionSell,
			})
			adjacency[p.Quote] = append(adjacency[p.Quote], Edge{
				FromAsset: p.Quote, ToAsset: p.Base,
				Venue: venue, PairSymbol: p.Symbol, Direction: DirectionBuy,
			})
		}
	}

	if venuesOK == 0 {
		return fmt.Errorf("asset graph rebuild failed: no venue pair list reachable")
	}

	r.mu.Lock()
	r.adjacency = adjacency
	r.builtAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("Asset graph rebuilt", "assets", len(adjacency), "venues", venuesOK)
	return nil
}

// RefreshIfStale rebuilds when the graph is past its TTL. A rebuild failure
// leaves the old graph in place and is reported to the caller.
func (r *Router) RefreshIfStale() error {
	r.mu.RLock()
	stale := time.Since(r.builtAt) > r.ttl
	r.mu.RUnlock()

	if !stale {
		return nil
	}
	if err := r.Rebuild(); err != nil {
		r.logger.Warn("Graph rebuild failed, retaining previous graph", "error", err)
		return err
	}
	return nil
}

// AssetCount returns the number of assets currently in the graph.
func (r *Router) AssetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adjacency)
}

// edgesFrom returns the outgoing edges for an asset under the read lock held
// by the caller.
func (r *Router) edgesFrom(asset string) []Edge {
	return r.adjacency[asset]
}
