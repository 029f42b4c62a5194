package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/executor"
	"mesh-trading-engine/internal/gate"
	"mesh-trading-engine/internal/market"
	"mesh-trading-engine/internal/mesh"
	"mesh-trading-engine/internal/strategy"
)

// quoteAssets are the quote currencies recognized when splitting a pair
// symbol into base and quote. Longest match wins.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "TUSD", "EUR", "BTC", "ETH", "BNB", "USD"}

// RunCycle executes one full decision cycle. The sub-step order is
// load-bearing: the sweeper must run before entries so freed capital and
// position slots are visible to the gate, and consensus must see signals
// produced after mesh adaptation.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()

	snap, err := e.source.Fetch()
	if err != nil {
		// Recoverable: skip the cycle and retry on the next tick.
		e.logger.Warn("market snapshot unavailable, skipping cycle", "error", err)
		return nil
	}
	prices := make(map[string]float64, len(snap.Tickers))
	for sym, tk := range snap.Tickers {
		prices[sym] = tk.Price
	}

	if e.router != nil {
		if err := e.router.RefreshIfStale(); err != nil {
			e.logger.Warn("asset graph refresh failed, routing on stale graph", "error", err)
		}
	}

	// 1. Sweep profits before anything else touches the books.
	sweeps := e.sweep.Sweep(e.instances, prices)
	for _, r := range sweeps {
		e.bus.PublishSweepExecuted(r.InstanceID, r.Symbol, r.PnLValue, r.PnLPct)
	}
	if len(sweeps) > 0 {
		if err := e.persister.RecordSweeps(ctx, sweeps); err != nil {
			e.logger.Warn("sweep results not persisted", "error", err)
		}
	}

	// 2. Strategy instances evaluate the snapshot and vote.
	votes, bestBuyer := e.collectVotes(snap)

	// 3. Mesh propagation and adaptation.
	global := e.mesh.Step(aggregateFeatures(snap))

	// 4. Consensus over the post-adaptation votes.
	decisions := e.cons.ComputeAll(votes)
	for _, d := range decisions {
		e.bus.PublishConsensusUpdate(d.Symbol, string(d.Action), d.Strength, d.Confidence, d.VoteCount)
	}

	// 5. Gate translation.
	directive := e.gate.Evaluate(global, snap)
	e.bus.PublishDirectiveUpdate(string(directive.Mode), directive.AllowEntries, directive.BudgetScale, directive.ConfidenceFloor)

	// 6. Exits, then entries, under the soft cycle budget.
	deadline := start.Add(e.cfg.EngineConfig.CycleSoftBudget)
	e.executeDecisions(ctx, decisions, directive, bestBuyer, snap, prices, deadline)

	// Publish and persist read-side state.
	e.stateMu.Lock()
	e.cycle++
	e.lastCycleAt = time.Now()
	e.lastElapsed = time.Since(start)
	e.lastDirective = directive
	e.lastDecisions = decisions
	e.lastSweeps = sweeps
	e.lastSnapshot = snap
	cycle := e.cycle
	e.noteColonyChanges()
	e.refreshReadState()
	stateSnap := e.snapshotState()
	totalEquity := e.lastStats.TotalEquity
	e.stateMu.Unlock()

	if err := e.publisher.PublishDirective(ctx, directive); err != nil {
		e.logger.Warn("directive not published", "error", err)
	}
	if err := e.publisher.PublishDecisions(ctx, decisions); err != nil {
		e.logger.Warn("decisions not published", "error", err)
	}
	if e.cfg.EngineConfig.SnapshotEvery > 0 && cycle%uint64(e.cfg.EngineConfig.SnapshotEvery) == 0 {
		if err := e.persister.SaveSnapshot(ctx, stateSnap); err != nil {
			e.logger.Warn("state snapshot not persisted", "error", err)
		}
	}

	e.bus.PublishCycleCompleted(cycle, global, totalEquity, time.Since(start))
	e.logger.Debug("cycle completed",
		"cycle", cycle,
		"global_signal", global,
		"decisions", len(decisions),
		"sweeps", len(sweeps),
		"elapsed_ms", time.Since(start).Milliseconds())

	return nil
}

// collectVotes runs every instance over every symbol. Instances observe each
// other's adapted signals, so trust and the 80/20 blend see this cycle's
// output, then each signal becomes a vote.
func (e *Engine) collectVotes(snap *market.Snapshot) ([]consensus.Vote, map[string]*strategy.Instance) {
	for _, in := range e.instances {
		for _, other := range e.instances {
			if in != other {
				in.Observe(other)
			}
		}
	}

	symbols := make([]string, 0, len(snap.Tickers))
	for sym := range snap.Tickers {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	votes := make([]consensus.Vote, 0, len(symbols)*len(e.instances))
	bestBuyer := make(map[string]*strategy.Instance)
	bestConf := make(map[string]float64)

	for _, sym := range symbols {
		tk := snap.Tickers[sym]
		for _, in := range e.instances {
			raw, conf := in.Evaluate(sym, tk.Price, tk.Change24hPct, tk.Volume, tk.Momentum)
			adapted := in.AdaptSignal(raw, sym)
			for _, other := range e.instances {
				if other != in {
					other.RecordObserved(sym, in.Kind, adapted)
				}
			}

			action := consensus.VoteFromSignal(adapted)
			votes = append(votes, consensus.Vote{
				SourceInstanceID: in.ID,
				Symbol:           sym,
				Action:           action,
				Strength:         adapted,
				Confidence:       conf,
				WinRate:          in.WinRate(),
			})

			if action == consensus.ActionBuy && conf > bestConf[sym] {
				bestConf[sym] = conf
				bestBuyer[sym] = in
			}
		}
	}
	return votes, bestBuyer
}

// executeDecisions closes books on SELL consensus and opens entries on BUY
// consensus, honoring the directive and the soft cycle deadline. Entry
// evaluations remaining past the deadline are deferred to the next cycle.
func (e *Engine) executeDecisions(ctx context.Context, decisions map[string]consensus.Decision, directive gate.Directive, bestBuyer map[string]*strategy.Instance, snap *market.Snapshot, prices map[string]float64, deadline time.Time) {
	symbols := make([]string, 0, len(decisions))
	for sym := range decisions {
		symbols = append(symbols, sym)
	}
	// Strongest consensus first, so the entry budget goes to the best ideas.
	sort.Slice(symbols, func(i, j int) bool {
		di, dj := decisions[symbols[i]], decisions[symbols[j]]
		if di.Confidence != dj.Confidence {
			return di.Confidence > dj.Confidence
		}
		return symbols[i] < symbols[j]
	})

	entries := 0
	for _, sym := range symbols {
		if time.Now().After(deadline) {
			e.logger.Warn("cycle soft budget exceeded, deferring remaining entries", "pending", len(symbols))
			return
		}

		dec := decisions[sym]
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}

		switch dec.Action {
		case consensus.ActionSell:
			e.closeLongs(ctx, sym, price, snap.Tickers[sym].Venue)
		case consensus.ActionBuy:
			if e.openEntry(ctx, dec, directive, bestBuyer[sym], snap.Tickers[sym], entries) {
				entries++
			}
		}
	}
}

// closeLongs settles every instance's long position on the symbol and sends
// one aggregate sell to the venue.
func (e *Engine) closeLongs(ctx context.Context, symbol string, price float64, venue string) {
	var totalQty float64
	for _, in := range e.instances {
		pos, ok := in.Positions()[symbol]
		if !ok || pos.Side != strategy.SideLong {
			continue
		}
		if _, closed := in.CloseAt(symbol, price); closed {
			totalQty += pos.Quantity
		}
	}
	if totalQty <= 0 || e.exec == nil {
		return
	}

	res, err := e.exec.PlaceOrder(ctx, executor.OrderRequest{
		Symbol:   symbol,
		Side:     executor.SideSell,
		Venue:    venue,
		Quantity: totalQty,
	})
	if err != nil {
		e.logger.Warn("exit order failed, books already settled", "symbol", symbol, "error", err)
		e.bus.PublishError("engine", "exit order failed", err)
		return
	}
	e.bus.PublishOrderPlaced(res.OrderID, symbol, string(executor.SideSell), venue, totalQty)
	if res.Executed {
		e.bus.PublishOrderFilled(res.OrderID, symbol, res.ExecutedPrice, res.ExecutedQty)
	}
}

// openEntry runs one BUY candidate through the mesh's growth rule, the gate,
// and conversion routing, then places the order and books the position on
// the highest-confidence buying instance. Returns true when an entry was
// committed.
func (e *Engine) openEntry(ctx context.Context, dec consensus.Decision, directive gate.Directive, buyer *strategy.Instance, tk market.Ticker, entriesSoFar int) bool {
	if buyer == nil || e.exec == nil {
		return false
	}

	orderQuote := e.cfg.EngineConfig.BaseOrderQuote * directive.BudgetScale
	if orderQuote <= 0 {
		return false
	}

	// Rough expected net profit: strength-scaled one-percent move on the
	// order size. Feeds the mesh's monotone risk rule.
	expectedNet := orderQuote * math.Abs(dec.Strength) * 0.01
	if !e.mesh.ShouldTakeTrade(expectedNet, dec.Confidence) {
		return false
	}
	if !e.gate.PermitsEntry(directive, dec, entriesSoFar, e.totalPositions()) {
		return false
	}

	// Resolve funding when the pair's quote asset is not what we hold.
	quote := quoteAssetOf(dec.Symbol)
	funding := e.cfg.EngineConfig.FundingAsset
	if e.router != nil && quote != "" && quote != funding {
		path, err := e.router.GetBestPath(funding, quote, e.cfg.RouterConfig.MaxHops)
		if err != nil {
			e.logger.Warn("no conversion route for entry, skipping",
				"symbol", dec.Symbol, "from", funding, "to", quote, "error", err)
			return false
		}
		e.router.RecordPathUsage(path, 0, true)
		e.bus.PublishConversionRouted(funding, quote, len(path), orderQuote)
	}

	res, err := e.exec.PlaceOrder(ctx, executor.OrderRequest{
		Symbol:      dec.Symbol,
		Side:        executor.SideBuy,
		Venue:       tk.Venue,
		QuoteAmount: orderQuote,
	})
	if err != nil {
		e.logger.Warn("entry order failed", "symbol", dec.Symbol, "error", err)
		e.bus.PublishError("engine", "entry order failed", err)
		return false
	}
	e.bus.PublishOrderPlaced(res.OrderID, dec.Symbol, string(executor.SideBuy), tk.Venue, res.ExecutedQty)
	if !res.Executed {
		return false
	}
	e.bus.PublishOrderFilled(res.OrderID, dec.Symbol, res.ExecutedPrice, res.ExecutedQty)

	if err := buyer.OpenPosition(dec.Symbol, res.ExecutedPrice, res.ExecutedQty, strategy.SideLong); err != nil {
		e.logger.Warn("entry not booked", "symbol", dec.Symbol, "instance", buyer.ID, "error", err)
		return false
	}
	e.logger.Info("entry opened",
		"symbol", dec.Symbol,
		"instance", buyer.ID,
		"kind", string(buyer.Kind),
		"price", res.ExecutedPrice,
		"qty", res.ExecutedQty,
		"mode", string(directive.Mode))
	return true
}

func (e *Engine) totalPositions() int {
	total := 0
	for _, in := range e.instances {
		total += in.PositionCount()
	}
	return total
}

// noteColonyChanges publishes events for colonies spawned or frozen since
// the previous cycle. Caller holds stateMu.
func (e *Engine) noteColonyChanges() {
	for _, c := range e.mesh.Colonies[e.lastColonyCount:] {
		e.bus.PublishColonySplit("", c.ID, c.Generation, c.TotalEquity())
	}
	e.lastColonyCount = len(e.mesh.Colonies)

	for _, c := range e.mesh.Colonies {
		if c.Frozen && !e.frozenSeen[c.ID] {
			e.frozenSeen[c.ID] = true
			e.bus.PublishColonyFrozen(c.ID, "capital conservation violated during harvest")
		}
	}
}

// aggregateFeatures condenses the snapshot into the mesh's feature vector:
// mean momentum, mean 24h change as trend, and cross-sectional dispersion of
// changes as volatility.
func aggregateFeatures(snap *market.Snapshot) mesh.Features {
	n := float64(len(snap.Tickers))
	if n == 0 {
		return mesh.Features{}
	}

	var sumPrice, sumMom, sumChg float64
	for _, tk := range snap.Tickers {
		sumPrice += tk.Price
		sumMom += tk.Momentum
		sumChg += tk.Change24hPct
	}
	meanChg := sumChg / n

	var variance float64
	for _, tk := range snap.Tickers {
		d := tk.Change24hPct - meanChg
		variance += d * d
	}
	variance /= n

	return mesh.Features{
		Price:      sumPrice / n,
		Momentum:   sumMom / n,
		Trend:      meanChg / 100,
		Volatility: math.Sqrt(variance) / 100,
	}
}

// quoteAssetOf splits a pair symbol on its recognized quote suffix. Returns
// "" when no known quote matches.
func quoteAssetOf(symbol string) string {
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return q
		}
	}
	return ""
}
