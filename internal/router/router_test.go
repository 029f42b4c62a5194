package router

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"mesh-trading-engine/internal/logging"
)

type fakeLister struct {
	venue string
	pairs []Pair
	err   error
}

func (f *fakeLister) Venue() string { return f.venue }
func (f *fakeLister) ListPairs() ([]Pair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pairs, nil
}

func testRouter(t *testing.T, listers ...PairLister) *Router {
	t.Helper()
	r := New(listers, nil, Config{
		TTL:          5 * time.Minute,
		FeeRate:      0.001,
		SlippageRate: 0.0005,
	}, logging.New(&logging.Config{Level: "ERROR", Output: "stderr"}))
	if err := r.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return r
}

func basicVenue() *fakeLister {
	return &fakeLister{venue: "venue1", pairs: []Pair{
		{Base: "A", Quote: "USD", Symbol: "AUSD"},
		{Base: "B", Quote: "USD", Symbol: "BUSD"},
		{Base: "C", Quote: "B", Symbol: "CB"},
	}}
}

func TestFindPathTwoHopThroughQuote(t *testing.T) {
	// A-USD and USD-B exist, A-B does not: expect [A->USD, USD->B].
	r := testRouter(t, basicVenue())

	path, err := r.FindPath("A", "B", "")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("path length = %d, want 2: %+v", len(path), path)
	}
	if path[0].FromAsset != "A" || path[0].ToAsset != "USD" {
		t.Errorf("hop 0 = %s->%s, want A->USD", path[0].FromAsset, path[0].ToAsset)
	}
	if path[1].FromAsset != "USD" || path[1].ToAsset != "B" {
		t.Errorf("hop 1 = %s->%s, want USD->B", path[1].FromAsset, path[1].ToAsset)
	}
	if path[0].Direction != DirectionSell {
		t.Errorf("hop 0 direction = %s, want SELL (base->quote)", path[0].Direction)
	}
	if path[1].Direction != DirectionBuy {
		t.Errorf("hop 1 direction = %s, want BUY (quote->base)", path[1].Direction)
	}
}

func TestFindPathSameAssetEmptyPath(t *testing.T) {
	r := testRouter(t, basicVenue())
	path, err := r.FindPath("A", "A", "")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("path length = %d for from==to, want 0", len(path))
	}
}

func TestFindPathUnreachable(t *testing.T) {
	r := testRouter(t, basicVenue())
	_, err := r.FindPath("A", "ZZZ", "")
	if !errors.Is(err, ErrNoPath) {
		t.Errorf("err = %v, want ErrNoPath", err)
	}
}

func TestFindPathNeverRepeatsAssets(t *testing.T) {
	// Dense graph with plenty of cycles.
	pairs := []Pair{}
	assets := []string{"A", "B", "C", "D", "E"}
	for i, a := range assets {
		for _, b := range assets[i+1:] {
			pairs = append(pairs, Pair{Base: a, Quote: b, Symbol: a + b})
		}
	}
	r := testRouter(t, &fakeLister{venue: "v", pairs: pairs})

	path, err := r.FindPath("A", "E", "")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	seen := map[string]bool{"A": true}
	for _, e := range path {
		if seen[e.ToAsset] {
			t.Fatalf("asset %s repeated in path %+v", e.ToAsset, path)
		}
		seen[e.ToAsset] = true
	}
}

func TestFindPathPrefersVenueOnTies(t *testing.T) {
	v1 := &fakeLister{venue: "venue1", pairs: []Pair{{Base: "A", Quote: "B", Symbol: "AB"}}}
	v2 := &fakeLister{venue: "venue2", pairs: []Pair{{Base: "A", Quote: "B", Symbol: "AB"}}}
	r := testRouter(t, v1, v2)

	path, err := r.FindPath("A", "B", "venue2")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if path[0].Venue != "venue2" {
		t.Errorf("hop venue = %s, want preferred venue2", path[0].Venue)
	}
}

func TestFindAllPathsBoundedAndAcyclic(t *testing.T) {
	pairs := []Pair{
		{Base: "A", Quote: "USD", Symbol: "AUSD"},
		{Base: "B", Quote: "USD", Symbol: "BUSD"},
		{Base: "A", Quote: "EUR", Symbol: "AEUR"},
		{Base: "B", Quote: "EUR", Symbol: "BEUR"},
		{Base: "EUR", Quote: "USD", Symbol: "EURUSD"},
	}
	r := testRouter(t, &fakeLister{venue: "v", pairs: pairs})

	paths := r.FindAllPaths("A", "B", 3)
	if len(paths) == 0 {
		t.Fatal("no paths found")
	}
	for _, p := range paths {
		if len(p) > 3 {
			t.Errorf("path exceeds maxHops: %+v", p)
		}
		seen := map[string]bool{"A": true}
		for _, e := range p {
			if seen[e.ToAsset] {
				t.Errorf("cyclic path returned: %+v", p)
			}
			seen[e.ToAsset] = true
		}
	}
}

func TestRebuildExcludesBlockedAssets(t *testing.T) {
	lister := &fakeLister{venue: "v", pairs: []Pair{
		{Base: "BAD", Quote: "USD", Symbol: "BADUSD"},
		{Base: "A", Quote: "USD", Symbol: "AUSD"},
	}}
	r := New([]PairLister{lister}, map[string][]string{"v": {"BAD"}}, Config{
		TTL: time.Minute, FeeRate: 0.001, SlippageRate: 0.0005,
	}, logging.New(&logging.Config{Level: "ERROR", Output: "stderr"}))
	if err := r.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if _, err := r.FindPath("BAD", "USD", ""); !errors.Is(err, ErrNoPath) {
		t.Errorf("blocked asset is routable: err = %v", err)
	}
	if _, err := r.FindPath("A", "USD", ""); err != nil {
		t.Errorf("unblocked asset not routable: %v", err)
	}
}

func TestRebuildFailureRetainsPreviousGraph(t *testing.T) {
	lister := basicVenue()
	r := testRouter(t, lister)
	before := r.AssetCount()

	lister.err = fmt.Errorf("venue down")
	if err := r.Rebuild(); err == nil {
		t.Error("Rebuild succeeded with every venue failing")
	}
	if r.AssetCount() != before {
		t.Errorf("asset count changed from %d to %d after failed rebuild", before, r.AssetCount())
	}
	if _, err := r.FindPath("A", "B", ""); err != nil {
		t.Errorf("previous graph unusable after failed rebuild: %v", err)
	}
}

func TestEstimateCostSequentialDeductions(t *testing.T) {
	r := testRouter(t, basicVenue())
	path, err := r.FindPath("A", "B", "")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	prices := map[string]float64{"AUSD": 2.0, "BUSD": 4.0}
	est, err := r.EstimateCost(path, 100, prices)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	// Hop 1: sell 100 A at 2.0 -> 200 USD, minus 0.1% fee and 0.05% slippage.
	hop1 := 200 * (1 - 0.001 - 0.0005)
	// Hop 2: buy B at 4.0 -> hop1/4, minus the same rates.
	want := (hop1 / 4.0) * (1 - 0.001 - 0.0005)

	if math.Abs(est.Output-want) > 1e-9 {
		t.Errorf("output = %v, want %v", est.Output, want)
	}
	if math.Abs(est.Efficiency-want/100) > 1e-12 {
		t.Errorf("efficiency = %v, want %v", est.Efficiency, want/100)
	}
	if est.Fees <= 0 || est.Slippage <= 0 {
		t.Errorf("fees/slippage not accumulated: %+v", est)
	}
}

func TestEstimateCostMissingPrice(t *testing.T) {
	r := testRouter(t, basicVenue())
	path, _ := r.FindPath("A", "B", "")

	if _, err := r.EstimateCost(path, 100, map[string]float64{"AUSD": 2.0}); err == nil {
		t.Error("EstimateCost succeeded with a missing pair price")
	}
}

func TestGetBestPathPrefersProvenRoutes(t *testing.T) {
	// Two distinct 2-hop routes A->B (via USD and via EUR).
	pairs := []Pair{
		{Base: "A", Quote: "USD", Symbol: "AUSD"},
		{Base: "B", Quote: "USD", Symbol: "BUSD"},
		{Base: "A", Quote: "EUR", Symbol: "AEUR"},
		{Base: "B", Quote: "EUR", Symbol: "BEUR"},
	}
	r := testRouter(t, &fakeLister{venue: "v", pairs: pairs})

	var eurPath Path
	for _, p := range r.FindAllPaths("A", "B", 2) {
		if p[0].PairSymbol == "AEUR" {
			eurPath = p
		}
	}
	if eurPath == nil {
		t.Fatal("EUR route not found")
	}

	// Record heavy successful usage of the EUR route.
	for i := 0; i < 20; i++ {
		r.RecordPathUsage(eurPath, 1.5, true)
	}

	best, err := r.GetBestPath("A", "B", 2)
	if err != nil {
		t.Fatalf("GetBestPath: %v", err)
	}
	if best[0].PairSymbol != "AEUR" {
		t.Errorf("best path goes through %s, want the proven AEUR route", best[0].PairSymbol)
	}

	count, avgProfit, successRate := r.PathUsage(eurPath)
	if count != 20 {
		t.Errorf("usage count = %d, want 20", count)
	}
	if math.Abs(avgProfit-1.5) > 1e-9 {
		t.Errorf("avgProfit = %v, want 1.5", avgProfit)
	}
	if successRate != 1.0 {
		t.Errorf("successRate = %v, want 1.0", successRate)
	}
}

func TestRecordedSlippageScalesWithHops(t *testing.T) {
	pairs := []Pair{
		{Base: "A", Quote: "USD", Symbol: "AUSD"},
		{Base: "B", Quote: "USD", Symbol: "BUSD"},
		{Base: "C", Quote: "B", Symbol: "CB"},
	}
	r := testRouter(t, &fakeLister{venue: "v", pairs: pairs})

	short, err := r.FindPath("A", "USD", "")
	if err != nil {
		t.Fatalf("FindPath short: %v", err)
	}
	long, err := r.FindPath("A", "C", "")
	if err != nil {
		t.Fatalf("FindPath long: %v", err)
	}
	if len(short) != 1 || len(long) != 3 {
		t.Fatalf("hop counts = %d and %d, want 1 and 3", len(short), len(long))
	}

	r.RecordPathUsage(short, 0, true)
	r.RecordPathUsage(long, 0, true)

	r.mu.RLock()
	shortSlip := r.stats[pathKey(short)].avgSlippage
	longSlip := r.stats[pathKey(long)].avgSlippage
	r.mu.RUnlock()

	if math.Abs(shortSlip-0.0005) > 1e-12 {
		t.Errorf("1-hop avgSlippage = %v, want 0.0005", shortSlip)
	}
	if math.Abs(longSlip-0.0015) > 1e-12 {
		t.Errorf("3-hop avgSlippage = %v, want 0.0015", longSlip)
	}
	if longSlip <= shortSlip {
		t.Error("longer route did not accrue more slippage")
	}
}
