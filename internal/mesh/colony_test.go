package mesh

import (
	"math"
	"math/rand"
	"testing"
)

func testColonyConfig() ColonyConfig {
	return ColonyConfig{
		WorkerCount:     8,
		WorkerEquity:    100,
		TargetPerWorker: 150,
		HarvestRate:     0.10,
		Plasticity:      0.05,
	}
}

func TestHarvestConservesCapital(t *testing.T) {
	c := NewColony("c0", 0, testColonyConfig())

	// Give some workers profit, leave others flat or down.
	c.Workers[0].Equity = 140
	c.Workers[1].Equity = 120
	c.Workers[2].Equity = 90

	before := c.TotalEquity()
	harvested, err := c.HarvestCapital()
	if err != nil {
		t.Fatalf("HarvestCapital returned error: %v", err)
	}
	after := c.TotalEquity()

	if harvested <= 0 {
		t.Fatalf("expected positive harvest, got %v", harvested)
	}
	if math.Abs(before-(after+harvested)) > 1e-9 {
		t.Errorf("conservation broken: before=%v after=%v harvested=%v", before, after, harvested)
	}
	if c.HarvestedCapital != harvested {
		t.Errorf("HarvestedCapital = %v, want %v", c.HarvestedCapital, harvested)
	}

	// Harvest equals 10% of total profit.
	profit := before - c.StartEquity()
	if math.Abs(harvested-0.10*profit) > 1e-9 {
		t.Errorf("harvest = %v, want 10%% of profit %v", harvested, profit)
	}
}

func TestHarvestSkipsUnprofitableColony(t *testing.T) {
	c := NewColony("c0", 0, testColonyConfig())
	c.Workers[0].Equity = 80 // net loss overall

	harvested, err := c.HarvestCapital()
	if err != nil {
		t.Fatalf("HarvestCapital returned error: %v", err)
	}
	if harvested != 0 {
		t.Errorf("harvested %v from an unprofitable colony, want 0", harvested)
	}
}

func TestHarvestOnlyDeductsFromProfitableWorkers(t *testing.T) {
	c := NewColony("c0", 0, testColonyConfig())
	c.Workers[0].Equity = 200
	c.Workers[1].Equity = 50

	if _, err := c.HarvestCapital(); err != nil {
		t.Fatalf("HarvestCapital returned error: %v", err)
	}

	if c.Workers[1].Equity != 50 {
		t.Errorf("losing worker's equity changed to %v, harvest must not touch it", c.Workers[1].Equity)
	}
}

func TestCanSplitRequiresMajorityAtTargetAndHarvestedCapital(t *testing.T) {
	tests := []struct {
		name      string
		atTarget  int
		harvested float64
		want      bool
	}{
		{"half at target with capital", 4, 25, true},
		{"majority at target with capital", 6, 25, true},
		{"minority at target", 3, 25, false},
		{"majority at target without capital", 6, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewColony("c0", 0, testColonyConfig())
			for i := 0; i < tt.atTarget; i++ {
				c.Workers[i].Equity = c.TargetPerWorker
			}
			c.HarvestedCapital = tt.harvested

			if got := c.CanSplit(); got != tt.want {
				t.Errorf("CanSplit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitSeedsChildAndResetsPool(t *testing.T) {
	c := NewColony("c0", 2, testColonyConfig())
	c.HarvestedCapital = 80

	child := c.Split("c1", 8)

	if c.HarvestedCapital != 0 {
		t.Errorf("parent HarvestedCapital = %v after split, want 0", c.HarvestedCapital)
	}
	if child.Generation != 3 {
		t.Errorf("child generation = %d, want 3", child.Generation)
	}
	if math.Abs(child.TotalEquity()-80) > 1e-9 {
		t.Errorf("child seeded with %v, want 80", child.TotalEquity())
	}
	if len(child.Workers) != 8 {
		t.Errorf("child has %d workers, want 8", len(child.Workers))
	}
}

func TestFrozenColonyDoesNotTrade(t *testing.T) {
	c := NewColony("c0", 0, testColonyConfig())
	c.Frozen = true
	rng := rand.New(rand.NewSource(1))

	before := c.TotalEquity()
	signal := c.Step(Features{Price: 100, Momentum: 0.1, Trend: 0.2}, rng)

	if signal != 0 {
		t.Errorf("frozen colony produced signal %v, want 0", signal)
	}
	if c.TotalEquity() != before {
		t.Errorf("frozen colony equity changed from %v to %v", before, c.TotalEquity())
	}
}

func TestStepTradesOnlyWorkersBelowTarget(t *testing.T) {
	c := NewColony("c0", 0, testColonyConfig())
	c.Workers[0].Equity = c.TargetPerWorker + 10
	rng := rand.New(rand.NewSource(42))

	c.Step(Features{Price: 100, Momentum: 0.2, Trend: 0.1, Volatility: 0.05}, rng)

	if c.Workers[0].TradeCount != 0 {
		t.Errorf("worker at target traded %d times, want 0", c.Workers[0].TradeCount)
	}
	traded := 0
	for _, w := range c.Workers[1:] {
		traded += w.TradeCount
	}
	if traded == 0 {
		t.Error("no below-target worker traded on a non-zero colony signal")
	}
}

func TestWorkerSignalIsDeterministicAndBounded(t *testing.T) {
	w := NewWorker("w0", "c0", 100, 3)
	f := Features{Momentum: 0.05, Trend: -0.2, Volatility: 0.4}

	first := w.ComputeSignal(f)
	for i := 0; i < 5; i++ {
		if got := w.ComputeSignal(f); got != first {
			t.Fatalf("signal not deterministic: %v vs %v", got, first)
		}
	}
	if first < -1 || first > 1 {
		t.Errorf("signal %v outside [-1,1]", first)
	}
}

func TestWorkersWithDifferentBiasDisagree(t *testing.T) {
	a := NewWorker("a", "c0", 100, 0)
	b := NewWorker("b", "c0", 100, 7)
	f := Features{Momentum: 0.01, Trend: 0.01, Volatility: 0.01}

	if a.ComputeSignal(f) == b.ComputeSignal(f) {
		t.Error("workers with different bias indexes produced identical signals")
	}
}

func TestSimulatedTradeSizesFromPrimeTable(t *testing.T) {
	w := NewWorker("w0", "c0", 1000, 0) // prime 2 -> 2% of equity
	rng := rand.New(rand.NewSource(1))

	res := w.ExecuteSimulatedTrade(0.8, 100, rng)
	if !res.Executed {
		t.Fatal("trade was not executed")
	}
	if res.Size != 20 {
		t.Errorf("position size = %v, want 20 (2%% of 1000)", res.Size)
	}
	if res.Direction != 1 {
		t.Errorf("direction = %d for positive signal, want 1", res.Direction)
	}
}
