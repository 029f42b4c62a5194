package sweeper

import (
	"math"
	"testing"
	"time"

	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/strategy"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func newInstanceWithPosition(t *testing.T, symbol string, entry, qty float64, side string) *strategy.Instance {
	t.Helper()
	in := strategy.NewInstance(0, strategy.KindTrendFollow, 1000, 0.1)
	if err := in.OpenPosition(symbol, entry, qty, side); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	return in
}

func TestScanThresholdInclusive(t *testing.T) {
	tests := []struct {
		name      string
		entry     float64
		current   float64
		side      string
		wantSwept bool
	}{
		{"exactly at threshold included", 100, 100.2, strategy.SideLong, true},
		{"above threshold included", 100, 101, strategy.SideLong, true},
		{"just below threshold excluded", 100, 100.19, strategy.SideLong, false},
		{"losing position excluded", 100, 99, strategy.SideLong, false},
		{"short at threshold included", 100, 99.8, strategy.SideShort, true},
		{"short moving against excluded", 100, 101, strategy.SideShort, false},
	}

	s := New(0.002, 50*time.Millisecond, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInstanceWithPosition(t, "X", tt.entry, 1, tt.side)
			candidates := s.Scan([]*strategy.Instance{in}, map[string]float64{"X": tt.current})
			if got := len(candidates) == 1; got != tt.wantSwept {
				t.Errorf("swept = %v, want %v (entry=%v current=%v side=%s)",
					got, tt.wantSwept, tt.entry, tt.current, tt.side)
			}
		})
	}
}

func TestScanSkipsSymbolsWithoutPrices(t *testing.T) {
	s := New(0.002, 50*time.Millisecond, testLogger())
	in := newInstanceWithPosition(t, "X", 100, 1, strategy.SideLong)

	candidates := s.Scan([]*strategy.Instance{in}, map[string]float64{"Y": 200})
	if len(candidates) != 0 {
		t.Errorf("got %d candidates with no price for the held symbol, want 0", len(candidates))
	}
}

func TestExecuteSweepSettlesAtomically(t *testing.T) {
	s := New(0.002, 50*time.Millisecond, testLogger())
	in := newInstanceWithPosition(t, "X", 100, 2, strategy.SideLong)

	candidates := s.Scan([]*strategy.Instance{in}, map[string]float64{"X": 101})
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	res := s.ExecuteSweep(candidates[0])
	if res == nil {
		t.Fatal("ExecuteSweep returned nil for a live candidate")
	}
	if res.ID == "" {
		t.Error("sweep result has no id")
	}
	if math.Abs(res.PnLValue-2.0) > 1e-9 {
		t.Errorf("pnl = %v, want 2.0", res.PnLValue)
	}
	if in.PositionCount() != 0 {
		t.Error("position remained in the book after sweep")
	}
	if math.Abs(in.Equity-1002) > 1e-9 {
		t.Errorf("equity = %v after sweep, want 1002", in.Equity)
	}
	if in.WinCount != 1 {
		t.Errorf("win not recorded: WinCount = %d", in.WinCount)
	}
}

func TestExecuteSweepGoneCandidate(t *testing.T) {
	s := New(0.002, 50*time.Millisecond, testLogger())
	in := newInstanceWithPosition(t, "X", 100, 1, strategy.SideLong)

	candidates := s.Scan([]*strategy.Instance{in}, map[string]float64{"X": 101})
	in.CloseAt("X", 101) // position closes between scan and sweep

	if res := s.ExecuteSweep(candidates[0]); res != nil {
		t.Errorf("ExecuteSweep settled a vanished position: %+v", res)
	}
}

func TestSweepAcrossInstances(t *testing.T) {
	s := New(0.002, 50*time.Millisecond, testLogger())

	winner := newInstanceWithPosition(t, "A", 100, 1, strategy.SideLong)
	flat := newInstanceWithPosition(t, "B", 100, 1, strategy.SideLong)

	results := s.Sweep(
		[]*strategy.Instance{winner, flat},
		map[string]float64{"A": 102, "B": 100},
	)

	if len(results) != 1 {
		t.Fatalf("got %d sweeps, want 1", len(results))
	}
	if results[0].Symbol != "A" {
		t.Errorf("swept %s, want A", results[0].Symbol)
	}
	if flat.PositionCount() != 1 {
		t.Error("flat position was swept")
	}
}
