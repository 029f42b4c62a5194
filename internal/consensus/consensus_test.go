package consensus

import (
	"math"
	"testing"
)

func TestComputeConsensusSplitVoteDowngradesToHold(t *testing.T) {
	// Three instances split BUY/SELL/HOLD: no action reaches the 60% share,
	// so the decision is HOLD with strength halved.
	e := NewEngine(0.6)
	votes := []Vote{
		{SourceInstanceID: 0, Symbol: "X", Action: ActionBuy, Strength: 0.8, Confidence: 0.9, WinRate: 0.6},
		{SourceInstanceID: 1, Symbol: "X", Action: ActionSell, Strength: 0.5, Confidence: 0.5, WinRate: 0.4},
		{SourceInstanceID: 2, Symbol: "X", Action: ActionHold, Strength: 0.1, Confidence: 0.3, WinRate: 0.5},
	}

	d := e.ComputeConsensus("X", votes)

	if d.Action != ActionHold {
		t.Errorf("action = %s, want HOLD (1/3 share each)", d.Action)
	}

	// Full weighted strength, then halved by the downgrade.
	w0 := (0.6 + 0.5) * 0.9
	w1 := (0.4 + 0.5) * 0.5
	w2 := (0.5 + 0.5) * 0.3
	full := (0.8*w0 + 0.5*w1 + 0.1*w2) / (w0 + w1 + w2)
	if math.Abs(d.Strength-full/2) > 1e-12 {
		t.Errorf("strength = %v, want halved weighted average %v", d.Strength, full/2)
	}
}

func TestComputeConsensusMajorityStands(t *testing.T) {
	e := NewEngine(0.6)
	votes := []Vote{
		{Action: ActionBuy, Strength: 0.6, Confidence: 0.8, WinRate: 0.5},
		{Action: ActionBuy, Strength: 0.7, Confidence: 0.7, WinRate: 0.6},
		{Action: ActionHold, Strength: 0.0, Confidence: 0.2, WinRate: 0.5},
	}

	d := e.ComputeConsensus("X", votes)
	if d.Action != ActionBuy {
		t.Errorf("action = %s with 2/3 BUY share, want BUY", d.Action)
	}
}

func TestComputeConsensusTieGoesToHold(t *testing.T) {
	e := NewEngine(0.5)
	votes := []Vote{
		{Action: ActionBuy, Strength: 0.9, Confidence: 0.9, WinRate: 0.9},
		{Action: ActionSell, Strength: -0.9, Confidence: 0.9, WinRate: 0.9},
	}

	d := e.ComputeConsensus("X", votes)
	if d.Action != ActionHold {
		t.Errorf("action = %s on a BUY/SELL tie, want HOLD", d.Action)
	}
}

func TestComputeConsensusDeterministic(t *testing.T) {
	e := NewEngine(0.6)
	votes := []Vote{
		{Action: ActionBuy, Strength: 0.8, Confidence: 0.9, WinRate: 0.6},
		{Action: ActionSell, Strength: 0.5, Confidence: 0.5, WinRate: 0.4},
		{Action: ActionBuy, Strength: 0.3, Confidence: 0.7, WinRate: 0.55},
		{Action: ActionHold, Strength: 0.1, Confidence: 0.3, WinRate: 0.5},
	}

	first := e.ComputeConsensus("X", votes)
	for i := 0; i < 10; i++ {
		if got := e.ComputeConsensus("X", votes); got != first {
			t.Fatalf("iteration %d: decision changed: %+v vs %+v", i, got, first)
		}
	}
}

func TestComputeConsensusZeroWinRateStillHeard(t *testing.T) {
	// The +0.5 weight offset keeps a zero-win-rate instance from being
	// silenced: its vote must still move the weighted strength.
	e := NewEngine(0.6)
	withRookie := e.ComputeConsensus("X", []Vote{
		{Action: ActionBuy, Strength: 1.0, Confidence: 0.9, WinRate: 0.8},
		{Action: ActionBuy, Strength: -1.0, Confidence: 0.9, WinRate: 0.0},
	})
	soloVeteran := e.ComputeConsensus("X", []Vote{
		{Action: ActionBuy, Strength: 1.0, Confidence: 0.9, WinRate: 0.8},
	})

	if withRookie.Strength >= soloVeteran.Strength {
		t.Errorf("rookie vote had no effect: %v vs %v", withRookie.Strength, soloVeteran.Strength)
	}
}

func TestComputeConsensusEmptyVotes(t *testing.T) {
	e := NewEngine(0.6)
	d := e.ComputeConsensus("X", nil)
	if d.Action != ActionHold || d.Strength != 0 {
		t.Errorf("empty vote set produced %+v, want neutral HOLD", d)
	}
}

func TestVoteFromSignalDeadBand(t *testing.T) {
	tests := []struct {
		signal float64
		want   Action
	}{
		{0.5, ActionBuy},
		{0.16, ActionBuy},
		{0.15, ActionHold},
		{0, ActionHold},
		{-0.15, ActionHold},
		{-0.16, ActionSell},
		{-0.9, ActionSell},
	}

	for _, tt := range tests {
		if got := VoteFromSignal(tt.signal); got != tt.want {
			t.Errorf("VoteFromSignal(%v) = %s, want %s", tt.signal, got, tt.want)
		}
	}
}

func TestComputeAllGroupsBySymbol(t *testing.T) {
	e := NewEngine(0.6)
	votes := []Vote{
		{Symbol: "A", Action: ActionBuy, Strength: 0.8, Confidence: 0.9, WinRate: 0.6},
		{Symbol: "A", Action: ActionBuy, Strength: 0.6, Confidence: 0.8, WinRate: 0.5},
		{Symbol: "B", Action: ActionSell, Strength: -0.7, Confidence: 0.7, WinRate: 0.5},
	}

	decisions := e.ComputeAll(votes)
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	if decisions["A"].Action != ActionBuy {
		t.Errorf("A action = %s, want BUY", decisions["A"].Action)
	}
	if decisions["B"].Action != ActionSell {
		t.Errorf("B action = %s, want SELL", decisions["B"].Action)
	}
}

func TestComputeConsensusWeakHoldWinHalvesStrength(t *testing.T) {
	e := NewEngine(0.6)
	// HOLD wins 2/4 = 50%, below the 60% threshold: the decision stays HOLD
	// but its strength is halved like any other weak mandate.
	votes := []Vote{
		{Action: ActionHold, Strength: 0.4, Confidence: 0.8, WinRate: 0.5},
		{Action: ActionHold, Strength: 0.4, Confidence: 0.8, WinRate: 0.5},
		{Action: ActionBuy, Strength: 0.4, Confidence: 0.8, WinRate: 0.5},
		{Action: ActionSell, Strength: 0.4, Confidence: 0.8, WinRate: 0.5},
	}

	d := e.ComputeConsensus("X", votes)
	if d.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD", d.Action)
	}
	// Equal weights, so the weighted strength is 0.4 and half of it 0.2.
	if math.Abs(d.Strength-0.2) > 1e-9 {
		t.Errorf("strength = %v, want 0.2 (halved)", d.Strength)
	}
}
