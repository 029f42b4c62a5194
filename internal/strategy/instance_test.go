package strategy

import (
	"math"
	"testing"
)

func TestObserveBuildsTrustOnlyTowardWinners(t *testing.T) {
	me := NewInstance(0, KindMeanRevert, 1000, 0.1)

	winner := NewInstance(1, KindTrendFollow, 1000, 0.1)
	winner.Equity = 1100
	winner.TradeCount = 10
	winner.WinCount = 7

	loser := NewInstance(2, KindBreakout, 1000, 0.1)
	loser.Equity = 900
	loser.TradeCount = 10
	loser.WinCount = 7

	coinflip := NewInstance(3, KindSwing, 1000, 0.1)
	coinflip.Equity = 1100
	coinflip.TradeCount = 10
	coinflip.WinCount = 5

	me.Observe(winner)
	me.Observe(loser)
	me.Observe(coinflip)

	if me.Trust(KindTrendFollow) <= 0 {
		t.Error("no trust built toward a profitable winner")
	}
	if me.Trust(KindBreakout) != 0 {
		t.Errorf("trust %v built toward a losing instance", me.Trust(KindBreakout))
	}
	if me.Trust(KindSwing) != 0 {
		t.Errorf("trust %v built toward a 50%% win-rate instance", me.Trust(KindSwing))
	}
}

func TestObserveIsExponentialNotJump(t *testing.T) {
	me := NewInstance(0, KindMeanRevert, 1000, 0.1)
	winner := NewInstance(1, KindTrendFollow, 1000, 0.1)
	winner.Equity = 1100
	winner.TradeCount = 10
	winner.WinCount = 7

	var prev float64
	for i := 0; i < 50; i++ {
		me.Observe(winner)
		cur := me.Trust(KindTrendFollow)
		if cur <= prev && i < 49 {
			t.Fatalf("trust stopped increasing at step %d: %v", i, cur)
		}
		if cur > 1 {
			t.Fatalf("trust exceeded 1: %v", cur)
		}
		prev = cur
	}
}

func TestAdaptSignalFixedBlend(t *testing.T) {
	me := NewInstance(0, KindMeanRevert, 1000, 0.5)

	// Build trust toward trend_follow, then observe its signal 1.0 on BTCUSDT.
	winner := NewInstance(1, KindTrendFollow, 1000, 0.5)
	winner.Equity = 1100
	winner.TradeCount = 10
	winner.WinCount = 8
	me.Observe(winner)

	me.RecordObserved("BTCUSDT", KindTrendFollow, 1.0)

	got := me.AdaptSignal(0.5, "BTCUSDT")
	want := 0.8*0.5 + 0.2*1.0
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("AdaptSignal = %v, want %v (fixed 80/20 blend)", got, want)
	}
}

func TestAdaptSignalPassthroughWithoutObservations(t *testing.T) {
	me := NewInstance(0, KindMeanRevert, 1000, 0.1)
	if got := me.AdaptSignal(0.42, "ETHUSDT"); got != 0.42 {
		t.Errorf("AdaptSignal = %v with no observations, want raw 0.42", got)
	}

	// Observed signals without trust also pass through.
	me.RecordObserved("ETHUSDT", KindBreakout, -1.0)
	if got := me.AdaptSignal(0.42, "ETHUSDT"); got != 0.42 {
		t.Errorf("AdaptSignal = %v with zero trust, want raw 0.42", got)
	}
}

func TestCloseAtSettlesLongAndShort(t *testing.T) {
	tests := []struct {
		name    string
		side    string
		entry   float64
		exit    float64
		qty     float64
		wantPnL float64
		wantWin bool
	}{
		{"long profit", SideLong, 100, 110, 2, 20, true},
		{"long loss", SideLong, 100, 95, 2, -10, false},
		{"short profit", SideShort, 100, 90, 1, 10, true},
		{"short loss", SideShort, 100, 105, 1, -5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInstance(0, KindTrendFollow, 1000, 0.1)
			if err := in.OpenPosition("X", tt.entry, tt.qty, tt.side); err != nil {
				t.Fatalf("OpenPosition: %v", err)
			}

			pnl, ok := in.CloseAt("X", tt.exit)
			if !ok {
				t.Fatal("CloseAt reported no position")
			}
			if math.Abs(pnl-tt.wantPnL) > 1e-9 {
				t.Errorf("pnl = %v, want %v", pnl, tt.wantPnL)
			}
			if got := in.Equity; math.Abs(got-(1000+tt.wantPnL)) > 1e-9 {
				t.Errorf("equity = %v, want %v", got, 1000+tt.wantPnL)
			}
			if (in.WinCount == 1) != tt.wantWin {
				t.Errorf("win recorded = %v, want %v", in.WinCount == 1, tt.wantWin)
			}
			if in.PositionCount() != 0 {
				t.Errorf("position still in book after close")
			}
		})
	}
}

func TestOpenPositionRejectsDuplicates(t *testing.T) {
	in := NewInstance(0, KindTrendFollow, 1000, 0.1)
	if err := in.OpenPosition("X", 100, 1, SideLong); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := in.OpenPosition("X", 101, 1, SideLong); err == nil {
		t.Error("duplicate open for the same symbol was accepted")
	}
}

func TestCloseAtMissingSymbol(t *testing.T) {
	in := NewInstance(0, KindTrendFollow, 1000, 0.1)
	if _, ok := in.CloseAt("NOPE", 100); ok {
		t.Error("CloseAt reported success for a symbol with no position")
	}
}
