package strategy

import (
	"math"
	"testing"
)

func TestEvaluateSignalAndConfidenceBounded(t *testing.T) {
	inputs := []struct {
		price, changePct, volume, momentum float64
	}{
		{100, 0, 0, 0},
		{100, 12.5, 9_000_000, 0.08},
		{100, -12.5, 9_000_000, -0.08},
		{0.0001, 0.5, 100, 0.001},
		{50000, -30, 50_000_000, -0.5},
	}

	for _, kind := range AllKinds {
		for _, in := range inputs {
			sig, conf := Evaluate(kind, "BTCUSDT", in.price, in.changePct, in.volume, in.momentum)
			if sig < -1 || sig > 1 {
				t.Errorf("%s: signal %v outside [-1,1] for input %+v", kind, sig, in)
			}
			if conf < 0 || conf > 1 {
				t.Errorf("%s: confidence %v outside [0,1] for input %+v", kind, conf, in)
			}
		}
	}
}

func TestTrendFollowScalesMomentum(t *testing.T) {
	tests := []struct {
		momentum   float64
		wantSignal float64
	}{
		{0.05, 0.5},
		{-0.05, -0.5},
		{0.2, 1.0},  // clamped
		{-0.3, -1.0}, // clamped
	}

	for _, tt := range tests {
		sig, _ := Evaluate(KindTrendFollow, "X", 100, 0, 0, tt.momentum)
		if math.Abs(sig-tt.wantSignal) > 1e-12 {
			t.Errorf("trend_follow(momentum=%v) signal = %v, want %v", tt.momentum, sig, tt.wantSignal)
		}
	}
}

func TestBreakoutFlatBelowThreshold(t *testing.T) {
	sig, conf := Evaluate(KindBreakout, "X", 100, 2.9, 0, 0.1)
	if sig != 0 {
		t.Errorf("breakout signal = %v below 3%% change, want 0", sig)
	}
	if conf >= 0.5 {
		t.Errorf("breakout confidence = %v below threshold, want low", conf)
	}

	sig, _ = Evaluate(KindBreakout, "X", 100, 6.0, 0, 0)
	if sig <= 0 {
		t.Errorf("breakout signal = %v on a +6%% move, want positive", sig)
	}
}

func TestContrarianOpposesTrendFollow(t *testing.T) {
	tf, _ := Evaluate(KindTrendFollow, "X", 100, 0, 0, 0.04)
	ct, _ := Evaluate(KindContrarian, "X", 100, 0, 0, 0.04)
	if tf*ct >= 0 {
		t.Errorf("contrarian (%v) and trend_follow (%v) agree on the same momentum", ct, tf)
	}
}

func TestVolumeSurgeRequiresVolume(t *testing.T) {
	sig, _ := Evaluate(KindVolumeSurge, "X", 100, 5.0, volumeSurgeFloor-1, 0.01)
	if sig != 0 {
		t.Errorf("volume_surge traded on thin volume: signal = %v", sig)
	}
	sig, _ = Evaluate(KindVolumeSurge, "X", 100, 5.0, volumeSurgeFloor*2, 0.01)
	if sig <= 0 {
		t.Errorf("volume_surge ignored a surge: signal = %v", sig)
	}
}

func TestHighConfidenceAllOrNothing(t *testing.T) {
	// Misaligned momentum and change: no vote.
	sig, conf := Evaluate(KindHighConfidence, "X", 100, 3.0, 0, -0.06)
	if sig != 0 || conf != 0 {
		t.Errorf("high_confidence voted (%v, %v) on misaligned inputs", sig, conf)
	}

	// Aligned and strong: votes at 0.9.
	sig, conf = Evaluate(KindHighConfidence, "X", 100, 3.0, 0, 0.06)
	if sig <= 0 {
		t.Errorf("high_confidence signal = %v on strong aligned move, want positive", sig)
	}
	if conf != 0.9 {
		t.Errorf("high_confidence confidence = %v, want exactly 0.9", conf)
	}
}

func TestScalperIgnoresLargeMoves(t *testing.T) {
	sig, _ := Evaluate(KindScalper, "X", 100, 0, 0, 0.05)
	if sig != 0 {
		t.Errorf("scalper traded a large move: signal = %v", sig)
	}
	sig, _ = Evaluate(KindScalper, "X", 100, 0, 0, 0.01)
	if sig <= 0 {
		t.Errorf("scalper missed a small move: signal = %v", sig)
	}
}

func TestDefensiveConfidenceCapped(t *testing.T) {
	_, conf := Evaluate(KindDefensive, "X", 100, 0, 0, 0.5)
	if conf > 0.5 {
		t.Errorf("defensive confidence = %v, cap is 0.5", conf)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	for _, kind := range AllKinds {
		s1, c1 := Evaluate(kind, "X", 100, 1.5, 2_000_000, 0.01)
		s2, c2 := Evaluate(kind, "X", 100, 1.5, 2_000_000, 0.01)
		if s1 != s2 || c1 != c2 {
			t.Errorf("%s: repeated evaluation diverged: (%v,%v) vs (%v,%v)", kind, s1, c1, s2, c2)
		}
	}
}
