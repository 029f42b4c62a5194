// Package strategy implements the parallel strategy simulators: a fixed set
// of strategy kinds, each a pure evaluation function, and the StrategyInstance
// that holds capital, a position book, and cross-instance trust learning.
package strategy

import "math"

// Kind identifies one of the fixed strategy heuristics.
type Kind string

const (
	KindTrendFollow    Kind = "trend_follow"
	KindMeanRevert     Kind = "mean_revert"
	KindBreakout       Kind = "breakout"
	KindContrarian     Kind = "contrarian"
	KindMomentumRide   Kind = "momentum_ride"
	KindVolumeSurge    Kind = "volume_surge"
	KindDefensive      Kind = "defensive"
	KindHighConfidence Kind = "high_confidence"
	KindScalper        Kind = "scalper"
	KindSwing          Kind = "swing"
)

// AllKinds lists every strategy kind in instance-id order.
var AllKinds = []Kind{
	KindTrendFollow,
	KindMeanRevert,
	KindBreakout,
	KindContrarian,
	KindMomentumRide,
	KindVolumeSurge,
	KindDefensive,
	KindHighConfidence,
	KindScalper,
	KindSwing,
}

// Volume floor above which the volume-surge kind considers a move confirmed,
// in quote-currency units.
const volumeSurgeFloor = 1_000_000.0

// Evaluate runs one kind's heuristic. Pure function: same inputs, same
// outputs. momentum is a short-window fractional move (0.01 = +1%), changePct
// is the 24h percent change (2.5 = +2.5%).
//
// Thresholds per kind:
//   - trend_follow:    signal = clamp(momentum*10), confidence |momentum|*20
//   - mean_revert:     fades the 24h move, signal = clamp(-changePct/5)
//   - breakout:        flat until |changePct| >= 3, then follows the move
//   - contrarian:      inverse of trend_follow at 8x gain
//   - momentum_ride:   momentum and 24h change combined, momentum-dominant
//   - volume_surge:    follows changePct only above the volume floor
//   - defensive:       trend at 30% amplitude, confidence capped at 0.5
//   - high_confidence: only aligned |momentum| >= 0.05 and |changePct| >= 2;
//     votes at 0.9 confidence or not at all
//   - scalper:         small moves only (|momentum| <= 0.02), amplified 40x
//   - swing:           24h-change-dominant blend
func Evaluate(kind Kind, symbol string, price, changePct, volume, momentum float64) (signal, confidence float64) {
	switch kind {
	case KindTrendFollow:
		return clamp(momentum * 10), minf(1, math.Abs(momentum)*20)

	case KindMeanRevert:
		return clamp(-changePct / 5), minf(1, math.Abs(changePct)/8)

	case KindBreakout:
		if math.Abs(changePct) < 3 {
			return 0, 0.1
		}
		return clamp(changePct / 6), minf(1, math.Abs(changePct)/10)

	case KindContrarian:
		return clamp(-momentum * 8), minf(1, math.Abs(momentum)*15)

	case KindMomentumRide:
		sig := clamp(momentum*5 + changePct/10)
		return sig, minf(1, (math.Abs(momentum)*10+math.Abs(changePct)/10)/2)

	case KindVolumeSurge:
		if volume < volumeSurgeFloor {
			return 0, 0.1
		}
		return clamp(changePct / 4), minf(1, volume/(5*volumeSurgeFloor))

	case KindDefensive:
		return clamp(momentum*3) * 0.3, minf(0.5, math.Abs(momentum)*10)

	case KindHighConfidence:
		aligned := momentum*changePct > 0
		if !aligned || math.Abs(momentum) < 0.05 || math.Abs(changePct) < 2 {
			return 0, 0
		}
		return clamp(momentum * 12), 0.9

	case KindScalper:
		if math.Abs(momentum) > 0.02 {
			return 0, 0.2
		}
		return clamp(momentum * 40), minf(1, math.Abs(momentum)*30)

	case KindSwing:
		return clamp(changePct/8 + momentum*3), minf(1, math.Abs(changePct)/6)

	default:
		return 0, 0
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
