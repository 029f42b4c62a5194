package router

import "strings"

// pathStats is the rolling usage history for one route.
type pathStats struct {
	count       int
	avgProfit   float64
	avgSlippage float64
	successes   int
}

// pathKey identifies a route by its hop sequence.
func pathKey(path Path) string {
	var b strings.Builder
	for i, e := range path {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(e.Venue)
		b.WriteByte(':')
		b.WriteString(e.PairSymbol)
		b.WriteByte(':')
		b.WriteString(string(e.Direction))
	}
	return b.String()
}

// RecordPathUsage folds one execution's outcome into the route's rolling
// statistics.
func (r *Router) RecordPathUsage(path Path, profit float64, success bool) {
	if len(path) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pathKey(path)
	st, ok := r.stats[key]
	if !ok {
		st = &pathStats{}
		r.stats[key] = st
	}

	// Slippage compounds per hop, so longer routes accrue more of it.
	slippage := r.slippageRate * float64(len(path))

	st.count++
	st.avgProfit += (profit - st.avgProfit) / float64(st.count)
	st.avgSlippage += (slippage - st.avgSlippage) / float64(st.count)
	if success {
		st.successes++
	}
}

// PathUsage reports a route's recorded statistics.
func (r *Router) PathUsage(path Path) (count int, avgProfit, successRate float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stats[pathKey(path)]
	if !ok {
		return 0, 0, 0
	}
	return st.count, st.avgProfit, float64(st.successes) / float64(st.count)
}

// GetBestPath picks among all candidate routes (bounded by maxHops) the one
// minimizing hopCount*10 + avgSlippage - usageCount*0.1, so a proven route
// can beat a marginally shorter unproven one.
func (r *Router) GetBestPath(from, to string, maxHops int) (Path, error) {
	candidates := r.FindAllPaths(from, to, maxHops)
	if len(candidates) == 0 {
		if from == to {
			return Path{}, nil
		}
		return nil, ErrNoPath
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := candidates[0]
	bestScore := r.pathScore(best)
	for _, p := range candidates[1:] {
		if score := r.pathScore(p); score < bestScore {
			best, bestScore = p, score
		}
	}
	return best, nil
}

func (r *Router) pathScore(path Path) float64 {
	score := float64(len(path)) * 10
	if st, ok := r.stats[pathKey(path)]; ok {
		score += st.avgSlippage
		score -= float64(st.count) * 0.1
	}
	return score
}
