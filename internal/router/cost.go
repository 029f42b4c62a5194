package router

import "fmt"

// CostEstimate is the projected outcome of executing a path with a given
// input amount.
type CostEstimate struct {
	Output     float64 `json:"output"`
	Fees       float64 `json:"fees"`
	Slippage   float64 `json:"slippage"`
	Efficiency float64 `json:"efficiency"` // output/input
}

// EstimateCost walks the path deducting the per-hop fee and slippage
// sequentially. prices maps pair symbols to the base-in-quote price; a
// missing price fails the estimate rather than guessing.
func (r *Router) EstimateCost(path Path, amount float64, prices map[string]float64) (CostEstimate, error) {
	if amount <= 0 {
		return CostEstimate{}, fmt.Errorf("invalid conversion amount %v", amount)
	}

	running := amount
	totalFees := 0.0
	totalSlippage := 0.0

	for _, hop := range path {
		price, ok := prices[hop.PairSymbol]
		if !ok || price <= 0 {
			return CostEstimate{}, fmt.Errorf("no price for pair %s on %s", hop.PairSymbol, hop.Venue)
		}

		converted := running
		switch hop.Direction {
		case DirectionSell:
			converted = running * price
		case DirectionBuy:
			converted = running / price
		}

		fee := converted * r.feeRate
		slip := converted * r.slippageRate
		totalFees += fee
		totalSlippage += slip
		running = converted - fee - slip
	}

	return CostEstimate{
		Output:     running,
		Fees:       totalFees,
		Slippage:   totalSlippage,
		Efficiency: running / amount,
	}, nil
}
