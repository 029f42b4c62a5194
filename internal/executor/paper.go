package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PriceSource supplies the last known price per symbol for paper fills.
type PriceSource func(symbol string) (float64, bool)

// PaperExecutor fills orders against the latest snapshot price and keeps a
// simulated balance sheet per venue. Fills are deterministic: the fill price
// is the snapshot price shifted by a fixed slippage rate, never random.
type PaperExecutor struct {
	mu       sync.Mutex
	prices   PriceSource
	balances map[string]map[string]float64 // venue -> asset -> free amount
	slippage float64
	logger   zerolog.Logger
}

// NewPaperExecutor creates a paper executor seeded with the given balances.
func NewPaperExecutor(prices PriceSource, seed map[string]map[string]float64, slippage float64, logger zerolog.Logger) *PaperExecutor {
	balances := make(map[string]map[string]float64, len(seed))
	for venue, assets := range seed {
		balances[venue] = make(map[string]float64, len(assets))
		for asset, amt := range assets {
			balances[venue][asset] = amt
		}
	}
	return &PaperExecutor{
		prices:   prices,
		balances: balances,
		slippage: slippage,
		logger:   logger.With().Str("component", "paper_executor").Logger(),
	}
}

// PlaceOrder fills the request at the current snapshot price. A missing
// price fails the order rather than inventing a fill.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	price, ok := p.prices(req.Symbol)
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price for %s, order rejected", req.Symbol)
	}

	// Buys pay slightly above the mark, sells receive slightly below.
	fill := price
	switch req.Side {
	case SideBuy:
		fill = price * (1 + p.slippage)
	case SideSell:
		fill = price * (1 - p.slippage)
	default:
		return nil, fmt.Errorf("unknown order side %q", req.Side)
	}

	qty := req.Quantity
	if qty == 0 && req.QuoteAmount > 0 {
		qty = req.QuoteAmount / fill
	}
	if qty <= 0 {
		return nil, fmt.Errorf("order for %s has no quantity or quote amount", req.Symbol)
	}

	p.settle(req, fill, qty)

	res := &OrderResult{
		OrderID:       uuid.New().String(),
		Executed:      true,
		ExecutedPrice: fill,
		ExecutedQty:   qty,
		PlacedAt:      time.Now(),
	}

	p.logger.Info().
		Str("order_id", res.OrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("venue", req.Venue).
		Float64("price", fill).
		Float64("qty", qty).
		Msg("paper order filled")

	return res, nil
}

// settle moves a fill through the simulated balance sheet: a BUY debits the
// quote asset and credits the base, a SELL the reverse. Symbols without a
// recognized quote suffix move nothing.
func (p *PaperExecutor) settle(req OrderRequest, fill, qty float64) {
	base, quote, ok := splitSymbol(req.Symbol)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balances[req.Venue] == nil {
		p.balances[req.Venue] = make(map[string]float64)
	}
	assets := p.balances[req.Venue]

	switch req.Side {
	case SideBuy:
		assets[quote] -= fill * qty
		assets[base] += qty
	case SideSell:
		assets[base] -= qty
		assets[quote] += fill * qty
	}
}

// GetBalances returns a copy of the simulated balances for a venue.
func (p *PaperExecutor) GetBalances(ctx context.Context, venue string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	assets, ok := p.balances[venue]
	if !ok {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64, len(assets))
	for asset, amt := range assets {
		out[asset] = amt
	}
	return out, nil
}

// AdjustBalance credits or debits a simulated balance directly, for seeding
// mid-run deposits or withdrawals. Fills settle themselves in PlaceOrder.
func (p *PaperExecutor) AdjustBalance(venue, asset string, delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balances[venue] == nil {
		p.balances[venue] = make(map[string]float64)
	}
	p.balances[venue][asset] += delta
}
