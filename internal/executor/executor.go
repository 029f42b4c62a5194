// Package executor holds the order-placement collaborators. The engine only
// sees the OrderExecutor interface; paper and live venue implementations
// live behind it.
package executor

import (
	"context"
	"time"
)

// Side is the order side sent to a venue.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderRequest is one order handed to an executor. Quantity and QuoteAmount
// are alternatives: exactly one should be set.
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Venue       string  `json:"venue"`
	Quantity    float64 `json:"quantity,omitempty"`
	QuoteAmount float64 `json:"quote_amount,omitempty"`
}

// OrderResult is the venue's answer.
type OrderResult struct {
	OrderID       string    `json:"order_id"`
	Executed      bool      `json:"executed"`
	ExecutedPrice float64   `json:"executed_price"`
	ExecutedQty   float64   `json:"executed_qty"`
	PlacedAt      time.Time `json:"placed_at"`
}

// OrderExecutor places orders and reports balances on a venue.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	GetBalances(ctx context.Context, venue string) (map[string]float64, error)
}
