package executor

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func testPrices(prices map[string]float64) PriceSource {
	return func(symbol string) (float64, bool) {
		p, ok := prices[symbol]
		return p, ok
	}
}

func TestPaperOrderFillsAtSlippedPrice(t *testing.T) {
	p := NewPaperExecutor(testPrices(map[string]float64{"BTCUSDT": 50000}), nil, 0.0005, zerolog.Nop())

	tests := []struct {
		name      string
		side      Side
		wantPrice float64
	}{
		{"buy pays above mark", SideBuy, 50000 * 1.0005},
		{"sell receives below mark", SideSell, 50000 * 0.9995},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.PlaceOrder(context.Background(), OrderRequest{
				Symbol: "BTCUSDT", Side: tt.side, Venue: "paper", Quantity: 0.1,
			})
			if err != nil {
				t.Fatalf("PlaceOrder: %v", err)
			}
			if !res.Executed {
				t.Error("order not executed")
			}
			if math.Abs(res.ExecutedPrice-tt.wantPrice) > 1e-9 {
				t.Errorf("price = %v, want %v", res.ExecutedPrice, tt.wantPrice)
			}
			if res.ExecutedQty != 0.1 {
				t.Errorf("qty = %v, want 0.1", res.ExecutedQty)
			}
			if res.OrderID == "" {
				t.Error("empty order id")
			}
		})
	}
}

func TestPaperOrderQuoteAmountConversion(t *testing.T) {
	p := NewPaperExecutor(testPrices(map[string]float64{"ETHUSDT": 2000}), nil, 0, zerolog.Nop())

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "ETHUSDT", Side: SideBuy, Venue: "paper", QuoteAmount: 500,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if math.Abs(res.ExecutedQty-0.25) > 1e-12 {
		t.Errorf("qty = %v, want 0.25", res.ExecutedQty)
	}
}

func TestPaperOrderRejectsMissingPrice(t *testing.T) {
	p := NewPaperExecutor(testPrices(nil), nil, 0, zerolog.Nop())

	if _, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NOPE", Side: SideBuy, Quantity: 1,
	}); err == nil {
		t.Error("order filled with no price available")
	}
}

func TestPaperBalancesCopyAndAdjust(t *testing.T) {
	p := NewPaperExecutor(testPrices(nil), map[string]map[string]float64{
		"paper": {"USDT": 10000},
	}, 0, zerolog.Nop())

	bal, err := p.GetBalances(context.Background(), "paper")
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	bal["USDT"] = 0 // mutating the copy must not touch the book

	p.AdjustBalance("paper", "USDT", -2500)
	bal, _ = p.GetBalances(context.Background(), "paper")
	if bal["USDT"] != 7500 {
		t.Errorf("USDT = %v, want 7500", bal["USDT"])
	}
}

func TestPaperFillsSettleBalances(t *testing.T) {
	p := NewPaperExecutor(testPrices(map[string]float64{"ETHUSDT": 2000}), map[string]map[string]float64{
		"paper": {"USDT": 10000},
	}, 0, zerolog.Nop())

	if _, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "ETHUSDT", Side: SideBuy, Venue: "paper", Quantity: 2,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	balances, err := p.GetBalances(context.Background(), "paper")
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if got := balances["USDT"]; math.Abs(got-6000) > 1e-9 {
		t.Errorf("USDT after buy = %v, want 6000", got)
	}
	if got := balances["ETH"]; math.Abs(got-2) > 1e-9 {
		t.Errorf("ETH after buy = %v, want 2", got)
	}

	if _, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "ETHUSDT", Side: SideSell, Venue: "paper", Quantity: 2,
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	balances, err = p.GetBalances(context.Background(), "paper")
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if got := balances["USDT"]; math.Abs(got-10000) > 1e-9 {
		t.Errorf("USDT after round trip = %v, want 10000", got)
	}
	if got := balances["ETH"]; math.Abs(got) > 1e-9 {
		t.Errorf("ETH after round trip = %v, want 0", got)
	}
}
