package executor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mesh-trading-engine/internal/router"
)

// RESTPairLister reads a venue's tradable pairs from its exchange info
// endpoint. Used to seed the conversion router's asset graph.
type RESTPairLister struct {
	venue   string
	baseURL string
	client  *http.Client
}

func NewRESTPairLister(venue, baseURL string) *RESTPairLister {
	return &RESTPairLister{
		venue:   venue,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *RESTPairLister) Venue() string { return l.venue }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Status     string `json:"status"`
	} `json:"symbols"`
}

// ListPairs fetches the venue's exchange info and returns pairs that are
// currently trading.
func (l *RESTPairLister) ListPairs() ([]router.Pair, error) {
	resp, err := l.client.Get(l.baseURL + "/api/v3/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("exchange info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange info returned status %d", resp.StatusCode)
	}

	var info exchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode exchange info: %w", err)
	}

	pairs := make([]router.Pair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, router.Pair{
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Symbol: s.Symbol,
		})
	}
	return pairs, nil
}

// quoteSuffixes in longest-match-first order so USDT wins over USD.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "TUSD", "EUR", "BTC", "ETH", "BNB", "USD"}

// StaticPairLister derives pairs from a fixed symbol list by splitting each
// symbol on a known quote suffix. Used in paper mode where there is no venue
// to ask.
type StaticPairLister struct {
	venue   string
	symbols []string
}

func NewStaticPairLister(venue string, symbols []string) *StaticPairLister {
	return &StaticPairLister{venue: venue, symbols: symbols}
}

func (l *StaticPairLister) Venue() string { return l.venue }

func (l *StaticPairLister) ListPairs() ([]router.Pair, error) {
	pairs := make([]router.Pair, 0, len(l.symbols))
	for _, sym := range l.symbols {
		base, quote, ok := splitSymbol(sym)
		if !ok {
			continue
		}
		pairs = append(pairs, router.Pair{Base: base, Quote: quote, Symbol: sym})
	}
	return pairs, nil
}

func splitSymbol(symbol string) (base, quote string, ok bool) {
	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			return strings.TrimSuffix(symbol, suffix), suffix, true
		}
	}
	return "", "", false
}
