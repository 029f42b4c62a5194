package executor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mesh-trading-engine/internal/vault"
)

// VenueExecutor places real orders against a venue's signed REST API.
// Credentials come from the vault client per venue.
type VenueExecutor struct {
	baseURL    string
	venue      string
	testnet    bool
	idTag      string
	creds      *vault.Client
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewVenueExecutor creates a live executor. idTag, when set, prefixes client
// order IDs so the engine's orders are identifiable on the venue side.
func NewVenueExecutor(venue, baseURL string, testnet bool, idTag string, creds *vault.Client, logger zerolog.Logger) *VenueExecutor {
	return &VenueExecutor{
		baseURL:    baseURL,
		venue:      venue,
		testnet:    testnet,
		idTag:      idTag,
		creds:      creds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "venue_executor").Str("venue", venue).Logger(),
	}
}

type orderResponse struct {
	OrderID       int64   `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	Status        string  `json:"status"`
	Price         float64 `json:"price,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	CumQuoteQty   float64 `json:"cummulativeQuoteQty,string"`
}

type balanceResponse struct {
	Balances []struct {
		Asset string  `json:"asset"`
		Free  float64 `json:"free,string"`
	} `json:"balances"`
}

// PlaceOrder submits a signed market order.
func (v *VenueExecutor) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	creds, err := v.creds.GetCredentials(ctx, v.venue, v.testnet)
	if err != nil {
		return nil, fmt.Errorf("venue credentials unavailable: %w", err)
	}

	params := map[string]string{
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"type":      "MARKET",
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if v.idTag != "" {
		params["newClientOrderId"] = v.idTag + "-" + uuid.New().String()
	}
	switch {
	case req.Quantity > 0:
		params["quantity"] = strconv.FormatFloat(req.Quantity, 'f', -1, 64)
	case req.QuoteAmount > 0:
		params["quoteOrderQty"] = strconv.FormatFloat(req.QuoteAmount, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("order for %s has no quantity or quote amount", req.Symbol)
	}
	params["signature"] = sign(params, creds.SecretKey)

	values := url.Values{}
	for k, val := range params {
		values.Set(k, val)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/v3/order", nil)
	if err != nil {
		return nil, err
	}
	httpReq.URL.RawQuery = values.Encode()
	httpReq.Header.Set("X-MBX-APIKEY", creds.APIKey)

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue API error: %s", string(body))
	}

	var or orderResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	price := or.Price
	if price == 0 && or.ExecutedQty > 0 {
		price = or.CumQuoteQty / or.ExecutedQty
	}

	res := &OrderResult{
		OrderID:       strconv.FormatInt(or.OrderID, 10),
		Executed:      or.Status == "FILLED" || or.Status == "PARTIALLY_FILLED",
		ExecutedPrice: price,
		ExecutedQty:   or.ExecutedQty,
		PlacedAt:      time.Now(),
	}

	v.logger.Info().
		Str("order_id", res.OrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("status", or.Status).
		Float64("executed_qty", res.ExecutedQty).
		Msg("venue order placed")

	return res, nil
}

// GetBalances fetches free balances from the venue account endpoint.
func (v *VenueExecutor) GetBalances(ctx context.Context, venue string) (map[string]float64, error) {
	creds, err := v.creds.GetCredentials(ctx, v.venue, v.testnet)
	if err != nil {
		return nil, fmt.Errorf("venue credentials unavailable: %w", err)
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	params["signature"] = sign(params, creds.SecretKey)

	values := url.Values{}
	for k, val := range params {
		values.Set(k, val)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v3/account", nil)
	if err != nil {
		return nil, err
	}
	httpReq.URL.RawQuery = values.Encode()
	httpReq.Header.Set("X-MBX-APIKEY", creds.APIKey)

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error fetching balances: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue API error: %s", string(body))
	}

	var br balanceResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, fmt.Errorf("error parsing balances: %w", err)
	}

	out := make(map[string]float64, len(br.Balances))
	for _, b := range br.Balances {
		if b.Free > 0 {
			out[b.Asset] = b.Free
		}
	}
	return out, nil
}

func sign(params map[string]string, secret string) string {
	query := ""
	for k, v := range params {
		if k != "signature" {
			if query != "" {
				query += "&"
			}
			query += k + "=" + v
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
