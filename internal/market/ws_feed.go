package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mesh-trading-engine/internal/logging"

	"github.com/gorilla/websocket"
)

// momentumWindow is the number of recent prices used to derive short-term momentum.
const momentumWindow = 12

// WSFeed maintains live tickers from a venue's combined ticker stream.
// Fetch never blocks on the socket; it returns the latest cached view.
type WSFeed struct {
	mu sync.RWMutex

	endpoint  string
	venue     string
	symbols   []string
	staleTol  time.Duration
	conn      *websocket.Conn
	isRunning bool
	stopChan  chan struct{}

	tickers    map[string]Ticker
	priceHist  map[string][]float64
	lastUpdate time.Time
	reconnects int

	logger *logging.Logger
}

// tickerEvent is the venue's 24hr ticker stream payload.
type tickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	ChangePct string `json:"P"`
	Volume    string `json:"v"`
}

// NewWSFeed creates a websocket ticker feed for the given symbols.
func NewWSFeed(endpoint, venue string, symbols []string, staleTol time.Duration, logger *logging.Logger) *WSFeed {
	return &WSFeed{
		endpoint:  endpoint,
		venue:     venue,
		symbols:   symbols,
		staleTol:  staleTol,
		stopChan:  make(chan struct{}),
		tickers:   make(map[string]Ticker),
		priceHist: make(map[string][]float64),
		logger:    logger.WithComponent("market_feed"),
	}
}

// Start connects the stream and begins consuming ticker events.
func (f *WSFeed) Start() error {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return nil
	}
	f.isRunning = true
	f.mu.Unlock()

	if err := f.connect(); err != nil {
		f.mu.Lock()
		f.isRunning = false
		f.mu.Unlock()
		return err
	}

	go f.readLoop()
	return nil
}

func (f *WSFeed) connect() error {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@ticker")
	}
	url := f.endpoint + "/" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial ticker stream: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.logger.Info("Ticker stream connected", "venue", f.venue, "symbols", len(f.symbols))
	return nil
}

func (f *WSFeed) readLoop() {
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			f.reconnect()
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("Ticker stream read failed", "error", err)
			f.reconnect()
			continue
		}

		var ev tickerEvent
		if err := json.Unmarshal(message, &ev); err != nil || ev.Symbol == "" {
			continue
		}
		f.apply(ev)
	}
}

func (f *WSFeed) apply(ev tickerEvent) {
	price, err := strconv.ParseFloat(ev.LastPrice, 64)
	if err != nil || price <= 0 {
		return
	}
	changePct, _ := strconv.ParseFloat(ev.ChangePct, 64)
	volume, _ := strconv.ParseFloat(ev.Volume, 64)

	f.mu.Lock()
	defer f.mu.Unlock()

	hist := append(f.priceHist[ev.Symbol], price)
	if len(hist) > momentumWindow {
		hist = hist[len(hist)-momentumWindow:]
	}
	f.priceHist[ev.Symbol] = hist

	momentum := 0.0
	if len(hist) >= 2 && hist[0] > 0 {
		momentum = (hist[len(hist)-1] - hist[0]) / hist[0]
	}

	f.tickers[ev.Symbol] = Ticker{
		Symbol:       ev.Symbol,
		Price:        price,
		Change24hPct: changePct,
		Volume:       volume,
		Momentum:     momentum,
		Venue:        f.venue,
	}
	f.lastUpdate = time.Now()
}

func (f *WSFeed) reconnect() {
	select {
	case <-f.stopChan:
		return
	default:
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.reconnects++
	attempt := f.reconnects
	f.mu.Unlock()

	backoff := time.Duration(attempt) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	time.Sleep(backoff)

	if err := f.connect(); err != nil {
		f.logger.Warn("Ticker stream reconnect failed", "attempt", attempt, "error", err)
	}
}

// Fetch returns the latest cached snapshot. A stale cache is an error so the
// engine skips this source for the cycle rather than trading on old prices.
func (f *WSFeed) Fetch() (*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.tickers) == 0 {
		return nil, fmt.Errorf("no tickers received yet from %s", f.venue)
	}
	if f.staleTol > 0 && time.Since(f.lastUpdate) > f.staleTol {
		return nil, fmt.Errorf("ticker cache stale: last update %s ago", time.Since(f.lastUpdate).Round(time.Second))
	}

	tickers := make(map[string]Ticker, len(f.tickers))
	for k, v := range f.tickers {
		tickers[k] = v
	}
	return &Snapshot{Tickers: tickers, TakenAt: f.lastUpdate}, nil
}

// Close stops the read loop and closes the socket.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning {
		return nil
	}
	f.isRunning = false
	close(f.stopChan)
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}
