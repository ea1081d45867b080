// Package broker provides trading and market data API clients used to fetch
// option chains, leg quotes, and positions, and to submit multi-leg spread
// orders. It includes the Alpaca REST client implementation.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTradeBaseURL      = "https://api.alpaca.markets"
	defaultPaperTradeBaseURL = "https://paper-api.alpaca.markets"
	defaultDataBaseURL       = "https://data.alpaca.markets"

	// defaultFeed selects the OPRA option quote feed.
	defaultFeed = "opra"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// AlpacaAPI is a thin REST client for the Alpaca trading and market data
// endpoints this bot needs. All methods are context-aware.
type AlpacaAPI struct {
	client       *http.Client
	apiKey       string
	apiSecret    string
	tradeBaseURL string
	dataBaseURL  string
	feed         string
	timeout      time.Duration
}

// NewAlpacaAPI creates a new AlpacaAPI client. When paper is true the paper
// trading endpoint is used for all trading calls; market data always goes to
// the shared data host.
func NewAlpacaAPI(apiKey, apiSecret string, paper bool) *AlpacaAPI {
	tradeBase := defaultTradeBaseURL
	if paper {
		tradeBase = defaultPaperTradeBaseURL
	}
	return NewAlpacaAPIWithBaseURLs(apiKey, apiSecret, tradeBase, defaultDataBaseURL)
}

// NewAlpacaAPIWithBaseURLs creates a client with custom endpoints (tests,
// proxies).
func NewAlpacaAPIWithBaseURLs(apiKey, apiSecret, tradeBaseURL, dataBaseURL string) *AlpacaAPI {
	const defaultTimeout = 10 * time.Second
	return &AlpacaAPI{
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		tradeBaseURL: strings.TrimRight(tradeBaseURL, "/"),
		dataBaseURL:  strings.TrimRight(dataBaseURL, "/"),
		feed:         defaultFeed,
		client:       &http.Client{Timeout: defaultTimeout},
		timeout:      defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (a *AlpacaAPI) WithHTTPClient(c *http.Client) *AlpacaAPI {
	if c != nil {
		a.client = c
	}
	return a
}

// WithTimeout sets the HTTP client timeout duration.
func (a *AlpacaAPI) WithTimeout(timeout time.Duration) *AlpacaAPI {
	a.timeout = timeout
	if a.client != nil {
		a.client.Timeout = timeout
	}
	return a
}

// WithFeed overrides the option quote feed (default "opra").
func (a *AlpacaAPI) WithFeed(feed string) *AlpacaAPI {
	if feed != "" {
		a.feed = feed
	}
	return a
}

// ============ API Response Structures ============

// Quote is a bid/ask snapshot for a single contract. The engine enforces no
// bid<=ask invariant: illiquid contracts produce zero or inverted quotes and
// callers filter as needed.
type Quote struct {
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.BidPrice + q.AskPrice) / 2
}

// ChainEntry is one contract's row in a chain response: its latest quote plus
// whatever strike metadata the feed supplied. StrikePrice may be nil; the
// chain builder falls back to decoding the strike from the symbol.
type ChainEntry struct {
	BidPrice    float64
	AskPrice    float64
	StrikePrice *float64
	Timestamp   time.Time
}

// optionSnapshot mirrors the option snapshot wire shape.
type optionSnapshot struct {
	LatestQuote *struct {
		BidPrice  float64   `json:"bp"`
		AskPrice  float64   `json:"ap"`
		Timestamp time.Time `json:"t"`
	} `json:"latestQuote"`
}

type optionSnapshotsResponse struct {
	Snapshots     map[string]optionSnapshot `json:"snapshots"`
	NextPageToken *string                   `json:"next_page_token"`
}

type stockTradeResponse struct {
	Trade struct {
		Price     float64   `json:"p"`
		Timestamp time.Time `json:"t"`
	} `json:"trade"`
}

// contractsResponse mirrors the option contracts listing. Numeric fields
// arrive as strings on this endpoint.
type contractsResponse struct {
	OptionContracts []struct {
		Symbol         string `json:"symbol"`
		ExpirationDate string `json:"expiration_date"`
		StrikePrice    string `json:"strike_price"`
		Type           string `json:"type"`
	} `json:"option_contracts"`
	NextPageToken *string `json:"next_page_token"`
}

// PositionItem represents a single held position. Quantity is signed:
// negative for short positions.
type PositionItem struct {
	Symbol        string
	AssetClass    string
	Side          string
	Quantity      float64
	CostBasis     float64
	AvgEntryPrice float64
}

// positionWire is the raw positions payload; numeric fields are strings.
type positionWire struct {
	Symbol        string `json:"symbol"`
	AssetClass    string `json:"asset_class"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	CostBasis     string `json:"cost_basis"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

// OrderLeg is one leg of a multi-leg order payload.
type OrderLeg struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	RatioQty       int    `json:"ratio_qty"`
	PositionIntent string `json:"position_intent"`
}

// SpreadOrder is a two-leg limit order in the broker's mleg format. The
// engine constructs this payload; only the broker transmits it.
type SpreadOrder struct {
	OrderClass  string     `json:"order_class"`
	Quantity    int        `json:"qty"`
	Type        string     `json:"type"`
	LimitPrice  string     `json:"limit_price"`
	TimeInForce string     `json:"time_in_force"`
	ClientID    string     `json:"client_order_id,omitempty"`
	Legs        []OrderLeg `json:"legs"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MarketClock is the trading calendar state for the current instant.
type MarketClock struct {
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// ============ API Methods ============

// GetLatestStockPrice returns the most recent trade price for symbol.
func (a *AlpacaAPI) GetLatestStockPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.dataBaseURL, url.PathEscape(symbol))

	var response stockTradeResponse
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return 0, err
	}
	if response.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for symbol %s", symbol)
	}
	return response.Trade.Price, nil
}

// GetOptionChain retrieves the option chain snapshots for an underlying.
// optionType filters to "call" or "put" ("" for both); expiration pins a
// single date when non-empty; strikeMin/strikeMax bound the strike range when
// positive. The result maps contract symbol to its quote row and may be
// empty; it may also contain wrong-type or malformed symbols, which the chain
// builder skips.
func (a *AlpacaAPI) GetOptionChain(
	ctx context.Context,
	underlying, optionType, expiration string,
	strikeMin, strikeMax float64,
) (map[string]ChainEntry, error) {
	params := url.Values{}
	params.Set("feed", a.feed)
	params.Set("limit", "1000")
	if optionType != "" {
		params.Set("type", optionType)
	}
	if expiration != "" {
		params.Set("expiration_date", expiration)
	}
	if strikeMin > 0 {
		params.Set("strike_price_gte", strconv.FormatFloat(strikeMin, 'f', -1, 64))
	}
	if strikeMax > 0 {
		params.Set("strike_price_lte", strconv.FormatFloat(strikeMax, 'f', -1, 64))
	}

	chain := make(map[string]ChainEntry)
	for {
		endpoint := fmt.Sprintf("%s/v1beta1/options/snapshots/%s?%s",
			a.dataBaseURL, url.PathEscape(underlying), params.Encode())

		var response optionSnapshotsResponse
		if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}
		for symbol, snap := range response.Snapshots {
			if snap.LatestQuote == nil {
				continue
			}
			chain[symbol] = ChainEntry{
				BidPrice:  snap.LatestQuote.BidPrice,
				AskPrice:  snap.LatestQuote.AskPrice,
				Timestamp: snap.LatestQuote.Timestamp,
			}
		}
		if response.NextPageToken == nil || *response.NextPageToken == "" {
			break
		}
		params.Set("page_token", *response.NextPageToken)
	}
	return chain, nil
}

// GetOptionQuotes fetches the latest quote for each requested contract
// symbol. Symbols missing from the result were simply unfilled lookups, not
// errors.
func (a *AlpacaAPI) GetOptionQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("feed", a.feed)
	endpoint := fmt.Sprintf("%s/v1beta1/options/snapshots?%s", a.dataBaseURL, params.Encode())

	var response optionSnapshotsResponse
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	quotes := make(map[string]Quote, len(response.Snapshots))
	for symbol, snap := range response.Snapshots {
		if snap.LatestQuote == nil {
			continue
		}
		quotes[symbol] = Quote{
			BidPrice:  snap.LatestQuote.BidPrice,
			AskPrice:  snap.LatestQuote.AskPrice,
			Timestamp: snap.LatestQuote.Timestamp,
		}
	}
	return quotes, nil
}

// GetExpirations lists the distinct expiration dates (YYYY-MM-DD, ascending)
// with listed contracts for the underlying.
func (a *AlpacaAPI) GetExpirations(ctx context.Context, underlying string) ([]string, error) {
	params := url.Values{}
	params.Set("underlying_symbols", underlying)
	params.Set("limit", "1000")

	seen := make(map[string]struct{})
	for {
		endpoint := fmt.Sprintf("%s/v2/options/contracts?%s", a.tradeBaseURL, params.Encode())

		var response contractsResponse
		if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}
		for _, c := range response.OptionContracts {
			if c.ExpirationDate != "" {
				seen[c.ExpirationDate] = struct{}{}
			}
		}
		if response.NextPageToken == nil || *response.NextPageToken == "" {
			break
		}
		params.Set("page_token", *response.NextPageToken)
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

// GetPositions retrieves all open positions in the account.
func (a *AlpacaAPI) GetPositions(ctx context.Context) ([]PositionItem, error) {
	endpoint := fmt.Sprintf("%s/v2/positions", a.tradeBaseURL)

	var wire []positionWire
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &wire); err != nil {
		return nil, err
	}

	items := make([]PositionItem, 0, len(wire))
	for _, w := range wire {
		item := PositionItem{
			Symbol:     w.Symbol,
			AssetClass: w.AssetClass,
			Side:       w.Side,
		}
		// Numeric fields arrive as strings; tolerate blanks.
		item.Quantity, _ = strconv.ParseFloat(w.Qty, 64)
		item.CostBasis, _ = strconv.ParseFloat(w.CostBasis, 64)
		item.AvgEntryPrice, _ = strconv.ParseFloat(w.AvgEntryPrice, 64)
		items = append(items, item)
	}
	return items, nil
}

// SubmitSpreadOrder transmits a multi-leg order and returns the broker's
// opaque order identifier.
func (a *AlpacaAPI) SubmitSpreadOrder(ctx context.Context, order SpreadOrder) (string, error) {
	if len(order.Legs) != 2 {
		return "", fmt.Errorf("spread order requires exactly 2 legs, got %d", len(order.Legs))
	}
	body, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encoding order: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/orders", a.tradeBaseURL)
	var response orderResponse
	if err := a.makeRequestCtx(ctx, http.MethodPost, endpoint, bytes.NewReader(body), &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("order submission returned no order ID")
	}
	return response.ID, nil
}

// GetMarketClock retrieves the current market clock.
func (a *AlpacaAPI) GetMarketClock(ctx context.Context) (*MarketClock, error) {
	endpoint := fmt.Sprintf("%s/v2/clock", a.tradeBaseURL)

	var clock MarketClock
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &clock); err != nil {
		return nil, err
	}
	return &clock, nil
}

// IsMarketOpen reports whether the market is currently open for trading.
func (a *AlpacaAPI) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := a.GetMarketClock(ctx)
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

func (a *AlpacaAPI) makeRequestCtx(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
