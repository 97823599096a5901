// Package cex implements the order-book exchange client: signed REST calls
// for quotes, orders, and balances, plus a websocket book-ticker stream.
package cex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sable-labs/crossarb/internal/crypto"
	"github.com/sable-labs/crossarb/internal/domain"
)

const venueName = "cex"

// Client is the REST client for the order-book exchange API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a CEX REST client. baseURL is the API root, e.g.
// "https://api.exchange.example.com".
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    &crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ExchangeSymbol converts a "BASE/QUOTE" pair symbol into the exchange's
// concatenated form.
func ExchangeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// --------------------------------------------------------------------------
// Market data
// --------------------------------------------------------------------------

// GetTicker returns the last trade price and 24h quote volume for symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (float64, float64, error) {
	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", params, false)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_ticker", err)
	}

	var resp struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_ticker", fmt.Errorf("decode: %w", err))
	}

	price, err := strconv.ParseFloat(resp.LastPrice, 64)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_ticker", fmt.Errorf("parse lastPrice: %w", err))
	}
	volume, err := strconv.ParseFloat(resp.QuoteVolume, 64)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_ticker", fmt.Errorf("parse quoteVolume: %w", err))
	}
	return price, volume, nil
}

// GetBookTicker returns the current best bid and ask for symbol.
func (c *Client) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_book_ticker", err)
	}

	var resp struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_book_ticker", fmt.Errorf("decode: %w", err))
	}

	bid, err := strconv.ParseFloat(resp.BidPrice, 64)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_book_ticker", fmt.Errorf("parse bidPrice: %w", err))
	}
	ask, err := strconv.ParseFloat(resp.AskPrice, 64)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_book_ticker", fmt.Errorf("parse askPrice: %w", err))
	}
	return bid, ask, nil
}

// --------------------------------------------------------------------------
// Trading
// --------------------------------------------------------------------------

// orderJSON is the exchange's order representation.
type orderJSON struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	// CummulativeQuoteQty is spelled as the exchange spells it.
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

func (o orderJSON) toDomain() domain.Order {
	ord := domain.Order{
		ID:     strconv.FormatInt(o.OrderID, 10),
		Symbol: o.Symbol,
		Side:   domain.OrderSide(strings.ToLower(o.Side)),
		Type:   strings.ToLower(o.Type),
		Status: domain.OrderStatus(o.Status),
	}
	ord.Quantity, _ = strconv.ParseFloat(o.OrigQty, 64)
	ord.FilledQty, _ = strconv.ParseFloat(o.ExecutedQty, 64)

	// Average price from cumulative quote when filled; fall back to fills.
	if ord.FilledQty > 0 {
		if quote, err := strconv.ParseFloat(o.CummulativeQuoteQty, 64); err == nil && quote > 0 {
			ord.AvgPrice = quote / ord.FilledQty
		}
	}
	for _, f := range o.Fills {
		fee, _ := strconv.ParseFloat(f.Commission, 64)
		ord.FeeUSD += fee
	}
	return ord
}

// PlaceOrder submits an order. For market orders price is ignored.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, typ string, qty, price float64) (domain.Order, error) {
	if qty <= 0 {
		return domain.Order{}, domain.NewVenueError(venueName, "place_order", domain.ErrInvalidOrder)
	}

	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", strings.ToUpper(typ))
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	if strings.ToUpper(typ) != "MARKET" && price > 0 {
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return domain.Order{}, domain.NewVenueError(venueName, "place_order", err)
	}

	var resp orderJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, domain.NewVenueError(venueName, "place_order", fmt.Errorf("decode: %w", err))
	}
	return resp.toDomain(), nil
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/order", params, true)
	if err != nil {
		return domain.Order{}, domain.NewVenueError(venueName, "get_order", err)
	}

	var resp orderJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, domain.NewVenueError(venueName, "get_order", fmt.Errorf("decode: %w", err))
	}
	return resp.toDomain(), nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))
	params.Set("orderId", orderID)

	if _, err := c.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true); err != nil {
		return domain.NewVenueError(venueName, "cancel_order", err)
	}
	return nil
}

// GetBalances returns all non-zero account balances.
func (c *Client) GetBalances(ctx context.Context) (domain.VenueBalances, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return nil, domain.NewVenueError(venueName, "get_balances", err)
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewVenueError(venueName, "get_balances", fmt.Errorf("decode: %w", err))
	}

	out := make(domain.VenueBalances, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		out[b.Asset] = domain.Balance{Asset: b.Asset, Free: free, Locked: locked}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// doRequest performs an HTTP request against the exchange. When signed is
// true the query string is HMAC-signed and the API key header attached.
// HTTP 429 maps to domain.ErrRateLimited, 401/403 to domain.ErrUnauthorized.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := params.Encode()
	headers := map[string]string{}
	if signed {
		query, headers = c.auth.SignQuery(query)
	}

	reqURL := c.baseURL + path
	var reqBody io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		if query != "" {
			reqURL += "?" + query
		}
	default:
		reqBody = bytes.NewBufferString(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// Compile-time interface check.
var _ domain.CEXClient = (*Client)(nil)
