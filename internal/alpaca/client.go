package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the Alpaca trading and market data REST APIs.
type Client struct {
	trading *resty.Client
	data    *resty.Client
}

// Config holds API credentials and endpoints.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // trading API, e.g. https://paper-api.alpaca.markets
	DataURL   string // market data API, e.g. https://data.alpaca.markets
}

func NewClient(cfg Config) *Client {
	newAPI := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("APCA-API-KEY-ID", cfg.APIKey).
			SetHeader("APCA-API-SECRET-KEY", cfg.SecretKey)
	}
	return &Client{
		trading: newAPI(cfg.BaseURL),
		data:    newAPI(cfg.DataURL),
	}
}

type barsResponse struct {
	Bars          []Bar  `json:"bars"`
	Symbol        string `json:"symbol"`
	NextPageToken string `json:"next_page_token"`
}

// GetBars fetches OHLCV bars for a symbol, following pagination. An empty
// result means no data for the range, not an error.
func (c *Client) GetBars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]Bar, error) {
	var bars []Bar
	pageToken := ""

	for {
		req := c.data.R().
			SetContext(ctx).
			SetResult(&barsResponse{}).
			SetQueryParams(map[string]string{
				"timeframe":  timeframe,
				"start":      start.UTC().Format(time.RFC3339),
				"end":        end.UTC().Format(time.RFC3339),
				"adjustment": "split",
				"feed":       "iex",
				"limit":      "1000",
			})
		if pageToken != "" {
			req.SetQueryParam("page_token", pageToken)
		}

		resp, err := req.Get(fmt.Sprintf("/v2/stocks/%s/bars", symbol))
		if err != nil {
			return nil, fmt.Errorf("error fetching bars for %s: %w", symbol, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("bars API error for %s: %s", symbol, resp.Status())
		}

		page := resp.Result().(*barsResponse)
		bars = append(bars, page.Bars...)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return bars, nil
}

// GetAccount fetches current account equity, cash and buying power.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&Account{}).
		Get("/v2/account")
	if err != nil {
		return nil, fmt.Errorf("error fetching account: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("account API error: %s", resp.Status())
	}
	return resp.Result().(*Account), nil
}

// GetPositions fetches all currently held positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&positions).
		Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("positions API error: %s", resp.Status())
	}
	return positions, nil
}

// SubmitOrder places a market order and returns the broker's order record.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	resp, err := c.trading.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&Order{}).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("error submitting %s order for %s: %w", req.Side, req.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order API error for %s: %s: %s", req.Symbol, resp.Status(), resp.String())
	}
	return resp.Result().(*Order), nil
}

// GetOrder fetches an order by ID, used to read the fill price after submit.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&Order{}).
		Get("/v2/orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching order %s: %w", orderID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order API error for %s: %s", orderID, resp.Status())
	}
	return resp.Result().(*Order), nil
}
