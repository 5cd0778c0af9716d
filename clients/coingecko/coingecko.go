package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"walletwatch/config"

	"go.uber.org/zap"
)

// Client looks up spot USD prices from the CoinGecko simple price API.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.Prices.CoinGeckoURL, "/"),
		apiKey:  cfg.Prices.CoinGeckoAPIKey,
	}
}

// GetUSDPrice returns the current USD price of coinID (e.g. "solana").
func (c *Client) GetUSDPrice(ctx context.Context, coinID string) (float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "usd")
	u := c.baseURL + "/simple/price?" + q.Encode()

	var result map[string]map[string]float64
	if err := c.doGet(ctx, u, &result); err != nil {
		return 0, fmt.Errorf("get price %s: %w", coinID, err)
	}

	price, ok := result[coinID]["usd"]
	if !ok {
		return 0, fmt.Errorf("get price %s: no usd quote in response", coinID)
	}
	if price <= 0 {
		return 0, fmt.Errorf("get price %s: non-positive quote %f", coinID, price)
	}
	return price, nil
}

func (c *Client) doGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
