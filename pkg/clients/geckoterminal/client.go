// Package geckoterminal is a small read-only client for the GeckoTerminal v2
// API, used to look up the liquidity pools of a token on a given network.
package geckoterminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseUrl = "https://api.geckoterminal.com/api/v2"

type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseUrl
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// SetHttpClient overrides the underlying HTTP client, used in tests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

type PoolAttributes struct {
	Name                     string `json:"name"`
	BaseTokenPriceUSD        string `json:"base_token_price_usd"`
	QuoteTokenPriceBaseToken string `json:"quote_token_price_base_token"`
	VolumeUSD                struct {
		H24 string `json:"h24"`
	} `json:"volume_usd"`
	ReserveInUSD string `json:"reserve_in_usd"`
}

type Pool struct {
	ID         string         `json:"id"`
	Attributes PoolAttributes `json:"attributes"`
}

type poolsResponse struct {
	Data []Pool `json:"data"`
}

// GetTokenPools returns the pools trading a token on the given network, most
// liquid first. An empty slice means the token has no indexed pool.
func (c *Client) GetTokenPools(ctx context.Context, network string, tokenAddress string) ([]Pool, error) {
	u := fmt.Sprintf("%s/networks/%s/tokens/%s/pools", c.baseURL, network, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	c.logger.Sugar().Debugw("Making geckoterminal request",
		zap.String("network", network),
		zap.String("token", tokenAddress),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return []Pool{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geckoterminal request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var pools poolsResponse
	if err := json.Unmarshal(body, &pools); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pools response: %w", err)
	}
	return pools.Data, nil
}

// GetTopPool returns the first (most liquid) pool for a token, or nil if the
// token has no indexed pool.
func (c *Client) GetTopPool(ctx context.Context, network string, tokenAddress string) (*Pool, error) {
	pools, err := c.GetTokenPools(ctx, network, tokenAddress)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, nil
	}
	return &pools[0], nil
}
