// Package explorer resolves transaction hashes through etherscan-compatible
// block explorer APIs, one client per chain.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/groupfi/treasury-engine/pkg/clients/ethereum"
	"go.uber.org/zap"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    uint64
	logger     *zap.Logger
}

func NewClient(baseURL string, apiKey string, chainID uint64, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		logger:  logger,
	}
}

// SetHttpClient overrides the underlying HTTP client, used in tests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ChainID() uint64 {
	return c.chainID
}

type proxyResponse struct {
	Result *ethereum.EthereumTransaction `json:"result"`
}

// GetTransactionByHash resolves a transaction through the explorer's proxy
// module. A nil transaction with a nil error means the explorer answered but
// does not know the hash.
func (c *Client) GetTransactionByHash(ctx context.Context, txHash string) (*ethereum.EthereumTransaction, error) {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_getTransactionByHash")
	params.Set("txhash", txHash)
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("accept", "application/json")

	c.logger.Sugar().Debugw("Making explorer request",
		zap.Uint64("chainId", c.chainID),
		zap.String("txHash", txHash),
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
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var proxyResp proxyResponse
	if err := json.Unmarshal(body, &proxyResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal explorer response: %w", err)
	}
	return proxyResp.Result, nil
}
