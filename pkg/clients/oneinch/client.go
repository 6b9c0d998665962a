// Package oneinch is a typed client for a 1inch-style swap aggregator API:
// quotes, ready-to-sign swap calldata, and ERC20 approval calldata.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/groupfi/treasury-engine/pkg/clients/ethereum"
	"go.uber.org/zap"
)

const DefaultBaseUrl = "https://api.1inch.dev"

// QuoteError indicates the aggregator rejected the request parameters
// (unsupported pair, dust amount, bad slippage). It is recoverable and safe
// to surface to the caller; nothing has touched the chain.
type QuoteError struct {
	StatusCode  int
	Description string
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("aggregator rejected request (%d): %s", e.StatusCode, e.Description)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func NewClient(baseURL string, apiKey string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseUrl
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// SetHttpClient overrides the underlying HTTP client, used in tests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

type Quote struct {
	DstAmount string `json:"dstAmount"`
}

type swapTransaction struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      uint64 `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

type swapResponse struct {
	DstAmount string          `json:"dstAmount"`
	Tx        swapTransaction `json:"tx"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	c.logger.Sugar().Debugw("Making aggregator request",
		zap.String("url", req.URL.String()),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &QuoteError{StatusCode: resp.StatusCode, Description: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("aggregator request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// GetQuote returns the expected destination amount for a swap without
// building calldata.
func (c *Client) GetQuote(ctx context.Context, chainID uint64, src string, dst string, amountWei *big.Int) (*Quote, error) {
	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amountWei.String())

	var quote Quote
	if err := c.get(ctx, fmt.Sprintf("/swap/v6.0/%d/quote", chainID), params, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// BuildSwap returns ready-to-sign swap calldata. slippageBps must be within
// [10, 10000]; the aggregator consumes it as a percentage.
func (c *Client) BuildSwap(
	ctx context.Context,
	chainID uint64,
	src string,
	dst string,
	amountWei *big.Int,
	from string,
	slippageBps uint64,
) (*ethereum.TransactionRequest, error) {
	if slippageBps < 10 || slippageBps > 10000 {
		return nil, &QuoteError{
			StatusCode:  http.StatusBadRequest,
			Description: fmt.Sprintf("slippage %d bps outside [10, 10000]", slippageBps),
		}
	}

	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amountWei.String())
	params.Set("from", from)
	params.Set("origin", from)
	params.Set("slippage", strconv.FormatFloat(float64(slippageBps)/100.0, 'f', -1, 64))

	var swap swapResponse
	if err := c.get(ctx, fmt.Sprintf("/swap/v6.0/%d/swap", chainID), params, &swap); err != nil {
		return nil, err
	}
	return transactionRequestFromSwapTx(&swap.Tx)
}

// BuildApprove returns calldata approving the aggregator's router to spend
// the given token amount.
func (c *Client) BuildApprove(
	ctx context.Context,
	chainID uint64,
	token string,
	amountWei *big.Int,
) (*ethereum.TransactionRequest, error) {
	params := url.Values{}
	params.Set("tokenAddress", token)
	params.Set("amount", amountWei.String())

	var tx swapTransaction
	if err := c.get(ctx, fmt.Sprintf("/swap/v6.0/%d/approve/transaction", chainID), params, &tx); err != nil {
		return nil, err
	}
	return transactionRequestFromSwapTx(&tx)
}

func transactionRequestFromSwapTx(tx *swapTransaction) (*ethereum.TransactionRequest, error) {
	value := big.NewInt(0)
	if tx.Value != "" {
		v, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid transaction value '%s'", tx.Value)
		}
		value = v
	}
	gasPrice := big.NewInt(0)
	if tx.GasPrice != "" {
		v, ok := new(big.Int).SetString(tx.GasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid gas price '%s'", tx.GasPrice)
		}
		gasPrice = v
	}
	return &ethereum.TransactionRequest{
		To:       tx.To,
		Data:     tx.Data,
		Value:    value,
		Gas:      tx.Gas,
		GasPrice: gasPrice,
	}, nil
}
