package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrConfirmationTimeout is returned by WaitForReceipt when no receipt became
// available within the bounded wait. Callers must re-query chain state before
// treating the transaction as failed; the transaction may still land.
var ErrConfirmationTimeout = errors.New("timed out waiting for transaction receipt")

type EthereumClientConfig struct {
	BaseUrl string
	ChainID uint64
	// NativeDecimals converts wei-denominated balances into native units.
	NativeDecimals int32
	// ReceiptWaitTimeout bounds WaitForReceipt. Zero selects the default.
	ReceiptWaitTimeout time.Duration
	// ReceiptPollInterval is the delay between receipt polls. Zero selects the default.
	ReceiptPollInterval time.Duration
}

const (
	defaultReceiptWaitTimeout  = 2 * time.Minute
	defaultReceiptPollInterval = 3 * time.Second
)

// Client is a thin typed JSON-RPC client for one EVM chain. Endpoint and chain
// id are fixed at construction; nothing about the current chain is process-global.
type Client struct {
	httpClient *http.Client
	config     *EthereumClientConfig
	logger     *zap.Logger
	requestID  atomic.Uint64
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	if cfg.ReceiptWaitTimeout == 0 {
		cfg.ReceiptWaitTimeout = defaultReceiptWaitTimeout
	}
	if cfg.ReceiptPollInterval == 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: l,
	}
}

type rpcRequest struct {
	JsonRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(&rpcRequest{
		JsonRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseUrl, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Sugar().Debugw("Making Ethereum RPC request",
		zap.String("method", method),
		zap.Uint64("chainId", c.config.ChainID),
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
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal rpc result: %w", err)
	}
	return nil
}

// SetHttpClient overrides the underlying HTTP client, used in tests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ChainID() uint64 {
	return c.config.ChainID
}

// GetNativeBalance returns the address's native-currency balance in native
// units (e.g. ETH, not wei).
func (c *Client) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var result EthereumBigQuantity
	if err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"}, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for '%s': %w", address, err)
	}
	return decimal.NewFromBigInt(result.Value(), -c.config.NativeDecimals), nil
}

// PendingNonce returns the next nonce for the address, including pending
// transactions.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	var result EthereumQuantity
	if err := c.call(ctx, "eth_getTransactionCount", []interface{}{address, "pending"}, &result); err != nil {
		return 0, fmt.Errorf("failed to get nonce for '%s': %w", address, err)
	}
	return result.Value(), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result EthereumBigQuantity
	if err := c.call(ctx, "eth_gasPrice", []interface{}{}, &result); err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return result.Value(), nil
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	var result EthereumHexString
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{normalizeHexPrefix(rawTx)}, &result); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return result.Value(), nil
}

// GetTransactionReceipt returns the receipt for a transaction, or nil if the
// transaction is not yet mined.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*EthereumTransactionReceipt, error) {
	var result *EthereumTransactionReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &result); err != nil {
		return nil, fmt.Errorf("failed to get receipt for '%s': %w", txHash, err)
	}
	return result, nil
}

// GetTransactionByHash returns the transaction, or nil if the node does not
// know the hash. Used to re-check chain state after a confirmation timeout.
func (c *Client) GetTransactionByHash(ctx context.Context, txHash string) (*EthereumTransaction, error) {
	var result *EthereumTransaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{txHash}, &result); err != nil {
		return nil, fmt.Errorf("failed to get transaction '%s': %w", txHash, err)
	}
	return result, nil
}

// WaitForReceipt polls for a receipt until one with a final status is
// available or the bounded wait elapses. On timeout it returns
// ErrConfirmationTimeout; it never resubmits.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*EthereumTransactionReceipt, error) {
	deadline := time.Now().Add(c.config.ReceiptWaitTimeout)
	ticker := time.NewTicker(c.config.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.GetTransactionReceipt(ctx, txHash)
		if err != nil {
			c.logger.Sugar().Debugw("Receipt poll failed",
				zap.String("txHash", txHash),
				zap.Error(err),
			)
		} else if receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, errors.Wrapf(ErrConfirmationTimeout, "txHash '%s'", txHash)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
