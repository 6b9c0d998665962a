// Package settlement orchestrates swaps and deposits end to end: quote,
// sign, broadcast, confirm, decode, and durably record the outcome in the
// group's ledger. It owns the partial-failure policy; everything that happens
// after a broadcast must end in a ledger update or a reconciliation flag,
// never a silently dropped trade.
package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/groupfi/treasury-engine/internal/config"
	"github.com/groupfi/treasury-engine/internal/metrics/metricsTypes"
	"github.com/groupfi/treasury-engine/pkg/chains"
	"github.com/groupfi/treasury-engine/pkg/clients/ethereum"
	"github.com/groupfi/treasury-engine/pkg/clients/explorer"
	"github.com/groupfi/treasury-engine/pkg/clients/geckoterminal"
	"github.com/groupfi/treasury-engine/pkg/keystore"
	"github.com/groupfi/treasury-engine/pkg/ledger"
	"github.com/groupfi/treasury-engine/pkg/ledger/ledgerStore"
	"github.com/groupfi/treasury-engine/pkg/utils"
)

// ChainGateway is the per-chain RPC surface the engine needs. A gateway is
// resolved from the chain registry per operation; the engine holds no
// current-chain state.
type ChainGateway interface {
	ChainID() uint64
	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, rawTx string) (string, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error)
	GetTransactionByHash(ctx context.Context, txHash string) (*ethereum.EthereumTransaction, error)
	WaitForReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error)
}

// GatewayFactory builds a gateway for one chain registry entry.
type GatewayFactory func(chain chains.Chain) ChainGateway

// Aggregator produces ready-to-sign swap and approval calldata.
type Aggregator interface {
	BuildSwap(ctx context.Context, chainID uint64, src string, dst string, amountWei *big.Int, from string, slippageBps uint64) (*ethereum.TransactionRequest, error)
	BuildApprove(ctx context.Context, chainID uint64, token string, amountWei *big.Int) (*ethereum.TransactionRequest, error)
}

// DepositLocator attributes a transaction hash to its home chain.
type DepositLocator interface {
	Locate(ctx context.Context, txHash string) (*explorer.LocatedTransaction, error)
}

// KeyStore encrypts and decrypts custodial keys. Decrypt fails closed.
type KeyStore interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Commentator produces an optional short note attached to trade outcomes.
type Commentator interface {
	GetCommentary(ctx context.Context, prompt string) (string, error)
}

// PoolLookup resolves the most liquid pool trading a token, used to enrich
// commentary prompts with market data. A nil pool means no indexed pool.
type PoolLookup interface {
	GetTopPool(ctx context.Context, network string, tokenAddress string) (*geckoterminal.Pool, error)
}

// SwapOutcome is what the front end sees after a settled trade. TxHash is
// populated as soon as a broadcast was accepted, regardless of how the rest
// of the pipeline went.
type SwapOutcome struct {
	TxHash      string
	BlockNumber uint64
	ChainID     uint64
	Token       string
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	// DecodeGap is set when no Transfer log matched and AmountOut is 0; the
	// trade is still recorded and must be reconciled manually.
	DecodeGap bool
	// NeedsReconciliation is set when the on-chain swap succeeded but either
	// the ledger update could not be persisted within the retry budget or the
	// proceeds could not be measured; the recorded amounts need a manual pass.
	NeedsReconciliation bool
	Commentary          string
}

// DepositOutcome reports a deposit submission. Duplicate hashes are a success
// with Credited=false.
type DepositOutcome struct {
	Credited bool
	ChainID  uint64
	Amount   decimal.Decimal
}

// SettingsUpdate carries the optional per-group setting mutations. Nil fields
// are left unchanged.
type SettingsUpdate struct {
	SlippageBps    *uint64
	DefaultBuySize *decimal.Decimal
	TradingEnabled *bool
}

const defaultBroadcastRetries = 3

// ledgerUpdateRetries bounds post-broadcast persistence attempts before the
// outcome is flagged for manual reconciliation.
const ledgerUpdateRetries = 3

// balanceQueryRetries bounds re-reads of the treasury balance after a
// confirmed sell; exhausting them settles with zero proceeds and a
// reconciliation flag rather than dropping the trade.
const balanceQueryRetries = 3

type Engine struct {
	registry    *chains.Registry
	newGateway  GatewayFactory
	aggregator  Aggregator
	locator     DepositLocator
	keys        KeyStore
	store       ledgerStore.GroupStore
	metrics     metricsTypes.IMetricsClient
	commentator Commentator
	pools       PoolLookup
	logger      *zap.Logger

	broadcastRetries int

	// createMu serializes first-time group creation; Update's keyed lock only
	// covers groups that already exist.
	createMu sync.Mutex
}

func NewEngine(
	registry *chains.Registry,
	newGateway GatewayFactory,
	aggregator Aggregator,
	locator DepositLocator,
	keys KeyStore,
	store ledgerStore.GroupStore,
	metrics metricsTypes.IMetricsClient,
	cfg *config.SettlementConfig,
	l *zap.Logger,
) *Engine {
	retries := defaultBroadcastRetries
	if cfg != nil && cfg.BroadcastRetries > 0 {
		retries = cfg.BroadcastRetries
	}
	return &Engine{
		registry:         registry,
		newGateway:       newGateway,
		aggregator:       aggregator,
		locator:          locator,
		keys:             keys,
		store:            store,
		metrics:          metrics,
		logger:           l,
		broadcastRetries: retries,
	}
}

// WithCommentator attaches an optional commentary client.
func (e *Engine) WithCommentator(c Commentator) *Engine {
	e.commentator = c
	return e
}

// WithPoolLookup attaches an optional pool data source for commentary prompts.
func (e *Engine) WithPoolLookup(p PoolLookup) *Engine {
	e.pools = p
	return e
}

// EnsureGroup returns the group's treasury, creating it on first interaction:
// a fresh custodial key is generated, encrypted, and stored alongside default
// settings.
func (e *Engine) EnsureGroup(ctx context.Context, groupID string) (*ledger.Treasury, error) {
	treasury, err := e.store.Load(ctx, groupID)
	if err == nil {
		return treasury, nil
	}
	if !errors.Is(err, ledgerStore.ErrGroupNotFound) {
		return nil, err
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	// Re-check under the lock; another request may have created the group.
	treasury, err = e.store.Load(ctx, groupID)
	if err == nil {
		return treasury, nil
	}
	if !errors.Is(err, ledgerStore.ErrGroupNotFound) {
		return nil, err
	}

	privateKey, address, err := keystore.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate custodial key for group '%s': %w", groupID, err)
	}
	encryptedKey, err := e.keys.Encrypt(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt custodial key for group '%s': %w", groupID, err)
	}

	treasury = ledger.NewTreasury(groupID, address, encryptedKey)
	if err := e.store.Save(ctx, treasury); err != nil {
		return nil, err
	}

	e.logger.Sugar().Infow("Created group treasury",
		zap.String("groupId", groupID),
		zap.String("treasuryAddress", address),
	)
	if count, err := e.store.CountGroups(ctx); err == nil {
		_ = e.metrics.Gauge(metricsTypes.Metric_Gauge_GroupCount, float64(count), nil)
	}
	return treasury, nil
}

// GetPositions returns the group's current ledger snapshot.
func (e *Engine) GetPositions(ctx context.Context, groupID string) (*ledger.Treasury, error) {
	return e.store.Load(ctx, groupID)
}

// UpdateSettings applies the non-nil fields of the update under the group's
// writer lock.
func (e *Engine) UpdateSettings(ctx context.Context, groupID string, update *SettingsUpdate) (*ledger.Treasury, error) {
	return e.store.Update(ctx, groupID, func(t *ledger.Treasury) error {
		if update.SlippageBps != nil {
			if err := t.SetSlippageBps(*update.SlippageBps); err != nil {
				return err
			}
		}
		if update.DefaultBuySize != nil {
			if err := t.SetDefaultBuySize(*update.DefaultBuySize); err != nil {
				return err
			}
		}
		if update.TradingEnabled != nil {
			t.SetTradingEnabled(*update.TradingEnabled)
		}
		return nil
	})
}

// executeTransaction runs the sign/broadcast/confirm pipeline for one
// prepared transaction request. The custodial key is decrypted for the
// duration of the signing call only. Broadcast failures are retried with the
// same calldata up to the bounded budget; once a broadcast is accepted the
// transaction is never re-sent, and a confirmation timeout is resolved by
// re-querying chain state.
func (e *Engine) executeTransaction(
	ctx context.Context,
	gateway ChainGateway,
	treasury *ledger.Treasury,
	txReq *ethereum.TransactionRequest,
) (*ethereum.EthereumTransactionReceipt, string, error) {
	privateKey, err := e.keys.Decrypt(treasury.EncryptedKey)
	if err != nil {
		return nil, "", errors.Wrapf(ErrKeyDecryption, "groupId '%s': %v", treasury.GroupID, err)
	}

	nonce, err := gateway.PendingNonce(ctx, treasury.TreasuryAddress)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch nonce: %w", err)
	}
	txReq.Nonce = nonce

	if txReq.GasPrice == nil || txReq.GasPrice.Sign() == 0 {
		gasPrice, err := gateway.GasPrice(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch gas price: %w", err)
		}
		txReq.GasPrice = gasPrice
	}

	rawTx, err := ethereum.SignTransaction(privateKey, gateway.ChainID(), txReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	var txHash string
	var broadcastErr error
	for attempt := 1; attempt <= e.broadcastRetries; attempt++ {
		txHash, broadcastErr = gateway.SendRawTransaction(ctx, rawTx)
		if broadcastErr == nil {
			break
		}
		e.logger.Sugar().Errorw("Broadcast attempt failed",
			zap.String("groupId", treasury.GroupID),
			zap.Uint64("chainId", gateway.ChainID()),
			zap.Int("attempt", attempt),
			zap.Error(broadcastErr),
		)
	}
	if broadcastErr != nil {
		return nil, "", &BroadcastError{Attempts: e.broadcastRetries, Err: broadcastErr}
	}

	receipt, err := gateway.WaitForReceipt(ctx, txHash)
	if err != nil {
		if !errors.Is(err, ethereum.ErrConfirmationTimeout) {
			return nil, txHash, err
		}
		// The transaction may still have landed; check before giving up.
		tx, queryErr := gateway.GetTransactionByHash(ctx, txHash)
		if queryErr != nil || tx == nil || !tx.Mined() {
			return nil, txHash, err
		}
		receipt, err = gateway.GetTransactionReceipt(ctx, txHash)
		if err != nil || receipt == nil {
			return nil, txHash, errors.Wrapf(ethereum.ErrConfirmationTimeout, "txHash '%s' mined but receipt unavailable", txHash)
		}
	}
	return receipt, txHash, nil
}

// persistPendingTrade durably marks a broadcast whose confirmation could not
// be established, so the transaction hash survives the returned error and a
// reconciliation pass can resolve the trade later. Settling a trade with the
// same hash clears the marker.
func (e *Engine) persistPendingTrade(ctx context.Context, groupID string, pending *ledger.PendingTrade) {
	var err error
	for attempt := 1; attempt <= ledgerUpdateRetries; attempt++ {
		if _, err = e.store.Update(ctx, groupID, func(t *ledger.Treasury) error {
			t.RecordPendingTrade(pending)
			return nil
		}); err == nil {
			return
		}
		e.logger.Sugar().Errorw("Failed to persist pending trade marker",
			zap.String("groupId", groupID),
			zap.String("txHash", pending.TxHash),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// settleLedger retries a post-broadcast ledger mutation. The swap is already
// irreversible on-chain, so a persistent failure is flagged for manual
// reconciliation instead of being dropped.
func (e *Engine) settleLedger(ctx context.Context, groupID string, outcome *SwapOutcome, mutate func(*ledger.Treasury) error) {
	var err error
	for attempt := 1; attempt <= ledgerUpdateRetries; attempt++ {
		if _, err = e.store.Update(ctx, groupID, mutate); err == nil {
			return
		}
		e.logger.Sugar().Errorw("Ledger update failed after settled swap",
			zap.String("groupId", groupID),
			zap.String("txHash", outcome.TxHash),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	outcome.NeedsReconciliation = true
}

// validTradeToken rejects the addresses aggregators treat specially: the
// native pseudo-address (buys already spend native) and the null address.
func validTradeToken(token string) error {
	if utils.IsNativeToken(token) || utils.AreAddressesEqual(token, utils.NullEthereumAddressHex) {
		return errors.Wrapf(ErrInvalidToken, "token '%s'", token)
	}
	return nil
}

func chainMetricLabels(chainID uint64) []metricsTypes.MetricsLabel {
	return []metricsTypes.MetricsLabel{
		{Name: "chain", Value: strconv.FormatUint(chainID, 10)},
	}
}

func (e *Engine) tradeMetricLabels(side ledger.TradeSide, chainID uint64) []metricsTypes.MetricsLabel {
	return []metricsTypes.MetricsLabel{
		{Name: "side", Value: string(side)},
		{Name: "chain", Value: strconv.FormatUint(chainID, 10)},
	}
}

func (e *Engine) recordTradeFailure(side ledger.TradeSide, chainID uint64, stage string) {
	_ = e.metrics.Incr(metricsTypes.Metric_Incr_TradeFailed, []metricsTypes.MetricsLabel{
		{Name: "side", Value: string(side)},
		{Name: "chain", Value: strconv.FormatUint(chainID, 10)},
		{Name: "stage", Value: stage},
	}, 1)
}

func (e *Engine) attachCommentary(ctx context.Context, outcome *SwapOutcome, side ledger.TradeSide) {
	if e.commentator == nil {
		return
	}
	prompt := fmt.Sprintf("side=%s chain=%d token=%s amountIn=%s amountOut=%s",
		side, outcome.ChainID, outcome.Token, outcome.AmountIn, outcome.AmountOut)
	if e.pools != nil {
		if chain, err := e.registry.Get(outcome.ChainID); err == nil && chain.PoolNetwork != "" {
			pool, err := e.pools.GetTopPool(ctx, chain.PoolNetwork, outcome.Token)
			if err != nil {
				e.logger.Sugar().Debugw("Pool lookup failed", zap.Error(err))
			} else if pool != nil {
				prompt = fmt.Sprintf("%s pool=%s volume24hUsd=%s liquidityUsd=%s",
					prompt, pool.Attributes.Name, pool.Attributes.VolumeUSD.H24, pool.Attributes.ReserveInUSD)
			}
		}
	}
	note, err := e.commentator.GetCommentary(ctx, prompt)
	if err != nil {
		e.logger.Sugar().Debugw("Commentary request failed", zap.Error(err))
		return
	}
	outcome.Commentary = note
}

func (e *Engine) observeDuration(metric string, chainID uint64, start time.Time) {
	_ = e.metrics.Timing(metric, time.Since(start), []metricsTypes.MetricsLabel{
		{Name: "chain", Value: strconv.FormatUint(chainID, 10)},
	})
}
