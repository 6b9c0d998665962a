package settlement

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/groupfi/treasury-engine/internal/metrics/metricsTypes"
	"github.com/groupfi/treasury-engine/pkg/ledger"
	"github.com/groupfi/treasury-engine/pkg/transferLog"
	"github.com/groupfi/treasury-engine/pkg/utils"
)

// Buy swaps pooled native currency into token on the given chain and credits
// the delivered amount across all members pro-rata by share.
//
// amount is in native units; zero selects the group's default buy size.
// slippageBps zero selects the group's configured slippage. Everything before
// the broadcast rejects outright; after the broadcast the trade is always
// recorded, with amountOut 0 and a decode-gap flag if no Transfer log matched.
func (e *Engine) Buy(
	ctx context.Context,
	groupID string,
	memberID string,
	chainID uint64,
	token string,
	amount decimal.Decimal,
	slippageBps uint64,
) (*SwapOutcome, error) {
	start := time.Now()

	chain, err := e.registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	treasury, err := e.store.Load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if !treasury.Settings.TradingEnabled {
		return nil, errors.Wrapf(ErrTradingDisabled, "groupId '%s'", groupID)
	}
	if err := validTradeToken(token); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		amount = treasury.Settings.DefaultBuySize
	}
	if !amount.IsPositive() {
		return nil, errors.Errorf("buy amount must be positive, got %s", amount)
	}
	if slippageBps == 0 {
		slippageBps = treasury.Settings.SlippageBps
	}
	if treasury.NativeBalance(chainID).LessThan(amount) {
		return nil, errors.Wrapf(ledger.ErrInsufficientBalance,
			"groupId '%s' chain %d balance %s < %s", groupID, chainID, treasury.NativeBalance(chainID), amount)
	}

	amountWei := amount.Shift(chain.NativeDecimals).BigInt()
	txReq, err := e.aggregator.BuildSwap(ctx, chainID, utils.NativeTokenAddress, token, amountWei, treasury.TreasuryAddress, slippageBps)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideBuy, chainID, "quote")
		return nil, err
	}

	gateway := e.newGateway(chain)
	receipt, txHash, err := e.executeTransaction(ctx, gateway, treasury, txReq)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideBuy, chainID, "broadcast")
		// A non-empty hash means a node accepted the broadcast; the trade's
		// fate is unknown and must survive this error.
		if txHash != "" {
			e.persistPendingTrade(ctx, groupID, &ledger.PendingTrade{
				TxHash:   txHash,
				Side:     ledger.TradeSideBuy,
				MemberID: memberID,
				ChainID:  chainID,
				Token:    token,
				AmountIn: amount,
				Reason:   err.Error(),
			})
		}
		return nil, err
	}
	if !receipt.Succeeded() {
		e.recordTradeFailure(ledger.TradeSideBuy, chainID, "reverted")
		return nil, errors.Errorf("swap transaction '%s' reverted on-chain", txHash)
	}

	amountOutRaw, found := transferLog.AmountReceived(receipt, token, treasury.TreasuryAddress)
	amountOut := decimal.NewFromBigInt(amountOutRaw, 0)
	if !found {
		e.logger.Sugar().Errorw("No Transfer log matched, recording trade with zero amount out",
			zap.String("groupId", groupID),
			zap.String("txHash", txHash),
			zap.String("token", token),
		)
		_ = e.metrics.Incr(metricsTypes.Metric_Incr_DecodeGap, chainMetricLabels(chainID), 1)
	}

	outcome := &SwapOutcome{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Value(),
		ChainID:     chainID,
		Token:       token,
		AmountIn:    amount,
		AmountOut:   amountOut,
		DecodeGap:   !found,
	}

	e.settleLedger(ctx, groupID, outcome, func(t *ledger.Treasury) error {
		if t.HasTrade(txHash) {
			return nil
		}
		if err := t.DebitNative(chainID, amount); err != nil {
			return err
		}
		if err := t.CreditSwapResult(chainID, token, amountOut); err != nil {
			return err
		}
		t.RecordTrade(&ledger.TradeLogEntry{
			TxHash:      txHash,
			Side:        ledger.TradeSideBuy,
			MemberID:    memberID,
			ChainID:     chainID,
			Token:       token,
			AmountIn:    amount,
			AmountOut:   amountOut,
			DecodeGap:   !found,
			BlockNumber: receipt.BlockNumber.Value(),
		})
		return nil
	})

	_ = e.metrics.Incr(metricsTypes.Metric_Incr_TradeSettled, e.tradeMetricLabels(ledger.TradeSideBuy, chainID), 1)
	e.observeDuration(metricsTypes.Metric_Timing_BuyDuration, chainID, start)
	e.attachCommentary(ctx, outcome, ledger.TradeSideBuy)

	e.logger.Sugar().Infow("Buy settled",
		zap.String("groupId", groupID),
		zap.String("txHash", txHash),
		zap.Uint64("chainId", chainID),
		zap.String("token", token),
		zap.String("amountIn", amount.String()),
		zap.String("amountOut", amountOut.String()),
	)
	return outcome, nil
}
