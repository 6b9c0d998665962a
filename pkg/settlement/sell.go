package settlement

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/groupfi/treasury-engine/internal/metrics/metricsTypes"
	"github.com/groupfi/treasury-engine/pkg/ledger"
	"github.com/groupfi/treasury-engine/pkg/utils"
)

// Sell liquidates the member's entire holding of token on the given chain
// back into native currency and credits the proceeds to that member alone.
//
// Two legs: approve the aggregator's router, then execute the swap. Proceeds
// are measured as the treasury's native-balance delta across the swap, since
// native currency has no Transfer log. If the approve leg confirms but the
// swap leg fails, holdings are untouched and ErrApprovalOutstanding is
// returned; the allowance is already on-chain and a retry must not re-approve.
// A swap broadcast whose confirmation cannot be established leaves a pending
// marker so the trade survives the error.
func (e *Engine) Sell(
	ctx context.Context,
	groupID string,
	memberID string,
	chainID uint64,
	token string,
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
	if slippageBps == 0 {
		slippageBps = treasury.Settings.SlippageBps
	}

	holding := treasury.MemberHolding(memberID, chainID, token)
	if !holding.IsPositive() {
		return nil, errors.Wrapf(ledger.ErrInsufficientBalance,
			"member '%s' holds no %s on chain %d", memberID, token, chainID)
	}
	amountWei := holding.BigInt()

	gateway := e.newGateway(chain)
	balanceBefore, err := gateway.GetNativeBalance(ctx, treasury.TreasuryAddress)
	if err != nil {
		return nil, err
	}

	// Leg 1: approve. Failure here leaves nothing outstanding.
	approveReq, err := e.aggregator.BuildApprove(ctx, chainID, token, amountWei)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "approve_quote")
		return nil, err
	}
	approveReceipt, approveHash, err := e.executeTransaction(ctx, gateway, treasury, approveReq)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "approve")
		return nil, err
	}
	if !approveReceipt.Succeeded() {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "approve_reverted")
		return nil, errors.Errorf("approve transaction '%s' reverted on-chain", approveHash)
	}

	// Leg 2: swap. Any failure from here on surfaces the outstanding approval.
	swapReq, err := e.aggregator.BuildSwap(ctx, chainID, token, utils.NativeTokenAddress, amountWei, treasury.TreasuryAddress, slippageBps)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "swap_quote")
		return nil, errors.Wrapf(ErrApprovalOutstanding, "groupId '%s': %v", groupID, err)
	}
	receipt, txHash, err := e.executeTransaction(ctx, gateway, treasury, swapReq)
	if err != nil {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "swap")
		// A non-empty hash means a node accepted the broadcast; the trade's
		// fate is unknown and must survive this error.
		if txHash != "" {
			e.persistPendingTrade(ctx, groupID, &ledger.PendingTrade{
				TxHash:   txHash,
				Side:     ledger.TradeSideSell,
				MemberID: memberID,
				ChainID:  chainID,
				Token:    token,
				AmountIn: holding,
				Reason:   err.Error(),
			})
		}
		return nil, errors.Wrapf(ErrApprovalOutstanding, "groupId '%s': %v", groupID, err)
	}
	if !receipt.Succeeded() {
		e.recordTradeFailure(ledger.TradeSideSell, chainID, "swap_reverted")
		return nil, errors.Wrapf(ErrApprovalOutstanding, "swap transaction '%s' reverted on-chain", txHash)
	}

	// The swap is confirmed on-chain from here on; the ledger update must
	// happen even if the proceeds cannot be measured. A persistently failing
	// balance query settles with zero proceeds and a reconciliation flag.
	balanceAfter, err := gateway.GetNativeBalance(ctx, treasury.TreasuryAddress)
	for attempt := 1; err != nil && attempt < balanceQueryRetries; attempt++ {
		balanceAfter, err = gateway.GetNativeBalance(ctx, treasury.TreasuryAddress)
	}
	proceeds := decimal.Zero
	proceedsUnknown := err != nil
	if proceedsUnknown {
		e.logger.Sugar().Errorw("Could not measure sell proceeds, settling with zero",
			zap.String("groupId", groupID),
			zap.String("txHash", txHash),
			zap.Error(err),
		)
	} else {
		proceeds = balanceAfter.Sub(balanceBefore)
		if proceeds.IsNegative() {
			proceeds = decimal.Zero
		}
	}

	outcome := &SwapOutcome{
		TxHash:              txHash,
		BlockNumber:         receipt.BlockNumber.Value(),
		ChainID:             chainID,
		Token:               token,
		AmountIn:            holding,
		AmountOut:           proceeds,
		NeedsReconciliation: proceedsUnknown,
	}

	e.settleLedger(ctx, groupID, outcome, func(t *ledger.Treasury) error {
		if t.HasTrade(txHash) {
			return nil
		}
		if err := t.SettleSell(memberID, chainID, token, holding, proceeds); err != nil {
			return err
		}
		t.RecordTrade(&ledger.TradeLogEntry{
			TxHash:      txHash,
			Side:        ledger.TradeSideSell,
			MemberID:    memberID,
			ChainID:     chainID,
			Token:       token,
			AmountIn:    holding,
			AmountOut:   proceeds,
			BlockNumber: receipt.BlockNumber.Value(),
		})
		return nil
	})

	_ = e.metrics.Incr(metricsTypes.Metric_Incr_TradeSettled, e.tradeMetricLabels(ledger.TradeSideSell, chainID), 1)
	e.observeDuration(metricsTypes.Metric_Timing_SellDuration, chainID, start)
	e.attachCommentary(ctx, outcome, ledger.TradeSideSell)

	e.logger.Sugar().Infow("Sell settled",
		zap.String("groupId", groupID),
		zap.String("txHash", txHash),
		zap.Uint64("chainId", chainID),
		zap.String("token", token),
		zap.String("amountSold", holding.String()),
		zap.String("proceeds", proceeds.String()),
	)
	return outcome, nil
}
