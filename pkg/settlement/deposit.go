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

// RecordDeposit resolves a member-submitted transaction hash to its home
// chain, verifies it pays the group's treasury, and credits the depositor.
// Re-submitting an already-credited hash is an idempotent success with
// Credited=false.
func (e *Engine) RecordDeposit(ctx context.Context, groupID string, memberID string, txHash string) (*DepositOutcome, error) {
	start := time.Now()

	treasury, err := e.store.Load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	located, err := e.locator.Locate(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !utils.AreAddressesEqual(located.To, treasury.TreasuryAddress) {
		return nil, errors.Wrapf(ErrDepositNotForTreasury,
			"txHash '%s' pays '%s', treasury is '%s'", txHash, located.To, treasury.TreasuryAddress)
	}
	if !located.Mined {
		return nil, errors.Wrapf(ErrDepositNotMined, "txHash '%s'", txHash)
	}

	chain, err := e.registry.Get(located.ChainID)
	if err != nil {
		return nil, err
	}
	amount := decimal.NewFromBigInt(located.ValueWei, -chain.NativeDecimals)

	_, err = e.store.Update(ctx, groupID, func(t *ledger.Treasury) error {
		return t.CreditDeposit(txHash, located.ChainID, memberID, amount)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateDeposit) {
			_ = e.metrics.Incr(metricsTypes.Metric_Incr_DepositDuplicate, chainMetricLabels(located.ChainID), 1)
			return &DepositOutcome{Credited: false, ChainID: located.ChainID, Amount: amount}, nil
		}
		return nil, err
	}

	_ = e.metrics.Incr(metricsTypes.Metric_Incr_DepositCredited, chainMetricLabels(located.ChainID), 1)
	e.observeDuration(metricsTypes.Metric_Timing_DepositDuration, located.ChainID, start)

	e.logger.Sugar().Infow("Deposit credited",
		zap.String("groupId", groupID),
		zap.String("memberId", memberID),
		zap.String("txHash", txHash),
		zap.Uint64("chainId", located.ChainID),
		zap.String("amount", amount.String()),
	)
	return &DepositOutcome{Credited: true, ChainID: located.ChainID, Amount: amount}, nil
}
