package ledger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestTreasury() *Treasury {
	return NewTreasury("G1", "0xccccccccccccccccccccccccccccccccccccccc3", "iv:cipher")
}

func Test_Treasury(t *testing.T) {
	token := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"

	t.Run("Should credit a deposit exactly once across duplicate submissions", func(t *testing.T) {
		treasury := newTestTreasury()

		err := treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.1"))
		assert.Nil(t, err)

		for i := 0; i < 5; i++ {
			err = treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.1"))
			assert.True(t, errors.Is(err, ErrDuplicateDeposit))
		}

		assert.Equal(t, "0.1", treasury.NativeBalance(8453).String())
		assert.Equal(t, "0.1", treasury.TotalShare.String())
		assert.Equal(t, 1, len(treasury.DepositLog))
	})

	t.Run("Should keep the share sum invariant across buys and sells", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.6")))
		assert.Nil(t, treasury.CreditDeposit("0xtxB", 8453, "bob", decimal.RequireFromString("0.4")))

		shareSum := func() decimal.Decimal {
			sum := decimal.Zero
			for _, m := range treasury.Members {
				sum = sum.Add(m.Share)
			}
			return sum
		}
		before := shareSum()
		assert.True(t, before.Equal(treasury.TotalShare))

		assert.Nil(t, treasury.DebitNative(8453, decimal.RequireFromString("0.5")))
		assert.Nil(t, treasury.CreditSwapResult(8453, token, decimal.NewFromInt(1000)))
		assert.Nil(t, treasury.SettleSell("alice", 8453, token, decimal.NewFromInt(600), decimal.RequireFromString("0.3")))

		assert.True(t, shareSum().Equal(before))
		assert.True(t, treasury.TotalShare.Equal(before))
	})

	t.Run("Should distribute buy proceeds and debits pro-rata by share", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.6")))
		assert.Nil(t, treasury.CreditDeposit("0xtxB", 8453, "bob", decimal.RequireFromString("0.4")))

		assert.Nil(t, treasury.DebitNative(8453, decimal.RequireFromString("0.1")))
		assert.Nil(t, treasury.CreditSwapResult(8453, token, decimal.NewFromInt(1000)))

		assert.Equal(t, "0.54", treasury.Members["alice"].NativeBalances[8453].String())
		assert.Equal(t, "0.36", treasury.Members["bob"].NativeBalances[8453].String())
		assert.Equal(t, "600", treasury.MemberHolding("alice", 8453, token).String())
		assert.Equal(t, "400", treasury.MemberHolding("bob", 8453, token).String())

		assert.Equal(t, 1, len(treasury.TokenHoldings))
		assert.Equal(t, "1000", treasury.TokenHoldings[0].Amount.String())
	})

	t.Run("Should reject a debit exceeding the pooled chain balance before mutating", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.1")))

		err := treasury.DebitNative(8453, decimal.RequireFromString("0.2"))
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
		assert.Equal(t, "0.1", treasury.NativeBalance(8453).String())

		err = treasury.DebitNative(534352, decimal.RequireFromString("0.01"))
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
	})

	t.Run("Should settle a sell against the acting member only", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.5")))
		assert.Nil(t, treasury.CreditDeposit("0xtxB", 8453, "bob", decimal.RequireFromString("0.5")))
		assert.Nil(t, treasury.DebitNative(8453, decimal.RequireFromString("0.2")))
		assert.Nil(t, treasury.CreditSwapResult(8453, token, decimal.NewFromInt(1000)))

		assert.Nil(t, treasury.SettleSell("alice", 8453, token, decimal.NewFromInt(500), decimal.RequireFromString("0.15")))

		assert.Equal(t, "0", treasury.MemberHolding("alice", 8453, token).String())
		assert.Equal(t, "500", treasury.MemberHolding("bob", 8453, token).String())
		assert.Equal(t, "0.55", treasury.Members["alice"].NativeBalances[8453].String())
		assert.Equal(t, "0.4", treasury.Members["bob"].NativeBalances[8453].String())
		assert.Equal(t, "500", treasury.TokenHoldings[0].Amount.String())
	})

	t.Run("Should reject selling more than the member holds", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("1")))
		assert.Nil(t, treasury.CreditSwapResult(8453, token, decimal.NewFromInt(100)))

		err := treasury.SettleSell("alice", 8453, token, decimal.NewFromInt(200), decimal.RequireFromString("0.1"))
		assert.True(t, errors.Is(err, ErrInsufficientBalance))

		err = treasury.SettleSell("mallory", 8453, token, decimal.NewFromInt(1), decimal.Zero)
		assert.True(t, errors.Is(err, ErrUnknownMember))
	})

	t.Run("Should record each trade hash at most once", func(t *testing.T) {
		treasury := newTestTreasury()
		entry := &TradeLogEntry{
			TxHash:    "0xswap1",
			Side:      TradeSideBuy,
			MemberID:  "alice",
			ChainID:   8453,
			Token:     token,
			AmountIn:  decimal.RequireFromString("0.05"),
			AmountOut: decimal.NewFromInt(500),
		}
		treasury.RecordTrade(entry)
		treasury.RecordTrade(&TradeLogEntry{TxHash: "0xswap1", Side: TradeSideBuy})

		assert.Equal(t, 1, len(treasury.TradeLog))
		assert.True(t, treasury.HasTrade("0xswap1"))
		assert.False(t, treasury.HasTrade("0xswap2"))
	})

	t.Run("Should keep a pending marker until the trade settles", func(t *testing.T) {
		treasury := newTestTreasury()
		treasury.RecordPendingTrade(&PendingTrade{
			TxHash:   "0xswap1",
			Side:     TradeSideBuy,
			MemberID: "alice",
			ChainID:  8453,
			Token:    token,
			AmountIn: decimal.RequireFromString("0.05"),
			Reason:   "confirmation timed out",
		})
		treasury.RecordPendingTrade(&PendingTrade{TxHash: "0xswap1", Side: TradeSideBuy})

		assert.Equal(t, 1, len(treasury.PendingTrades))
		assert.True(t, treasury.HasPendingTrade("0xswap1"))
		assert.False(t, treasury.PendingTrades[0].Timestamp.IsZero())

		treasury.RecordTrade(&TradeLogEntry{
			TxHash:    "0xswap1",
			Side:      TradeSideBuy,
			MemberID:  "alice",
			ChainID:   8453,
			Token:     token,
			AmountIn:  decimal.RequireFromString("0.05"),
			AmountOut: decimal.NewFromInt(500),
		})

		assert.Equal(t, 0, len(treasury.PendingTrades))
		assert.False(t, treasury.HasPendingTrade("0xswap1"))
		assert.True(t, treasury.HasTrade("0xswap1"))
	})

	t.Run("Should apply the deposit-then-buy scenario", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.1")))
		assert.True(t, treasury.ProcessedDeposits["0xtxA"])

		assert.Nil(t, treasury.DebitNative(8453, decimal.RequireFromString("0.05")))
		assert.Nil(t, treasury.CreditSwapResult(8453, "T", decimal.NewFromInt(500)))
		treasury.RecordTrade(&TradeLogEntry{
			TxHash:    "0xswap1",
			Side:      TradeSideBuy,
			MemberID:  "alice",
			ChainID:   8453,
			Token:     "T",
			AmountIn:  decimal.RequireFromString("0.05"),
			AmountOut: decimal.NewFromInt(500),
		})

		assert.Equal(t, 1, len(treasury.TokenHoldings))
		assert.Equal(t, uint64(8453), treasury.TokenHoldings[0].ChainID)
		assert.Equal(t, "T", treasury.TokenHoldings[0].Token)
		assert.Equal(t, "500", treasury.TokenHoldings[0].Amount.String())

		assert.Equal(t, 1, len(treasury.TradeLog))
		assert.Equal(t, TradeSideBuy, treasury.TradeLog[0].Side)
		assert.Equal(t, "500", treasury.TradeLog[0].AmountOut.String())
	})

	t.Run("Should validate settings mutations", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Equal(t, uint64(250), treasury.Settings.SlippageBps)
		assert.Equal(t, "0.01", treasury.Settings.DefaultBuySize.String())
		assert.True(t, treasury.Settings.TradingEnabled)

		assert.Nil(t, treasury.SetSlippageBps(500))
		assert.NotNil(t, treasury.SetSlippageBps(5))
		assert.NotNil(t, treasury.SetSlippageBps(10001))
		assert.Equal(t, uint64(500), treasury.Settings.SlippageBps)

		assert.Nil(t, treasury.SetDefaultBuySize(decimal.RequireFromString("0.2")))
		assert.NotNil(t, treasury.SetDefaultBuySize(decimal.Zero))

		treasury.SetTradingEnabled(false)
		assert.False(t, treasury.Settings.TradingEnabled)
	})
}

func Test_Replay(t *testing.T) {
	token := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"

	t.Run("Should reproduce the live state from the merged logs", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("0.6")))
		assert.Nil(t, treasury.CreditDeposit("0xtxB", 8453, "bob", decimal.RequireFromString("0.4")))

		assert.Nil(t, treasury.DebitNative(8453, decimal.RequireFromString("0.1")))
		assert.Nil(t, treasury.CreditSwapResult(8453, token, decimal.NewFromInt(1000)))
		treasury.RecordTrade(&TradeLogEntry{
			TxHash:    "0xswap1",
			Side:      TradeSideBuy,
			MemberID:  "alice",
			ChainID:   8453,
			Token:     token,
			AmountIn:  decimal.RequireFromString("0.1"),
			AmountOut: decimal.NewFromInt(1000),
		})

		assert.Nil(t, treasury.SettleSell("bob", 8453, token, decimal.NewFromInt(400), decimal.RequireFromString("0.05")))
		treasury.RecordTrade(&TradeLogEntry{
			TxHash:    "0xswap2",
			Side:      TradeSideSell,
			MemberID:  "bob",
			ChainID:   8453,
			Token:     token,
			AmountIn:  decimal.NewFromInt(400),
			AmountOut: decimal.RequireFromString("0.05"),
		})

		assert.Nil(t, treasury.CreditDeposit("0xtxC", 534352, "alice", decimal.RequireFromString("0.2")))

		replayed, err := treasury.Replay()
		assert.Nil(t, err)

		assert.True(t, replayed.TotalShare.Equal(treasury.TotalShare))
		assert.Equal(t, len(treasury.Members), len(replayed.Members))
		for id, m := range treasury.Members {
			rm := replayed.Members[id]
			assert.NotNil(t, rm)
			assert.True(t, rm.Share.Equal(m.Share), "share of %s", id)
			for chainID, balance := range m.NativeBalances {
				assert.True(t, rm.NativeBalances[chainID].Equal(balance), "balance of %s on %d", id, chainID)
			}
			for _, h := range m.Holdings {
				assert.True(t, replayed.MemberHolding(id, h.ChainID, h.Token).Equal(h.Amount), "holding of %s", id)
			}
		}
		for _, h := range treasury.TokenHoldings {
			rh := findHolding(replayed.TokenHoldings, h.ChainID, h.Token)
			assert.NotNil(t, rh)
			assert.True(t, rh.Amount.Equal(h.Amount))
		}
		assert.Equal(t, len(treasury.ProcessedDeposits), len(replayed.ProcessedDeposits))
		assert.Equal(t, treasury.Seq, replayed.Seq)
	})

	t.Run("Should fail on a history with an unknown trade side", func(t *testing.T) {
		treasury := newTestTreasury()
		assert.Nil(t, treasury.CreditDeposit("0xtxA", 8453, "alice", decimal.RequireFromString("1")))
		treasury.RecordTrade(&TradeLogEntry{TxHash: "0xswap1", Side: TradeSide("short")})

		_, err := treasury.Replay()
		assert.NotNil(t, err)
	})
}
