// Package ledger holds the durable per-group treasury state and the pure
// mutations applied to it. Nothing here performs I/O; persistence and locking
// live in ledgerStore, chain interaction in the settlement engine.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Settings are the per-group trading knobs.
type Settings struct {
	SlippageBps    uint64          `json:"slippageBps"`
	DefaultBuySize decimal.Decimal `json:"defaultBuySize"`
	TradingEnabled bool            `json:"tradingEnabled"`
}

// DefaultSettings mirror the values a group starts with on first interaction.
func DefaultSettings() Settings {
	return Settings{
		SlippageBps:    250,
		DefaultBuySize: decimal.RequireFromString("0.01"),
		TradingEnabled: true,
	}
}

// TokenHolding is an amount of one token held on one chain. Amounts are kept
// in the token's base units.
type TokenHolding struct {
	ChainID uint64          `json:"chainId"`
	Token   string          `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
}

// Member is one participant in the pooled treasury. Share is the member's
// proportional claim; NativeBalances track deposited capital per chain in
// native units.
type Member struct {
	ID             string                     `json:"id"`
	Share          decimal.Decimal            `json:"share"`
	NativeBalances map[uint64]decimal.Decimal `json:"nativeBalances"`
	Holdings       []*TokenHolding            `json:"holdings"`
}

// TradeLogEntry is one settled swap, appended after on-chain confirmation.
// AmountIn is native spent for buys and token sold for sells; AmountOut is the
// delivered token amount for buys and native proceeds for sells.
type TradeLogEntry struct {
	Seq         uint64          `json:"seq"`
	TxHash      string          `json:"txHash"`
	Side        TradeSide       `json:"side"`
	MemberID    string          `json:"memberId"`
	ChainID     uint64          `json:"chainId"`
	Token       string          `json:"token"`
	AmountIn    decimal.Decimal `json:"amountIn"`
	AmountOut   decimal.Decimal `json:"amountOut"`
	DecodeGap   bool            `json:"decodeGap,omitempty"`
	BlockNumber uint64          `json:"blockNumber"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PendingTrade marks a broadcast whose on-chain or ledger fate is unknown:
// the transaction was accepted by a node but confirmation could not be
// established before the caller gave up. The marker survives the error so a
// reconciliation pass can resolve it; settling a trade with the same hash
// clears it.
type PendingTrade struct {
	TxHash    string          `json:"txHash"`
	Side      TradeSide       `json:"side"`
	MemberID  string          `json:"memberId"`
	ChainID   uint64          `json:"chainId"`
	Token     string          `json:"token"`
	AmountIn  decimal.Decimal `json:"amountIn"`
	Reason    string          `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}

// DepositLogEntry is one credited deposit.
type DepositLogEntry struct {
	Seq       uint64          `json:"seq"`
	TxHash    string          `json:"txHash"`
	MemberID  string          `json:"memberId"`
	ChainID   uint64          `json:"chainId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Treasury is the complete durable state of one group. Seq is a monotonic
// counter stamped onto log entries so the merged trade+deposit history has a
// total order for replay.
type Treasury struct {
	GroupID           string             `json:"groupId"`
	TreasuryAddress   string             `json:"treasuryAddress"`
	EncryptedKey      string             `json:"encryptedKey"`
	Settings          Settings           `json:"settings"`
	TotalShare        decimal.Decimal    `json:"totalShare"`
	Members           map[string]*Member `json:"members"`
	TokenHoldings     []*TokenHolding    `json:"tokenHoldings"`
	ProcessedDeposits map[string]bool    `json:"processedDeposits"`
	TradeLog          []*TradeLogEntry   `json:"tradeLog"`
	DepositLog        []*DepositLogEntry `json:"depositLog"`
	PendingTrades     []*PendingTrade    `json:"pendingTrades"`
	Seq               uint64             `json:"seq"`
}

func NewTreasury(groupID string, treasuryAddress string, encryptedKey string) *Treasury {
	return &Treasury{
		GroupID:           groupID,
		TreasuryAddress:   treasuryAddress,
		EncryptedKey:      encryptedKey,
		Settings:          DefaultSettings(),
		TotalShare:        decimal.Zero,
		Members:           make(map[string]*Member),
		TokenHoldings:     make([]*TokenHolding, 0),
		ProcessedDeposits: make(map[string]bool),
		TradeLog:          make([]*TradeLogEntry, 0),
		DepositLog:        make([]*DepositLogEntry, 0),
		PendingTrades:     make([]*PendingTrade, 0),
	}
}
