package ledger

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/groupfi/treasury-engine/pkg/utils"
)

var (
	// ErrDuplicateDeposit marks a deposit hash that was already credited. It
	// is informational; callers treat it as an idempotent no-op success.
	ErrDuplicateDeposit = errors.New("deposit already credited")

	// ErrInsufficientBalance rejects a debit exceeding the pooled balance on
	// that chain. Raised before any on-chain action.
	ErrInsufficientBalance = errors.New("insufficient pooled balance")

	ErrUnknownMember = errors.New("member has no position in this treasury")
)

func (t *Treasury) nextSeq() uint64 {
	t.Seq++
	return t.Seq
}

func (t *Treasury) member(memberID string) *Member {
	m, ok := t.Members[memberID]
	if !ok {
		m = &Member{
			ID:             memberID,
			Share:          decimal.Zero,
			NativeBalances: make(map[uint64]decimal.Decimal),
			Holdings:       make([]*TokenHolding, 0),
		}
		t.Members[memberID] = m
	}
	return m
}

func findHolding(holdings []*TokenHolding, chainID uint64, token string) *TokenHolding {
	for _, h := range holdings {
		if h.ChainID == chainID && utils.AreAddressesEqual(h.Token, token) {
			return h
		}
	}
	return nil
}

func addHolding(holdings []*TokenHolding, chainID uint64, token string, amount decimal.Decimal) []*TokenHolding {
	if h := findHolding(holdings, chainID, token); h != nil {
		h.Amount = h.Amount.Add(amount)
		return holdings
	}
	return append(holdings, &TokenHolding{ChainID: chainID, Token: token, Amount: amount})
}

// NativeBalance returns the pooled native balance on one chain, the sum of all
// members' per-chain balances.
func (t *Treasury) NativeBalance(chainID uint64) decimal.Decimal {
	total := decimal.Zero
	for _, m := range t.Members {
		total = total.Add(m.NativeBalances[chainID])
	}
	return total
}

// MemberHolding returns how much of a token one member's slice of the pool
// holds on a chain.
func (t *Treasury) MemberHolding(memberID string, chainID uint64, token string) decimal.Decimal {
	m, ok := t.Members[memberID]
	if !ok {
		return decimal.Zero
	}
	if h := findHolding(m.Holdings, chainID, token); h != nil {
		return h.Amount
	}
	return decimal.Zero
}

// CreditDeposit credits a located deposit to the sending member. The member is
// created lazily on first deposit; deposited capital mints share one-to-one,
// so TotalShare grows only here. Duplicate hashes return ErrDuplicateDeposit
// without mutating anything.
func (t *Treasury) CreditDeposit(txHash string, chainID uint64, memberID string, amount decimal.Decimal) error {
	if t.ProcessedDeposits[txHash] {
		return errors.Wrapf(ErrDuplicateDeposit, "txHash '%s'", txHash)
	}
	if amount.IsNegative() || amount.IsZero() {
		return fmt.Errorf("deposit amount must be positive, got %s", amount)
	}

	m := t.member(memberID)
	m.Share = m.Share.Add(amount)
	m.NativeBalances[chainID] = m.NativeBalances[chainID].Add(amount)
	t.TotalShare = t.TotalShare.Add(amount)

	t.ProcessedDeposits[txHash] = true
	t.DepositLog = append(t.DepositLog, &DepositLogEntry{
		Seq:       t.nextSeq(),
		TxHash:    txHash,
		MemberID:  memberID,
		ChainID:   chainID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// DebitNative removes spent native capital from the pool, split across members
// in proportion to share. Fails with ErrInsufficientBalance before touching
// any member if the pooled balance on that chain cannot cover the debit.
func (t *Treasury) DebitNative(chainID uint64, amount decimal.Decimal) error {
	if t.TotalShare.IsZero() {
		return errors.Wrap(ErrInsufficientBalance, "treasury has no capital")
	}
	if t.NativeBalance(chainID).LessThan(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "chain %d balance %s < %s", chainID, t.NativeBalance(chainID), amount)
	}
	for _, m := range t.Members {
		portion := amount.Mul(m.Share).Div(t.TotalShare)
		m.NativeBalances[chainID] = m.NativeBalances[chainID].Sub(portion)
	}
	return nil
}

// CreditSwapResult distributes a buy's delivered tokens across all members in
// proportion to share and adds the total to the treasury-level holdings. Share
// itself never changes on trades.
func (t *Treasury) CreditSwapResult(chainID uint64, token string, amountOut decimal.Decimal) error {
	if amountOut.IsZero() {
		return nil
	}
	if t.TotalShare.IsZero() {
		return errors.Wrap(ErrInsufficientBalance, "treasury has no capital")
	}
	for _, m := range t.Members {
		portion := amountOut.Mul(m.Share).Div(t.TotalShare)
		m.Holdings = addHolding(m.Holdings, chainID, token, portion)
	}
	t.TokenHoldings = addHolding(t.TokenHoldings, chainID, token, amountOut)
	return nil
}

// SettleSell removes the sold token amount from the acting member's slice and
// credits the native proceeds to that member alone. The sold amount must not
// exceed the member's holding.
func (t *Treasury) SettleSell(memberID string, chainID uint64, token string, amountSold decimal.Decimal, proceeds decimal.Decimal) error {
	m, ok := t.Members[memberID]
	if !ok {
		return errors.Wrapf(ErrUnknownMember, "member '%s'", memberID)
	}
	h := findHolding(m.Holdings, chainID, token)
	if h == nil || h.Amount.LessThan(amountSold) {
		return errors.Wrapf(ErrInsufficientBalance, "member '%s' holds less than %s of %s", memberID, amountSold, token)
	}
	h.Amount = h.Amount.Sub(amountSold)

	if total := findHolding(t.TokenHoldings, chainID, token); total != nil {
		total.Amount = total.Amount.Sub(amountSold)
	}
	m.NativeBalances[chainID] = m.NativeBalances[chainID].Add(proceeds)
	return nil
}

// RecordTrade appends a settled swap to the audit log, assigning it the next
// sequence number. Idempotent per txHash so a retried ledger update cannot
// double-record.
func (t *Treasury) RecordTrade(entry *TradeLogEntry) {
	for _, existing := range t.TradeLog {
		if existing.TxHash == entry.TxHash {
			return
		}
	}
	entry.Seq = t.nextSeq()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	t.TradeLog = append(t.TradeLog, entry)
	t.ClearPendingTrade(entry.TxHash)
}

// RecordPendingTrade notes a broadcast whose confirmation or settlement is
// unresolved. Idempotent per txHash. Settling the trade through RecordTrade
// clears the marker.
func (t *Treasury) RecordPendingTrade(pending *PendingTrade) {
	if t.HasPendingTrade(pending.TxHash) {
		return
	}
	if pending.Timestamp.IsZero() {
		pending.Timestamp = time.Now().UTC()
	}
	t.PendingTrades = append(t.PendingTrades, pending)
}

// HasPendingTrade reports whether an unresolved broadcast with this hash is
// marked.
func (t *Treasury) HasPendingTrade(txHash string) bool {
	for _, existing := range t.PendingTrades {
		if existing.TxHash == txHash {
			return true
		}
	}
	return false
}

// ClearPendingTrade removes the marker once the trade's fate is known.
func (t *Treasury) ClearPendingTrade(txHash string) {
	for i, existing := range t.PendingTrades {
		if existing.TxHash == txHash {
			t.PendingTrades = append(t.PendingTrades[:i], t.PendingTrades[i+1:]...)
			return
		}
	}
}

// HasTrade reports whether a trade with this hash is already recorded.
func (t *Treasury) HasTrade(txHash string) bool {
	for _, existing := range t.TradeLog {
		if existing.TxHash == txHash {
			return true
		}
	}
	return false
}

func (t *Treasury) SetSlippageBps(bps uint64) error {
	if bps < 10 || bps > 10000 {
		return fmt.Errorf("slippage %d bps outside [10, 10000]", bps)
	}
	t.Settings.SlippageBps = bps
	return nil
}

func (t *Treasury) SetDefaultBuySize(size decimal.Decimal) error {
	if !size.IsPositive() {
		return fmt.Errorf("buy size must be positive, got %s", size)
	}
	t.Settings.DefaultBuySize = size
	return nil
}

func (t *Treasury) SetTradingEnabled(enabled bool) {
	t.Settings.TradingEnabled = enabled
}
