package ledger

import (
	"fmt"
	"sort"
)

type replayEvent struct {
	seq     uint64
	deposit *DepositLogEntry
	trade   *TradeLogEntry
}

// Replay rebuilds a treasury from scratch by re-applying its merged
// deposit+trade history in sequence order. The result must carry the same
// balances, shares, and holdings as the live state; any divergence means a
// mutation happened outside the logged protocol.
func (t *Treasury) Replay() (*Treasury, error) {
	events := make([]replayEvent, 0, len(t.DepositLog)+len(t.TradeLog))
	for _, d := range t.DepositLog {
		events = append(events, replayEvent{seq: d.Seq, deposit: d})
	}
	for _, tr := range t.TradeLog {
		events = append(events, replayEvent{seq: tr.Seq, trade: tr})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].seq < events[j].seq
	})

	fresh := NewTreasury(t.GroupID, t.TreasuryAddress, t.EncryptedKey)
	fresh.Settings = t.Settings
	// Pending markers are metadata, not logged effects; carry them as-is.
	for _, p := range t.PendingTrades {
		pending := *p
		fresh.PendingTrades = append(fresh.PendingTrades, &pending)
	}

	for _, ev := range events {
		if ev.deposit != nil {
			d := ev.deposit
			m := fresh.member(d.MemberID)
			m.Share = m.Share.Add(d.Amount)
			m.NativeBalances[d.ChainID] = m.NativeBalances[d.ChainID].Add(d.Amount)
			fresh.TotalShare = fresh.TotalShare.Add(d.Amount)
			fresh.ProcessedDeposits[d.TxHash] = true

			entry := *d
			fresh.DepositLog = append(fresh.DepositLog, &entry)
			fresh.Seq = d.Seq
			continue
		}

		tr := ev.trade
		switch tr.Side {
		case TradeSideBuy:
			if err := fresh.DebitNative(tr.ChainID, tr.AmountIn); err != nil {
				return nil, fmt.Errorf("replay of buy '%s' failed: %w", tr.TxHash, err)
			}
			if err := fresh.CreditSwapResult(tr.ChainID, tr.Token, tr.AmountOut); err != nil {
				return nil, fmt.Errorf("replay of buy '%s' failed: %w", tr.TxHash, err)
			}
		case TradeSideSell:
			if err := fresh.SettleSell(tr.MemberID, tr.ChainID, tr.Token, tr.AmountIn, tr.AmountOut); err != nil {
				return nil, fmt.Errorf("replay of sell '%s' failed: %w", tr.TxHash, err)
			}
		default:
			return nil, fmt.Errorf("replay found unknown trade side '%s' on '%s'", tr.Side, tr.TxHash)
		}

		entry := *tr
		fresh.TradeLog = append(fresh.TradeLog, &entry)
		fresh.Seq = tr.Seq
	}
	return fresh, nil
}
