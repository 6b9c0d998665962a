package explorer

import (
	"context"
	"math/big"
	"net/http"

	"github.com/groupfi/treasury-engine/pkg/chains"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrTxNotFound is returned by Locate when no configured chain's explorer
// knows the hash.
var ErrTxNotFound = errors.New("transaction not found on any configured chain")

// LocatedTransaction is a transaction hash resolved to its home chain.
type LocatedTransaction struct {
	ChainID  uint64
	From     string
	To       string
	ValueWei *big.Int
	Mined    bool
}

// Locator probes the explorers of an ordered chain list and attributes a
// transaction hash to the first chain that resolves it. The same hash is
// assumed not to collide across chains, so probe order only decides how fast
// the common case resolves.
type Locator struct {
	clients []*Client
	logger  *zap.Logger
}

func NewLocator(registry *chains.Registry, apiKey string, logger *zap.Logger) *Locator {
	clients := make([]*Client, 0)
	for _, chain := range registry.Ordered() {
		if chain.ExplorerEndpoint == "" {
			continue
		}
		clients = append(clients, NewClient(chain.ExplorerEndpoint, apiKey, chain.ID, logger))
	}
	return &Locator{
		clients: clients,
		logger:  logger,
	}
}

// SetHttpClient overrides the HTTP client of every per-chain explorer client,
// used in tests.
func (l *Locator) SetHttpClient(client *http.Client) {
	for _, c := range l.clients {
		c.SetHttpClient(client)
	}
}

// Locate probes each chain's explorer in registry order. An explorer that
// errors or does not know the hash is skipped; the first one that resolves it
// is authoritative. Returns ErrTxNotFound when every chain was exhausted.
func (l *Locator) Locate(ctx context.Context, txHash string) (*LocatedTransaction, error) {
	for _, c := range l.clients {
		tx, err := c.GetTransactionByHash(ctx, txHash)
		if err != nil {
			l.logger.Sugar().Debugw("Explorer probe failed, trying next chain",
				zap.Uint64("chainId", c.ChainID()),
				zap.String("txHash", txHash),
				zap.Error(err),
			)
			continue
		}
		if tx == nil {
			continue
		}
		return &LocatedTransaction{
			ChainID:  c.ChainID(),
			From:     tx.From.Value(),
			To:       tx.To.Value(),
			ValueWei: tx.Value.Value(),
			Mined:    tx.Mined(),
		}, nil
	}
	return nil, errors.Wrapf(ErrTxNotFound, "txHash '%s'", txHash)
}
