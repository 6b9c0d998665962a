package settlement

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTradingDisabled rejects buy/sell requests while the group has
	// trading switched off. Raised before any on-chain action.
	ErrTradingDisabled = errors.New("trading is disabled for this group")

	// ErrKeyDecryption means the custodial key could not be decrypted. Fatal:
	// nothing was broadcast and retrying cannot help.
	ErrKeyDecryption = errors.New("failed to decrypt custodial key")

	// ErrApprovalOutstanding is returned when a sell's approve leg confirmed
	// but the swap leg failed. The allowance is already granted on-chain; the
	// ledger is untouched and the sell can be retried without re-approving.
	ErrApprovalOutstanding = errors.New("swap leg failed after approval was granted")

	// ErrDepositNotForTreasury rejects a deposit hash whose recipient is not
	// the group's treasury address.
	ErrDepositNotForTreasury = errors.New("transaction recipient is not the group treasury")

	// ErrDepositNotMined rejects a deposit hash that resolved but has not
	// been included in a block yet.
	ErrDepositNotMined = errors.New("transaction is not mined yet")

	// ErrInvalidToken rejects trade requests naming the native pseudo-address
	// or the null address instead of an ERC20 token.
	ErrInvalidToken = errors.New("not a tradeable token address")
)

// BroadcastError means the signed transaction could not be handed to the
// network within the bounded retry budget. Nothing was accepted by a node, so
// the operation is safe to retry from scratch.
type BroadcastError struct {
	Attempts int
	Err      error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("failed to broadcast transaction after %d attempts: %v", e.Attempts, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}
