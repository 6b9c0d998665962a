// Package transferLog extracts the amount a swap actually delivered by
// decoding ERC20 Transfer events out of a transaction receipt. The settled
// amount always comes from the logs, never from the requested quote.
package transferLog

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/groupfi/treasury-engine/pkg/clients/ethereum"
	"github.com/groupfi/treasury-engine/pkg/utils"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()

// Transfer is one decoded ERC20 Transfer event.
type Transfer struct {
	Token    string
	From     string
	To       string
	Value    *big.Int
	LogIndex uint64
}

// DecodeTransfers returns every well-formed ERC20 Transfer event in the
// receipt. Logs with the Transfer topic but a non-standard shape (missing
// indexed participants) are skipped.
func DecodeTransfers(receipt *ethereum.EthereumTransactionReceipt) []*Transfer {
	transfers := make([]*Transfer, 0)
	for _, log := range receipt.Logs {
		if len(log.Topics) != 3 || !strings.EqualFold(log.Topics[0].Value(), transferTopic) {
			continue
		}
		value, ok := new(big.Int).SetString(strings.TrimPrefix(log.Data.Value(), "0x"), 16)
		if !ok {
			continue
		}
		transfers = append(transfers, &Transfer{
			Token:    log.Address.Value(),
			From:     common.HexToAddress(log.Topics[1].Value()).Hex(),
			To:       common.HexToAddress(log.Topics[2].Value()).Hex(),
			Value:    value,
			LogIndex: log.LogIndex.Value(),
		})
	}
	return transfers
}

// AmountReceived returns the amount of tokenAddress delivered to recipient in
// this receipt. The boolean reports whether a matching Transfer log was found;
// when false the returned amount is zero and the caller must flag the result
// for reconciliation rather than trust it.
func AmountReceived(receipt *ethereum.EthereumTransactionReceipt, tokenAddress string, recipient string) (*big.Int, bool) {
	for _, transfer := range DecodeTransfers(receipt) {
		if !utils.AreAddressesEqual(transfer.Token, tokenAddress) {
			continue
		}
		if !utils.AreAddressesEqual(transfer.To, recipient) {
			continue
		}
		return transfer.Value, true
	}
	return big.NewInt(0), false
}
