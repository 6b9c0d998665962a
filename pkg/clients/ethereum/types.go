package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EthereumHexString is a 0x-prefixed hex string as returned by JSON-RPC nodes.
type EthereumHexString string

func (s EthereumHexString) Value() string {
	return string(s)
}

// EthereumQuantity is a JSON-RPC quantity ("0x1b4") decoded to uint64.
type EthereumQuantity uint64

func (q EthereumQuantity) Value() uint64 {
	return uint64(q)
}

func (q *EthereumQuantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*q = 0
		return nil
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return fmt.Errorf("invalid quantity '%s': %w", s, err)
	}
	*q = EthereumQuantity(v)
	return nil
}

func (q EthereumQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeUint64(uint64(q)))
}

// EthereumBigQuantity is a JSON-RPC quantity decoded to big.Int, for values
// that can exceed uint64 (wei amounts).
type EthereumBigQuantity struct {
	big.Int
}

func (q *EthereumBigQuantity) Value() *big.Int {
	return &q.Int
}

func (q *EthereumBigQuantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || s == "0x" {
		q.Int.SetInt64(0)
		return nil
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return fmt.Errorf("invalid big quantity '%s': %w", s, err)
	}
	q.Int.Set(v)
	return nil
}

func (q EthereumBigQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeBig(&q.Int))
}

// EthereumEventLog is a single log entry from a transaction receipt.
type EthereumEventLog struct {
	Address         EthereumHexString   `json:"address"`
	Topics          []EthereumHexString `json:"topics"`
	Data            EthereumHexString   `json:"data"`
	LogIndex        EthereumQuantity    `json:"logIndex"`
	BlockNumber     EthereumQuantity    `json:"blockNumber"`
	TransactionHash EthereumHexString   `json:"transactionHash"`
}

// EthereumTransactionReceipt is the confirmed outcome of a transaction.
type EthereumTransactionReceipt struct {
	TransactionHash EthereumHexString   `json:"transactionHash"`
	BlockNumber     EthereumQuantity    `json:"blockNumber"`
	Status          EthereumQuantity    `json:"status"`
	From            EthereumHexString   `json:"from"`
	To              EthereumHexString   `json:"to"`
	ContractAddress EthereumHexString   `json:"contractAddress"`
	GasUsed         EthereumQuantity    `json:"gasUsed"`
	Logs            []*EthereumEventLog `json:"logs"`
}

func (r *EthereumTransactionReceipt) Succeeded() bool {
	return r.Status.Value() == 1
}

// EthereumTransaction is the mined-or-pending view of a transaction as
// returned by eth_getTransactionByHash.
type EthereumTransaction struct {
	Hash        EthereumHexString   `json:"hash"`
	From        EthereumHexString   `json:"from"`
	To          EthereumHexString   `json:"to"`
	Value       EthereumBigQuantity `json:"value"`
	BlockNumber *EthereumQuantity   `json:"blockNumber"`
}

// Mined reports whether the transaction has been included in a block.
func (t *EthereumTransaction) Mined() bool {
	return t.BlockNumber != nil
}

// TransactionRequest is an unsigned transaction ready for signing, typically
// produced by the swap aggregator.
type TransactionRequest struct {
	To       string
	Data     string
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    uint64
}

func normalizeHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
