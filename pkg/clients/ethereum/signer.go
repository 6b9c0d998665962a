package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignTransaction signs a transaction request with the given private key and
// returns the raw transaction hex, ready for eth_sendRawTransaction.
//
// The key is used only for the duration of this call; callers must not cache
// the decrypted key anywhere else.
func SignTransaction(privateKeyHex string, chainID uint64, txReq *TransactionRequest) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	var data []byte
	if txReq.Data != "" {
		data, err = hexutil.Decode(normalizeHexPrefix(txReq.Data))
		if err != nil {
			return "", fmt.Errorf("failed to decode calldata: %w", err)
		}
	}

	value := txReq.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasPrice := txReq.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}

	to := common.HexToAddress(txReq.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    txReq.Nonce,
		GasPrice: gasPrice,
		Gas:      txReq.Gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}

// AddressFromPrivateKey derives the treasury address for a private key hex.
func AddressFromPrivateKey(privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
