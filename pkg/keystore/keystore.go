// Package keystore encrypts and decrypts the custodial private key of a group
// treasury. Keys are stored as AES-256-CBC ciphertext with the IV prepended
// ("ivHex:cipherHex"); the cipher key is derived from the configured passphrase
// with scrypt. Decryption fails closed on any malformed input.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	derivedLen   = 32
	keyDeriveSal = "salt"
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

type Keystore struct {
	passphrase string
}

func NewKeystore(passphrase string) (*Keystore, error) {
	if passphrase == "" {
		return nil, errors.New("keystore passphrase must not be empty")
	}
	return &Keystore{passphrase: passphrase}, nil
}

func (k *Keystore) deriveKey() ([]byte, error) {
	key, err := scrypt.Key([]byte(k.passphrase), []byte(keyDeriveSal), scryptN, scryptR, scryptP, derivedLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cipher key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext and returns "ivHex:cipherHex".
func (k *Keystore) Encrypt(plaintext string) (string, error) {
	key, err := k.deriveKey()
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted), nil
}

// Decrypt reverses Encrypt. Any structural problem with the ciphertext returns
// ErrMalformedCiphertext rather than garbage plaintext.
func (k *Keystore) Decrypt(ciphertext string) (string, error) {
	parts := strings.SplitN(ciphertext, ":", 2)
	if len(parts) != 2 {
		return "", ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformedCiphertext
	}
	encrypted, err := hex.DecodeString(parts[1])
	if err != nil || len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	key, err := k.deriveKey()
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	unpadded, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	return string(unpadded), nil
}

// GenerateKey creates a fresh secp256k1 private key and returns its hex
// encoding along with the derived treasury address.
func GenerateKey() (privateKeyHex string, address string, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
