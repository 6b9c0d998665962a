package keystore

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_Keystore(t *testing.T) {
	t.Run("Should require a passphrase", func(t *testing.T) {
		_, err := NewKeystore("")
		assert.NotNil(t, err)
	})

	t.Run("Should round-trip a private key", func(t *testing.T) {
		ks, err := NewKeystore("correct horse battery staple")
		assert.Nil(t, err)

		privateKey, address, err := GenerateKey()
		assert.Nil(t, err)
		assert.True(t, strings.HasPrefix(address, "0x"))
		assert.Equal(t, 64, len(privateKey))

		ciphertext, err := ks.Encrypt(privateKey)
		assert.Nil(t, err)
		assert.Contains(t, ciphertext, ":")
		assert.NotContains(t, ciphertext, privateKey)

		decrypted, err := ks.Decrypt(ciphertext)
		assert.Nil(t, err)
		assert.Equal(t, privateKey, decrypted)
	})

	t.Run("Should produce distinct ciphertexts for the same plaintext", func(t *testing.T) {
		ks, err := NewKeystore("passphrase")
		assert.Nil(t, err)

		first, err := ks.Encrypt("secret")
		assert.Nil(t, err)
		second, err := ks.Encrypt("secret")
		assert.Nil(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("Should fail closed on malformed ciphertext", func(t *testing.T) {
		ks, err := NewKeystore("passphrase")
		assert.Nil(t, err)

		cases := []string{
			"",
			"no-separator",
			"deadbeef:",
			"nothex:deadbeef",
			"00112233445566778899aabbccddeeff:nothex",
			"0011:00112233445566778899aabbccddeeff",
			"00112233445566778899aabbccddeeff:deadbeef",
		}
		for _, ciphertext := range cases {
			_, err := ks.Decrypt(ciphertext)
			assert.True(t, errors.Is(err, ErrMalformedCiphertext), "ciphertext '%s'", ciphertext)
		}
	})

	t.Run("Should not decrypt with a different passphrase", func(t *testing.T) {
		ks1, err := NewKeystore("passphrase-one")
		assert.Nil(t, err)
		ks2, err := NewKeystore("passphrase-two")
		assert.Nil(t, err)

		ciphertext, err := ks1.Encrypt("secret")
		assert.Nil(t, err)

		decrypted, err := ks2.Decrypt(ciphertext)
		if err == nil {
			assert.NotEqual(t, "secret", decrypted)
		}
	})
}
