package util

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptForTest(t *testing.T, key []byte, plaintext string) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, gcm.NonceSize())
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct)
}

func TestDecrypt_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")[:32]
	enc := encryptForTest(t, key, "super-secret-token")

	got, err := Decrypt(key, enc)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", got)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")[:32]
	wrongKey := []byte("fedcba9876543210fedcba9876543210")[:32]
	enc := encryptForTest(t, key, "super-secret-token")

	_, err := Decrypt(wrongKey, enc)
	assert.Error(t, err)
}

func TestDecrypt_Malformed(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")[:32]

	_, err := Decrypt(key, "no-colon-here")
	assert.Error(t, err)

	_, err = Decrypt(key, "zz:zz")
	assert.Error(t, err)
}

func TestDecrypt_BadKeySize(t *testing.T) {
	_, err := Decrypt([]byte("short"), "00:00")
	assert.Error(t, err)
}
