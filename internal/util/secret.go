package util

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"strings"
)

// Decrypt reverses the AES-GCM encryption applied to secrets at rest (the
// node's RPC API key, notifier bearer token). key must be 16, 24, or 32
// bytes; encHex is "<nonce-hex>:<ciphertext-hex>".
func Decrypt(key []byte, encHex string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("util: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("util: new gcm: %w", err)
	}

	nonceHex, ctHex, ok := strings.Cut(encHex, ":")
	if !ok {
		return "", fmt.Errorf("util: malformed encrypted value, expected nonce:ciphertext")
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("util: decode nonce: %w", err)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("util: decode ciphertext: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("util: nonce size %d, want %d", len(nonce), gcm.NonceSize())
	}

	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("util: decrypt: %w", err)
	}
	return string(plain), nil
}
