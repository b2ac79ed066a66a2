package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DefaultSecretPrefix marks every issued secret.
const DefaultSecretPrefix = "bst_"

// DefaultDisplayPrefixLength is how many leading secret characters are
// kept for display.
const DefaultDisplayPrefixLength = 12

const secretBytes = 32

// newSecret returns prefix followed by 32 random bytes, hex encoded.
func newSecret(prefix string) (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

// HashSecret returns the hex SHA-256 digest stored for a secret.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// displayPrefix never returns the whole secret.
func displayPrefix(secret string, n int) string {
	if n <= 0 || n >= len(secret) {
		n = min(DefaultDisplayPrefixLength, len(secret)/2)
	}
	return secret[:n]
}
