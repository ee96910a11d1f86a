package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
)

// Secrets are fixed-length alphanumeric strings. The shape check runs
// before any lookup so malformed input never touches the store.
const (
	secretLength   = 32
	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var secretShape = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

// newSecret generates a cryptographically random secret over the
// alphanumeric alphabet.
func newSecret() (string, error) {
	buf := make([]byte, secretLength)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		buf[i] = secretAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// hashSecret computes the one-way hash under which records are stored.
func hashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// validSecretFormat reports whether raw matches the generated shape.
func validSecretFormat(raw string) bool {
	return secretShape.MatchString(raw)
}
