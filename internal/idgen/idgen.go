// Package idgen mints the random identifiers used across the
// marketplace: transaction ids, agent ids, and fabricated tx hashes in
// development mode.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// The process cannot mint identifiers without OS entropy.
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}

// New returns a UUID-shaped random identifier,
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func New() string {
	b := randomBytes(16)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix returns prefix plus 24 random hex characters, for typed
// ids like "tx_..." or "agt_...".
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(randomBytes(12))
}

// Hex returns numBytes of randomness as a hex string.
func Hex(numBytes int) string {
	return hex.EncodeToString(randomBytes(numBytes))
}
