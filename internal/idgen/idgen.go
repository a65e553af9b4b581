// Package idgen mints the prefixed identifiers used across the ledger and
// its collaborators (ord_, ent_, gc_, adm_, usr_, wh_).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix + 24 random hex characters. Entropy comes
// from crypto/rand; a failing system RNG is not recoverable.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
