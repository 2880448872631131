// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hasher implements reconcile.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// BatchKey derives a deterministic 16-hex-char key from a set of identifiers.
// The same set always yields the same key regardless of input order, which is
// what makes resubmission bookkeeping idempotent.
func BatchKey(identifiers []string) string {
	sorted := append([]string(nil), identifiers...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])[:16]
}
