// Package statehash offers a default 64-bit state digest for simulations
// that do not bring their own hash function.
//
// Collision resistance only needs to detect accidental divergence, so a fast
// non-cryptographic hash (xxHash) over the canonical encoding is enough.
package statehash

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Nullpoint56/Warships2-sub000/pkg/canonicalize"
)

// Hash digests any JSON-encodable simulation state.
func Hash(state any) (uint64, error) {
	b, err := canonicalize.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("statehash: %w", err)
	}
	return xxhash.Sum64(b), nil
}

// HashBytes digests raw state bytes.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Format renders a hash as the fixed-width hex form stored in sessions and
// mismatch reports.
func Format(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
