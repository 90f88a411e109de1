// Package types defines core primitive types shared across powrace.
package types

import "encoding/hex"

// HashSize is the length of a digest in bytes.
const HashSize = 32

// Hash is a 256-bit digest of one block or of a whole ledger snapshot.
// The puzzle hash that links blocks is a plain uint64 and never uses it.
type Hash [HashSize]byte

// IsZero reports whether h is the empty-ledger fingerprint.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded digest.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 16 hex characters, for log lines.
func (h Hash) Short() string {
	return h.String()[:16]
}
