package puzzle

import "strconv"

// Hasher evaluates Hash for a fixed prevHash and payload. The prefix fold is
// computed once so each attempt only folds the nonce digits.
type Hasher struct {
	prefix uint64
	digits [20]byte
}

// NewHasher precomputes the prefix state for prevHash || payload.
func NewHasher(prevHash, payload string) *Hasher {
	return &Hasher{prefix: fold(fold(0, prevHash), payload)}
}

// Sum returns Hash(prevHash, payload, nonce). Not safe for concurrent use.
func (h *Hasher) Sum(nonce uint64) uint64 {
	return foldBytes(h.prefix, strconv.AppendUint(h.digits[:0], nonce, 10))
}
