// Package puzzle implements the toy proof-of-work puzzle raced by workers.
//
// The hash is a non-cryptographic rolling hash. It exists to give workers
// something to grind on and to link blocks together; it is not collision
// resistant and must never be used for anything security-relevant.
package puzzle

import "strconv"

// Difficulty bounds accepted by the round coordinator.
const (
	MinDifficulty = 1
	MaxDifficulty = 8
)

// Genesis is the PrevHash value of block 0.
const Genesis = "0"

// multiplier is the rolling hash base.
const multiplier = 31

// Hash folds prevHash || payload || decimal(nonce) into a uint64 as
// h = h*31 + byte, with wraparound.
func Hash(prevHash, payload string, nonce uint64) uint64 {
	var h uint64
	h = fold(h, prevHash)
	h = fold(h, payload)
	var digits [20]byte
	return foldBytes(h, strconv.AppendUint(digits[:0], nonce, 10))
}

// MeetsDifficulty reports whether the low difficulty*4 bits of hash are zero,
// i.e. whether its hex form ends in difficulty zero nibbles.
func MeetsDifficulty(hash uint64, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty >= 16 {
		return hash == 0
	}
	mask := uint64(1)<<(uint(difficulty)*4) - 1
	return hash&mask == 0
}

// ValidDifficulty reports whether d is within [MinDifficulty, MaxDifficulty].
func ValidDifficulty(d int) bool {
	return d >= MinDifficulty && d <= MaxDifficulty
}

// FormatHash renders a hash the way blocks link to their parent:
// lowercase hex without leading zeros.
func FormatHash(h uint64) string {
	return strconv.FormatUint(h, 16)
}

func fold(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h = h*multiplier + uint64(s[i])
	}
	return h
}

func foldBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h = h*multiplier + uint64(c)
	}
	return h
}
