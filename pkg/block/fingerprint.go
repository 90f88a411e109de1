package block

import (
	"github.com/Klingon-tech/powrace/pkg/crypto"
	"github.com/Klingon-tech/powrace/pkg/types"
)

// Fingerprint folds the digests of blocks, in order, into one hash.
// Two snapshots have the same fingerprint only if they hold the same
// blocks; the empty ledger fingerprints to the zero hash.
func Fingerprint(blocks []Block) types.Hash {
	var acc types.Hash
	for _, b := range blocks {
		acc = crypto.HashConcat(acc, b.Digest())
	}
	return acc
}
