package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powrace/pkg/puzzle"
)

// Chain verification errors.
var (
	ErrBadGenesis  = errors.New("first block must link to genesis")
	ErrIndexGap    = errors.New("block index out of sequence")
	ErrBrokenLink  = errors.New("prev_hash does not match parent hash")
	ErrZeroCreated = errors.New("block creation time is zero")
)

// VerifyChain checks that blocks form a gap-free chain starting at index 0
// whose links follow the puzzle hashes of each parent. Difficulty is not
// checked: it can change between rounds and is not recorded in the block.
func VerifyChain(blocks []Block) error {
	for i, b := range blocks {
		if b.Index != i {
			return fmt.Errorf("%w: position %d has index %d", ErrIndexGap, i, b.Index)
		}
		if b.CreatedAt.IsZero() {
			return fmt.Errorf("%w: index %d", ErrZeroCreated, i)
		}
		if i == 0 {
			if b.PrevHash != puzzle.Genesis {
				return fmt.Errorf("%w: got %q", ErrBadGenesis, b.PrevHash)
			}
			continue
		}
		if want := blocks[i-1].HashHex(); b.PrevHash != want {
			return fmt.Errorf("%w: index %d has %q, want %q", ErrBrokenLink, i, b.PrevHash, want)
		}
	}
	return nil
}

// Head returns the PrevHash the next block appended after blocks must carry.
func Head(blocks []Block) string {
	if len(blocks) == 0 {
		return puzzle.Genesis
	}
	return blocks[len(blocks)-1].HashHex()
}
