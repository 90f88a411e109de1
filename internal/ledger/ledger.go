// Package ledger implements the capacity-bounded, append-only block log
// owned by the round coordinator.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powrace/pkg/block"
)

// MaxCapacity is the largest backing allocation Resize will attempt.
const MaxCapacity = 1 << 20

// Ledger errors.
var (
	ErrCapacityExceeded = errors.New("ledger is full")
	ErrInvalidCapacity  = errors.New("invalid ledger capacity")
	ErrOutOfMemory      = errors.New("ledger allocation failed")
)

// Ledger is an ordered sequence of blocks with a mutable capacity bound.
//
// The coordinator is the only writer and serializes Append and Resize under
// its own lock. The internal RWMutex exists so Snapshot, Len and Head can be
// called from any goroutine without observing a half-written slice.
type Ledger struct {
	mu     sync.RWMutex
	blocks []block.Block
}

// New creates an empty ledger with the given capacity.
func New(capacity int) (*Ledger, error) {
	l := &Ledger{}
	if err := l.Resize(capacity); err != nil {
		return nil, err
	}
	return l, nil
}

// Append stores b at the next index and returns the stored copy.
// The Index field of b is overwritten.
func (l *Ledger) Append(b block.Block) (block.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.blocks) == cap(l.blocks) {
		return block.Block{}, fmt.Errorf("%w: %d/%d", ErrCapacityExceeded, len(l.blocks), cap(l.blocks))
	}
	b.Index = len(l.blocks)
	l.blocks = append(l.blocks, b)
	return b, nil
}

// Snapshot returns a point-in-time copy of all blocks.
func (l *Ledger) Snapshot() []block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]block.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Get returns the block at index i.
func (l *Ledger) Get(i int) (block.Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 || i >= len(l.blocks) {
		return block.Block{}, false
	}
	return l.blocks[i], true
}

// Len returns the number of committed blocks.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Cap returns the capacity bound.
func (l *Ledger) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cap(l.blocks)
}

// Head returns the PrevHash the next appended block must carry.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return block.Head(l.blocks)
}

// Resize reallocates the backing storage to hold exactly n blocks.
// Shrinking below the committed length is rejected; committed blocks are
// never discarded. A failed allocation leaves the ledger unchanged.
func (l *Ledger) Resize(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, n)
	}
	if n < len(l.blocks) {
		return fmt.Errorf("%w: %d is below committed length %d", ErrInvalidCapacity, n, len(l.blocks))
	}
	if n == cap(l.blocks) && l.blocks != nil {
		return nil
	}

	grown, err := allocate(n)
	if err != nil {
		return err
	}
	l.blocks = append(grown, l.blocks...)
	return nil
}

// allocate returns an empty slice with capacity n, converting allocation
// panics into ErrOutOfMemory.
func allocate(n int) (s []block.Block, err error) {
	if n > MaxCapacity {
		return nil, fmt.Errorf("%w: %d blocks exceeds limit %d", ErrOutOfMemory, n, MaxCapacity)
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()
	return make([]block.Block, 0, n), nil
}
