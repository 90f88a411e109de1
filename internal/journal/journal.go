// Package journal keeps an audit copy of committed blocks and per-worker
// win counts in a key-value store. It is written from the event stream and
// never read back into the simulation.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/storage"
	"github.com/Klingon-tech/powrace/pkg/block"
)

// Stats summarizes the journal contents.
type Stats struct {
	Blocks int            `json:"blocks"`
	Wins   map[int]uint64 `json:"wins"`
	Errors uint64         `json:"errors"`
	Gaps   uint64         `json:"gaps"`
}

// Audit compares the journal with a ledger snapshot. The journal is written
// asynchronously, so it may trail the ledger by a few blocks.
type Audit struct {
	Journaled  int   `json:"journaled"`
	Ledger     int   `json:"ledger"`
	Missing    []int `json:"missing,omitempty"`    // In the ledger, not journaled.
	Mismatched []int `json:"mismatched,omitempty"` // Journaled copy differs.
	Extra      []int `json:"extra,omitempty"`      // Journaled past the ledger end.
}

// InSync reports whether the journal holds exactly the ledger's blocks.
func (a Audit) InSync() bool {
	return a.Journaled == a.Ledger && len(a.Missing)+len(a.Mismatched)+len(a.Extra) == 0
}

// Journal records committed blocks.
type Journal struct {
	db     storage.DB
	blocks *storage.Bucket
	wins   *storage.Bucket
	logger zerolog.Logger

	mu     sync.Mutex // serializes win counter updates
	last   int        // highest index recorded since New or Reset, -1 if none
	errors atomic.Uint64
	gaps   atomic.Uint64
}

// New creates a journal over db. The journal does not own db.
func New(db storage.DB, logger zerolog.Logger) *Journal {
	return &Journal{
		db:     db,
		blocks: storage.NewBucket(db, "b"),
		wins:   storage.NewBucket(db, "w"),
		logger: logger,
		last:   -1,
	}
}

// Handle is an events.Handler that records every appended block.
func (j *Journal) Handle(e events.Event) {
	if e.Kind != events.KindLedgerAppended || e.Block == nil {
		return
	}
	if err := j.Record(*e.Block); err != nil {
		j.errors.Add(1)
		j.logger.Error().Err(err).Int("index", e.Block.Index).Msg("Failed to journal block")
	}
}

// Record stores b and bumps its worker's win counter in one batch.
// Recording the same index twice does not count the win twice.
func (j *Journal) Record(b block.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", b.Index, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seen, err := j.blocks.Has(indexKey(b.Index))
	if err != nil {
		return fmt.Errorf("check block %d: %w", b.Index, err)
	}
	wins, err := j.winsOf(b.WorkerID)
	if err != nil {
		return err
	}

	batch := storage.NewBatch(j.db)
	if err := batch.Put(j.blocks.Key(indexKey(b.Index)), data); err != nil {
		return err
	}
	if !seen {
		count := binary.LittleEndian.AppendUint64(nil, wins+1)
		if err := batch.Put(j.wins.Key(workerKey(b.WorkerID)), count); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store block %d: %w", b.Index, err)
	}

	if b.Index > j.last+1 {
		j.gaps.Add(1)
		j.logger.Warn().
			Int("index", b.Index).
			Int("missing", b.Index-j.last-1).
			Msg("Journal gap: earlier blocks were not recorded")
	}
	j.last = max(j.last, b.Index)

	j.logger.Debug().Int("index", b.Index).Int("worker", b.WorkerID).Msg("Journaled block")
	return nil
}

// Block returns the journaled block at index i.
func (j *Journal) Block(i int) (block.Block, error) {
	data, err := j.blocks.Get(indexKey(i))
	if err != nil {
		return block.Block{}, fmt.Errorf("block %d: %w", i, err)
	}
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return block.Block{}, fmt.Errorf("decode block %d: %w", i, err)
	}
	return b, nil
}

// Blocks returns every journaled block in index order.
func (j *Journal) Blocks() ([]block.Block, error) {
	var out []block.Block
	err := j.blocks.Each(func(_, value []byte) error {
		var b block.Block
		if err := json.Unmarshal(value, &b); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	return out, nil
}

// Wins returns the win count of every worker that has won at least once.
func (j *Journal) Wins() (map[int]uint64, error) {
	out := make(map[int]uint64)
	err := j.wins.Each(func(key, value []byte) error {
		if len(key) != 4 || len(value) != 8 {
			return fmt.Errorf("malformed win record %x", key)
		}
		out[int(binary.BigEndian.Uint32(key))] = binary.LittleEndian.Uint64(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read wins: %w", err)
	}
	return out, nil
}

// Stats returns block and win totals.
func (j *Journal) Stats() (Stats, error) {
	wins, err := j.Wins()
	if err != nil {
		return Stats{}, err
	}
	n, err := j.blocks.Len()
	if err != nil {
		return Stats{}, fmt.Errorf("count blocks: %w", err)
	}
	return Stats{Blocks: n, Wins: wins, Errors: j.errors.Load(), Gaps: j.gaps.Load()}, nil
}

// Reset removes every journaled record.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.blocks.Clear(); err != nil {
		return err
	}
	if err := j.wins.Clear(); err != nil {
		return err
	}
	j.last = -1
	j.gaps.Store(0)
	j.errors.Store(0)
	j.logger.Info().Msg("Journal reset")
	return nil
}

// Compare audits the journal against ledger, which must be in index order.
func (j *Journal) Compare(ledger []block.Block) (Audit, error) {
	journaled, err := j.Blocks()
	if err != nil {
		return Audit{}, err
	}
	a := Audit{Journaled: len(journaled), Ledger: len(ledger)}
	have := make(map[int]block.Block, len(journaled))
	for _, b := range journaled {
		have[b.Index] = b
		if b.Index >= len(ledger) {
			a.Extra = append(a.Extra, b.Index)
		}
	}
	for i, want := range ledger {
		got, ok := have[i]
		switch {
		case !ok:
			a.Missing = append(a.Missing, i)
		case got.Digest() != want.Digest():
			a.Mismatched = append(a.Mismatched, i)
		}
	}
	return a, nil
}

func (j *Journal) winsOf(worker int) (uint64, error) {
	v, err := j.wins.Get(workerKey(worker))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read wins for worker %d: %w", worker, err)
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("malformed win record for worker %d", worker)
	}
	return binary.LittleEndian.Uint64(v), nil
}

// Keys are big-endian so Each visits them in numeric order.
func indexKey(i int) []byte  { return binary.BigEndian.AppendUint64(nil, uint64(i)) }
func workerKey(w int) []byte { return binary.BigEndian.AppendUint32(nil, uint32(w)) }
