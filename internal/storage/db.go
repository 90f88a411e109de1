// Package storage provides the key-value stores behind the block journal.
package storage

import "errors"

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage. Implementations are safe for
// concurrent use.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes until Commit applies them in one step.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by stores that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns an atomic batch when db supports one, and otherwise a
// batch that applies its writes one at a time on Commit.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &sequentialBatch{db: db}
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

func (o batchOp) apply(db DB) error {
	if o.delete {
		return db.Delete(o.key)
	}
	return db.Put(o.key, o.value)
}

// opList records batch operations with copied keys and values.
type opList []batchOp

func (l *opList) put(key, value []byte) {
	*l = append(*l, batchOp{key: clone(key), value: clone(value)})
}

func (l *opList) del(key []byte) {
	*l = append(*l, batchOp{key: clone(key), delete: true})
}

type sequentialBatch struct {
	db  DB
	ops opList
}

func (s *sequentialBatch) Put(key, value []byte) error { s.ops.put(key, value); return nil }
func (s *sequentialBatch) Delete(key []byte) error     { s.ops.del(key); return nil }

func (s *sequentialBatch) Commit() error {
	for _, op := range s.ops {
		if err := op.apply(s.db); err != nil {
			return err
		}
	}
	s.ops = nil
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
