package storage

// Bucket is a named key range inside a DB. Keys given to and returned by a
// Bucket are relative to it; the underlying DB sees "name/" + key.
type Bucket struct {
	db     DB
	prefix []byte
}

// NewBucket returns the bucket called name in db.
func NewBucket(db DB, name string) *Bucket {
	return &Bucket{db: db, prefix: []byte(name + "/")}
}

// Key returns the absolute DB key for k, for staging writes in a shared Batch.
func (b *Bucket) Key(k []byte) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	return append(append(out, b.prefix...), k...)
}

func (b *Bucket) Get(k []byte) ([]byte, error) { return b.db.Get(b.Key(k)) }
func (b *Bucket) Has(k []byte) (bool, error)   { return b.db.Has(b.Key(k)) }

// Each calls fn for every record in key order with the bucket name stripped.
func (b *Bucket) Each(fn func(key, value []byte) error) error {
	return b.db.ForEach(b.prefix, func(key, value []byte) error {
		return fn(key[len(b.prefix):], value)
	})
}

// Len counts the records in the bucket.
func (b *Bucket) Len() (int, error) {
	n := 0
	err := b.db.ForEach(b.prefix, func(_, _ []byte) error { n++; return nil })
	return n, err
}

// Clear deletes every record in the bucket in one batch.
func (b *Bucket) Clear() error {
	var keys [][]byte
	if err := b.db.ForEach(b.prefix, func(key, _ []byte) error {
		keys = append(keys, clone(key))
		return nil
	}); err != nil {
		return err
	}
	batch := NewBatch(b.db)
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	return batch.Commit()
}
