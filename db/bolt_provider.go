package db

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var defaultBucket = []byte("quorumcoin")

// BoltProvider implements IterableProvider on a single bbolt bucket
type BoltProvider struct {
	db *bolt.DB
}

// NewBoltProvider opens (or creates) the bbolt file at path
func NewBoltProvider(path string) (*BoltProvider, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltProvider{db: db}, nil
}

func (p *BoltProvider) Get(key []byte) ([]byte, error) {
	var out []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(defaultBucket).Get(key); v != nil {
			// bbolt values are only valid inside the transaction
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (p *BoltProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		for _, k := range keys {
			if v := b.Get(k); v != nil {
				result[string(k)] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	return result, err
}

func (p *BoltProvider) Put(key, value []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(defaultBucket).Put(key, value)
	})
}

func (p *BoltProvider) Delete(key []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(defaultBucket).Delete(key)
	})
}

func (p *BoltProvider) Has(key []byte) (bool, error) {
	found := false
	err := p.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(defaultBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (p *BoltProvider) Close() error {
	return p.db.Close()
}

func (p *BoltProvider) Batch() DatabaseBatch {
	return &BoltBatch{db: p.db}
}

func (p *BoltProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	return p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(defaultBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !callback(append([]byte(nil), k...), append([]byte(nil), v...)) {
				break
			}
		}
		return nil
	})
}

type boltOp struct {
	key    []byte
	value  []byte
	delete bool
}

// BoltBatch buffers operations and applies them in one read-write transaction
type BoltBatch struct {
	db  *bolt.DB
	ops []boltOp
}

func (b *BoltBatch) Put(key, value []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *BoltBatch) Delete(key []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), delete: true})
}

func (b *BoltBatch) Write() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(defaultBucket)
		for _, op := range b.ops {
			var err error
			if op.delete {
				err = bucket.Delete(op.key)
			} else {
				err = bucket.Put(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBatch) Reset() {
	b.ops = b.ops[:0]
}

func (b *BoltBatch) Close() error {
	b.ops = nil
	return nil
}
