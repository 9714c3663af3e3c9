package db

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBProvider implements IterableProvider for LevelDB
type LevelDBProvider struct {
	once sync.Once
	db   *leveldb.DB
}

// NewLevelDBProvider opens (or creates) a LevelDB database in directory
func NewLevelDBProvider(directory string) (*LevelDBProvider, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}

	return &LevelDBProvider{db: db}, nil
}

// NewMemLevelDBProvider returns a LevelDB instance backed by memory; contents vanish on Close.
func NewMemLevelDBProvider() (*LevelDBProvider, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory LevelDB: %w", err)
	}
	return &LevelDBProvider{db: db}, nil
}

func (p *LevelDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (p *LevelDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))

	// LevelDB has no native MultiGet; read from one snapshot so the batch is consistent
	snap, err := p.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	for _, key := range keys {
		value, err := snap.Get(key, nil)
		if err != nil {
			if err != leveldb.ErrNotFound {
				return nil, err
			}
			continue
		}
		result[string(key)] = value
	}

	return result, nil
}

func (p *LevelDBProvider) Put(key, value []byte) error {
	return p.db.Put(key, value, nil)
}

func (p *LevelDBProvider) Delete(key []byte) error {
	return p.db.Delete(key, nil)
}

func (p *LevelDBProvider) Has(key []byte) (bool, error) {
	return p.db.Has(key, nil)
}

// Close closes the database once, even when shared by several stores
func (p *LevelDBProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *LevelDBProvider) Batch() DatabaseBatch {
	return &LevelDBBatch{
		batch: new(leveldb.Batch),
		db:    p.db,
	}
}

func (p *LevelDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	iter := p.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		// iterator buffers are reused between steps
		k := append([]byte(nil), key...)
		v := append([]byte(nil), iter.Value()...)
		if !callback(k, v) {
			break
		}
	}

	return iter.Error()
}

// LevelDBBatch implements DatabaseBatch for LevelDB
type LevelDBBatch struct {
	batch *leveldb.Batch
	db    *leveldb.DB
}

func (b *LevelDBBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *LevelDBBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (b *LevelDBBatch) Write() error {
	return b.db.Write(b.batch, nil)
}

func (b *LevelDBBatch) Reset() {
	b.batch.Reset()
}

// Close is a no-op; LevelDB batches hold no external resources
func (b *LevelDBBatch) Close() error {
	return nil
}
