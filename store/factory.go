package store

import (
	"fmt"

	"github.com/mezonai/quorumcoin/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	LevelDBStoreType  StoreType = "leveldb"
	MemoryStoreType   StoreType = "memory"
	BoltStoreType     StoreType = "bbolt"
	RedisStoreType    StoreType = "redis"
	PostgresStoreType StoreType = "postgres"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database path for file-based backends
	Directory string `json:"directory" yaml:"directory"`

	// Address and DB select the Redis server
	Address string `json:"address" yaml:"address"`
	DB      int    `json:"db" yaml:"db"`

	// DSN is the PostgreSQL connection string
	DSN string `json:"dsn" yaml:"dsn"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case "":
		return fmt.Errorf("store type cannot be empty")
	case LevelDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s store", sc.Type)
		}
	case RedisStoreType:
		if sc.Address == "" {
			return fmt.Errorf("address cannot be empty for redis store")
		}
	case PostgresStoreType:
		if sc.DSN == "" {
			return fmt.Errorf("dsn cannot be empty for postgres store")
		}
	case MemoryStoreType:
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateLedgerStore builds the LedgerStore selected by config
func (sf *StoreFactory) CreateLedgerStore(config *StoreConfig) (LedgerStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Type == PostgresStoreType {
		return NewPgLedgerStore(config.DSN)
	}

	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return NewKVLedgerStore(provider)
}

// CreateProvider creates a key-value provider for the non-relational store types
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.IterableProvider, error) {
	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)
	case MemoryStoreType:
		return db.NewMemLevelDBProvider()
	case BoltStoreType:
		return db.NewBoltProvider(config.Directory)
	case RedisStoreType:
		return db.NewRedisProvider(config.Address, config.DB)
	default:
		return nil, fmt.Errorf("unsupported key-value store type: %s", config.Type)
	}
}

var globalFactory = NewStoreFactory()

// CreateLedgerStore creates a store using the global factory
func CreateLedgerStore(config *StoreConfig) (LedgerStore, error) {
	return globalFactory.CreateLedgerStore(config)
}
