package db

// DatabaseProvider abstracts the low-level key-value operations the ledger store is built on.
// Get returns (nil, nil) for a missing key.
type DatabaseProvider interface {
	Get(key []byte) ([]byte, error)

	// GetBatch retrieves multiple values; missing keys are absent from the result
	GetBatch(keys [][]byte) (map[string][]byte, error)

	Put(key, value []byte) error

	Delete(key []byte) error

	Has(key []byte) (bool, error)

	Close() error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch
}

// IterableProvider extends DatabaseProvider with ordered prefix iteration.
type IterableProvider interface {
	DatabaseProvider

	// IteratePrefix visits keys with the given prefix in ascending byte order.
	// The callback returns false to stop iteration
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch collects writes that are applied all-or-nothing by Write.
type DatabaseBatch interface {
	Put(key, value []byte)

	Delete(key []byte)

	Write() error

	Reset()

	Close() error
}
