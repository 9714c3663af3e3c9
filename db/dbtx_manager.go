package db

import (
	"fmt"

	"github.com/mezonai/quorumcoin/logx"
)

// DBTxManager runs a group of writes as one atomic batch on the shared DatabaseProvider.
type DBTxManager struct {
	provider DatabaseProvider
}

func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// WithBatch executes fn against a fresh batch; the batch is committed only if fn returns nil.
func (tm *DBTxManager) WithBatch(fn func(batch DatabaseBatch) error) error {
	batch := tm.provider.Batch()
	defer func() {
		if err := batch.Close(); err != nil {
			logx.Error("TX_MANAGER", "Failed to close batch:", err)
		}
	}()

	if err := fn(batch); err != nil {
		batch.Reset()
		return fmt.Errorf("transaction failed: %w", err)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}
