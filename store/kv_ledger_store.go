package store

import (
	"fmt"

	"github.com/mezonai/quorumcoin/db"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/types"
)

// KVLedgerStore implements LedgerStore on any ordered key-value provider, keeping secondary
// indexes (chain order, tip, signatures, pending incoming) next to the records.
type KVLedgerStore struct {
	dbProvider db.IterableProvider
	txManager  *db.DBTxManager
}

func NewKVLedgerStore(dbProvider db.IterableProvider) (*KVLedgerStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &KVLedgerStore{
		dbProvider: dbProvider,
		txManager:  db.NewDBTxManager(dbProvider),
	}, nil
}

func (s *KVLedgerStore) GetAccount(keyHash string) (*types.Account, error) {
	data, err := s.dbProvider.Get(accountKey(keyHash))
	if err != nil {
		return nil, fmt.Errorf("could not get account %s from db: %w", keyHash, err)
	}
	if data == nil {
		return nil, nil
	}
	var acc types.Account
	if err := jsonx.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %w", keyHash, err)
	}
	return &acc, nil
}

func (s *KVLedgerStore) AccountExists(keyHash string) (bool, error) {
	return s.dbProvider.Has(accountKey(keyHash))
}

func (s *KVLedgerStore) GetTransaction(id string) (*types.Transaction, error) {
	data, err := s.dbProvider.Get(txKey(id))
	if err != nil {
		return nil, fmt.Errorf("could not get transaction %s from db: %w", id, err)
	}
	if data == nil {
		return nil, nil
	}
	var tx types.Transaction
	if err := jsonx.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (s *KVLedgerStore) GetChainTip(owner string) (*types.Transaction, error) {
	return s.followIndex(tipKey(owner))
}

func (s *KVLedgerStore) FindBySignature(signature string) (*types.Transaction, error) {
	return s.followIndex(signatureKey(signature))
}

func (s *KVLedgerStore) FindBySenderSignature(signature string) (*types.Transaction, error) {
	return s.followIndex(senderSigKey(signature))
}

func (s *KVLedgerStore) GetChain(owner string) ([]*types.Transaction, error) {
	return s.collect([]byte(PrefixChain + owner + ":"))
}

func (s *KVLedgerStore) GetPendingIncoming(keyHash string) ([]*types.Transaction, error) {
	return s.collect([]byte(PrefixPendingIn + keyHash + ":"))
}

func (s *KVLedgerStore) Commit(update *Update) error {
	if update == nil || update.Empty() {
		return nil
	}
	err := s.txManager.WithBatch(func(batch db.DatabaseBatch) error {
		for _, acc := range update.Accounts {
			data, err := jsonx.Marshal(acc)
			if err != nil {
				return fmt.Errorf("failed to marshal account: %w", err)
			}
			batch.Put(accountKey(acc.KeyHash), data)
		}
		for _, tx := range update.Transactions {
			data, err := jsonx.Marshal(tx)
			if err != nil {
				return fmt.Errorf("failed to marshal transaction: %w", err)
			}
			id := []byte(tx.ID)
			batch.Put(txKey(tx.ID), data)
			batch.Put(chainKey(tx.Owner, tx.Sequence), id)
			if tx.Last {
				batch.Put(tipKey(tx.Owner), id)
			}
			if tx.Signature != "" {
				batch.Put(signatureKey(tx.Signature), id)
			}
			if tx.Receiving && tx.SenderSignature != "" {
				batch.Put(senderSigKey(tx.SenderSignature), id)
			}
			if !tx.Receiving && tx.Pending {
				batch.Put(pendingInKey(tx.To, tx.ID), id)
			} else if !tx.Receiving {
				batch.Delete(pendingInKey(tx.To, tx.ID))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit ledger update: %w", err)
	}
	logx.Debug("STORE", fmt.Sprintf("Committed %d accounts, %d links", len(update.Accounts), len(update.Transactions)))
	return nil
}

func (s *KVLedgerStore) MustClose() {
	if err := s.dbProvider.Close(); err != nil {
		logx.Error("STORE", "Failed to close db provider:", err.Error())
	}
}

func (s *KVLedgerStore) followIndex(key []byte) (*types.Transaction, error) {
	id, err := s.dbProvider.Get(key)
	if err != nil {
		return nil, fmt.Errorf("could not read index %s: %w", key, err)
	}
	if id == nil {
		return nil, nil
	}
	return s.GetTransaction(string(id))
}

// collect resolves every id stored under prefix, in key order.
func (s *KVLedgerStore) collect(prefix []byte) ([]*types.Transaction, error) {
	var ids [][]byte
	err := s.dbProvider.IteratePrefix(prefix, func(_, value []byte) bool {
		ids = append(ids, txKey(string(value)))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not iterate %s: %w", prefix, err)
	}
	if len(ids) == 0 {
		return []*types.Transaction{}, nil
	}

	raw, err := s.dbProvider.GetBatch(ids)
	if err != nil {
		return nil, fmt.Errorf("could not load transactions: %w", err)
	}
	txs := make([]*types.Transaction, 0, len(ids))
	for _, k := range ids {
		data, ok := raw[string(k)]
		if !ok {
			return nil, fmt.Errorf("index references missing record %s", k)
		}
		var tx types.Transaction
		if err := jsonx.Unmarshal(data, &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", k, err)
		}
		txs = append(txs, &tx)
	}
	return txs, nil
}

func accountKey(keyHash string) []byte {
	return []byte(PrefixAccount + keyHash)
}

func txKey(id string) []byte {
	return []byte(PrefixTx + id)
}

// zero padded so byte order equals sequence order
func chainKey(owner string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", PrefixChain, owner, seq))
}

func tipKey(owner string) []byte {
	return []byte(PrefixTip + owner)
}

func signatureKey(sig string) []byte {
	return []byte(PrefixSignature + sig)
}

func senderSigKey(sig string) []byte {
	return []byte(PrefixSenderSig + sig)
}

func pendingInKey(to, id string) []byte {
	return []byte(PrefixPendingIn + to + ":" + id)
}
