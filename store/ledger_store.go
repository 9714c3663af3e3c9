package store

import (
	"github.com/mezonai/quorumcoin/types"
)

// LedgerStore is the persistence port of the ledger state machine. Lookups return (nil, nil)
// when the object does not exist.
type LedgerStore interface {
	GetAccount(keyHash string) (*types.Account, error)
	AccountExists(keyHash string) (bool, error)

	GetTransaction(id string) (*types.Transaction, error)
	// GetChainTip returns the owner's last=true link
	GetChainTip(owner string) (*types.Transaction, error)
	// GetChain returns every link owned by owner in sequence order
	GetChain(owner string) ([]*types.Transaction, error)
	// GetPendingIncoming returns send-links to keyHash that are still pending
	GetPendingIncoming(keyHash string) ([]*types.Transaction, error)
	FindBySignature(signature string) (*types.Transaction, error)
	// FindBySenderSignature returns the receive-link that consumed the given send signature
	FindBySenderSignature(signature string) (*types.Transaction, error)

	// Commit persists every account and link in update atomically. Links are upserted.
	Commit(update *Update) error

	MustClose()
}

// Update is one atomic unit of ledger mutation.
type Update struct {
	Accounts     []*types.Account
	Transactions []*types.Transaction
}

func (u *Update) AddAccount(acc *types.Account) *Update {
	u.Accounts = append(u.Accounts, acc)
	return u
}

func (u *Update) AddTransaction(tx *types.Transaction) *Update {
	u.Transactions = append(u.Transactions, tx)
	return u
}

func (u *Update) Empty() bool {
	return len(u.Accounts) == 0 && len(u.Transactions) == 0
}
