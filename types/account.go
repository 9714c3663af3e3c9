package types

import (
	"github.com/holiman/uint256"
)

// Account is one registered key and its balance.
type Account struct {
	KeyHash   string       `json:"key_hash"`
	PublicKey string       `json:"public_key"`
	Balance   *uint256.Int `json:"balance"`
}

// Clone returns a deep copy so callers can mutate balances without touching shared state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Balance != nil {
		cp.Balance = new(uint256.Int).Set(a.Balance)
	}
	return &cp
}

// AccountState is the read-only view returned by checkAccount.
type AccountState struct {
	KeyHash         string         `json:"key_hash"`
	Balance         *uint256.Int   `json:"balance"`
	PendingIncoming []*Transaction `json:"pending_incoming"`
}
