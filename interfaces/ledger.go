package interfaces

import (
	"github.com/mezonai/quorumcoin/types"
)

// Ledger is the replica state machine as seen by the service layer
type Ledger interface {
	Register(req *types.RegisterRequest) (*types.Account, error)
	SendAmount(req *types.SendRequest) (*types.Transaction, error)
	ReceiveAmount(req *types.ReceiveRequest) (*types.Transaction, error)
	CheckAccount(keyHash string) (*types.AccountState, error)
	Audit(keyHash string) ([]*types.Transaction, error)
	JoinLedger(req *types.JoinRequest) (*types.JoinResult, error)
}
