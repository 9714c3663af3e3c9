package client

import (
	"context"

	"github.com/mezonai/quorumcoin/types"
)

// Replica is one untrusted ledger replica as seen by a client. Implementations authenticate the
// reply envelope before returning its body.
type Replica interface {
	ID() string
	Register(ctx context.Context, req *types.RegisterRequest) (*types.Account, error)
	Send(ctx context.Context, req *types.SendRequest) (*types.Transaction, error)
	Receive(ctx context.Context, req *types.ReceiveRequest) (*types.Transaction, error)
	Check(ctx context.Context, keyHash string) (*types.AccountState, error)
	Audit(ctx context.Context, keyHash string) ([]*types.Transaction, error)
	Join(ctx context.Context, req *types.JoinRequest) (*types.JoinResult, error)
	Health(ctx context.Context) (*types.HealthStatus, error)
	Close() error
}
