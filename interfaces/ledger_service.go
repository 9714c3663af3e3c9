package interfaces

import (
	"context"

	"github.com/mezonai/quorumcoin/types"
)

// LedgerService is what the transport exposes of a replica. Every successful reply is sealed in
// an envelope signed by the replica key.
type LedgerService interface {
	Register(ctx context.Context, in *types.RegisterRequest) (*types.Envelope, error)
	Send(ctx context.Context, in *types.SendRequest) (*types.Envelope, error)
	Receive(ctx context.Context, in *types.ReceiveRequest) (*types.Envelope, error)
	Check(ctx context.Context, in *types.AccountRequest) (*types.Envelope, error)
	Audit(ctx context.Context, in *types.AccountRequest) (*types.Envelope, error)
	Join(ctx context.Context, in *types.JoinRequest) (*types.Envelope, error)
}
