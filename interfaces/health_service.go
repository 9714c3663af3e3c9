package interfaces

import (
	"context"

	"github.com/mezonai/quorumcoin/types"
)

type HealthService interface {
	Check(ctx context.Context) (*types.Envelope, error)
}
