package service

import (
	"context"
	"time"

	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/interfaces"
	"github.com/mezonai/quorumcoin/types"
)

const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

type HealthServiceImpl struct {
	ledger    interfaces.Ledger
	sealer    *Sealer
	replicaID string
	startedAt time.Time
}

func NewHealthService(ld interfaces.Ledger, sealer *Sealer, replicaID string) *HealthServiceImpl {
	return &HealthServiceImpl{ledger: ld, sealer: sealer, replicaID: replicaID, startedAt: time.Now()}
}

func (hs *HealthServiceImpl) Check(ctx context.Context) (*types.Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(errors.ErrCodeReplicaUnavailable, "health check: %v", ctx.Err())
	default:
	}

	status := StatusServing
	if hs.ledger == nil {
		status = StatusNotServing
	}
	return hs.sealer.Seal(&types.HealthStatus{
		ReplicaID: hs.replicaID,
		Status:    status,
		Uptime:    uint64(time.Since(hs.startedAt).Seconds()),
	})
}
