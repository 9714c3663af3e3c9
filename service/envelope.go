package service

import (
	"fmt"

	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/types"
)

// Sealer wraps results into envelopes signed with the replica key
type Sealer struct {
	replicaID string
	key       *crypto.KeyPair
}

func NewSealer(replicaID string, key *crypto.KeyPair) *Sealer {
	return &Sealer{replicaID: replicaID, key: key}
}

func (s *Sealer) Seal(result interface{}) (*types.Envelope, error) {
	body, err := jsonx.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	ts := crypto.Now()
	return &types.Envelope{
		Replica:   s.replicaID,
		Timestamp: ts,
		Signature: s.key.Sign(crypto.ResponsePayload(ts)),
		Result:    body,
	}, nil
}
