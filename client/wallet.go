package client

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/types"
)

// Wallet signs ledger requests with one account key
type Wallet struct {
	key *crypto.KeyPair
	now func() string
}

func NewWallet(key *crypto.KeyPair) *Wallet {
	return &Wallet{key: key, now: crypto.Now}
}

func (w *Wallet) KeyHash() string {
	return w.key.Hash
}

func (w *Wallet) PublicKey() string {
	return w.key.Encoded
}

func (w *Wallet) Register() *types.RegisterRequest {
	ts := w.now()
	return &types.RegisterRequest{
		PublicKey: w.key.Encoded,
		Timestamp: ts,
		Signature: w.key.Sign(crypto.RegisterPayload(ts)),
	}
}

func (w *Wallet) Send(dest string, amount *uint256.Int, previous string) *types.SendRequest {
	ts := w.now()
	return &types.SendRequest{
		SourceHash:          w.key.Hash,
		DestHash:            dest,
		Amount:              amount,
		PreviousTransaction: previous,
		Timestamp:           ts,
		Signature:           w.key.Sign(crypto.SendPayload(w.key.Hash, dest, amount, previous, ts)),
	}
}

// Receive signs the claim of a send-link addressed to this wallet
func (w *Wallet) Receive(transactionID, transactionSig, previous string) (*types.ReceiveRequest, error) {
	raw, err := crypto.DecodeSignature(transactionSig)
	if err != nil {
		return nil, fmt.Errorf("transaction signature: %w", err)
	}
	ts := w.now()
	return &types.ReceiveRequest{
		TransactionID:       transactionID,
		TransactionSig:      transactionSig,
		PreviousTransaction: previous,
		Timestamp:           ts,
		Signature:           w.key.Sign(crypto.ReceivePayload(transactionID, raw, previous, ts)),
	}, nil
}
