package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
)

// SendAmount debits the source and appends a pending send-link to its chain
func (l *Ledger) SendAmount(req *types.SendRequest) (link *types.Transaction, err error) {
	defer l.observe(OpSend, time.Now(), &err)

	if req == nil || req.SourceHash == "" || req.DestHash == "" || req.Amount == nil ||
		req.Timestamp == "" || req.Signature == "" {
		return nil, errors.ErrNullArgument
	}
	if req.SourceHash == req.DestHash {
		return nil, errors.ErrSameSourceAndDestAccount
	}
	if req.Amount.IsZero() {
		return nil, errors.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	source, err := l.account(req.SourceHash)
	if err != nil {
		return nil, err
	}
	if _, err := l.account(req.DestHash); err != nil {
		return nil, err
	}
	if !l.fresh(req.Timestamp) {
		return nil, errors.ErrTimestampNotFresh
	}
	pub, _, err := crypto.DecodePublicKey(source.PublicKey)
	if err != nil {
		return nil, internal("decode stored public key", err)
	}
	payload := crypto.SendPayload(req.SourceHash, req.DestHash, req.Amount, req.PreviousTransaction, req.Timestamp)
	if !crypto.Verify(pub, payload, req.Signature) {
		return nil, errors.ErrInvalidSignature
	}
	used, err := l.store.FindBySignature(req.Signature)
	if err != nil {
		return nil, internal("look up signature", err)
	}
	if used != nil {
		return nil, errors.Wrapf(errors.ErrCodeRepeatedTransaction, "signature already used by %s", used.ID)
	}
	// an overdrawing send reports insufficient balance even when its previous hash is stale
	if source.Balance.Lt(req.Amount) {
		return nil, errors.Wrapf(errors.ErrCodeAccountInsufficientAmount, "balance %s, amount %s", source.Balance.Dec(), req.Amount.Dec())
	}
	tip, tipHash, err := l.tip(req.SourceHash)
	if err != nil {
		return nil, err
	}
	if req.PreviousTransaction != tipHash {
		return nil, errors.Wrapf(errors.ErrCodeWrongPreviousTransaction, "expected %q, got %q", tipHash, req.PreviousTransaction)
	}

	seq := nextSequence(tip)
	link = &types.Transaction{
		ID:                      types.TransactionID(seq, req.SourceHash),
		Sequence:                seq,
		Owner:                   req.SourceHash,
		From:                    req.SourceHash,
		To:                      req.DestHash,
		Amount:                  new(uint256.Int).Set(req.Amount),
		Timestamp:               req.Timestamp,
		Signature:               req.Signature,
		PreviousTransactionHash: tipHash,
		Pending:                 true,
		Last:                    true,
	}
	link.TransactionHash = link.ComputeHash()

	source.Balance = new(uint256.Int).Sub(source.Balance, req.Amount)
	update := new(store.Update).AddAccount(source)
	if prior := demoted(tip); prior != nil {
		update.AddTransaction(prior)
	}
	update.AddTransaction(link)
	if err := l.store.Commit(update); err != nil {
		return nil, internal("commit send", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Send %s: %s -> %s amount=%s", link.ID, link.From, link.To, link.Amount.Dec()))
	return link.Clone(), nil
}

// ReceiveAmount credits the destination of a pending send-link, settles that link and appends a
// receive-link to the destination's chain. It returns the settled send-link.
func (l *Ledger) ReceiveAmount(req *types.ReceiveRequest) (settled *types.Transaction, err error) {
	defer l.observe(OpReceive, time.Now(), &err)

	if req == nil || req.TransactionID == "" || req.TransactionSig == "" || req.Timestamp == "" || req.Signature == "" {
		return nil, errors.ErrNullArgument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	send, err := l.store.GetTransaction(req.TransactionID)
	if err != nil {
		return nil, internal("load transaction", err)
	}
	if send == nil || send.Receiving {
		return nil, errors.Wrapf(errors.ErrCodeTransactionNotFound, "%s", req.TransactionID)
	}
	if !l.fresh(req.Timestamp) {
		return nil, errors.ErrTimestampNotFresh
	}
	if req.TransactionSig != send.Signature {
		return nil, errors.Wrapf(errors.ErrCodeInvalidSignature, "transaction signature does not match %s", send.ID)
	}
	rawSendSig, err := crypto.DecodeSignature(req.TransactionSig)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidSignature, "transaction signature: %v", err)
	}
	dest, err := l.account(send.To)
	if err != nil {
		return nil, err
	}
	pub, _, err := crypto.DecodePublicKey(dest.PublicKey)
	if err != nil {
		return nil, internal("decode stored public key", err)
	}
	payload := crypto.ReceivePayload(req.TransactionID, rawSendSig, req.PreviousTransaction, req.Timestamp)
	if !crypto.Verify(pub, payload, req.Signature) {
		return nil, errors.ErrInvalidSignature
	}
	consumer, err := l.store.FindBySenderSignature(req.TransactionSig)
	if err != nil {
		return nil, internal("look up sender signature", err)
	}
	if consumer != nil || !send.Pending {
		return nil, errors.Wrapf(errors.ErrCodeTransactionAlreadyReceived, "%s", send.ID)
	}
	used, err := l.store.FindBySignature(req.Signature)
	if err != nil {
		return nil, internal("look up signature", err)
	}
	if used != nil {
		return nil, errors.Wrapf(errors.ErrCodeRepeatedTransaction, "signature already used by %s", used.ID)
	}
	tip, tipHash, err := l.tip(dest.KeyHash)
	if err != nil {
		return nil, err
	}
	if req.PreviousTransaction != tipHash {
		return nil, errors.Wrapf(errors.ErrCodeWrongPreviousTransaction, "expected %q, got %q", tipHash, req.PreviousTransaction)
	}

	seq := nextSequence(tip)
	receipt := &types.Transaction{
		ID:                      types.TransactionID(seq, dest.KeyHash),
		Sequence:                seq,
		Owner:                   dest.KeyHash,
		From:                    send.From,
		To:                      send.To,
		Amount:                  new(uint256.Int).Set(send.Amount),
		Timestamp:               req.Timestamp,
		Signature:               req.Signature,
		SenderSignature:         req.TransactionSig,
		ReceivedTransactionID:   send.ID,
		PreviousTransactionHash: tipHash,
		Receiving:               true,
		Last:                    true,
	}
	receipt.TransactionHash = receipt.ComputeHash()

	settled = send.Clone()
	settled.Pending = false
	dest.Balance = new(uint256.Int).Add(dest.Balance, send.Amount)

	update := new(store.Update).AddAccount(dest).AddTransaction(settled)
	if prior := demoted(tip); prior != nil {
		update.AddTransaction(prior)
	}
	update.AddTransaction(receipt)
	if err := l.store.Commit(update); err != nil {
		return nil, internal("commit receive", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Receive %s settles %s amount=%s", receipt.ID, send.ID, send.Amount.Dec()))
	return settled.Clone(), nil
}
