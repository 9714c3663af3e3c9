package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/monitoring"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
)

// JoinLedger ingests links of keyHash's chain pushed by a reconciling client. Links that already
// exist must match the stored ones exactly; new links must extend the chain contiguously and are
// verified like a live send or receive before their balance effects are applied. The whole batch
// commits atomically or not at all.
func (l *Ledger) JoinLedger(req *types.JoinRequest) (res *types.JoinResult, err error) {
	defer l.observe(OpJoin, time.Now(), &err)

	if req == nil || req.KeyHash == "" {
		return nil, errors.ErrNullArgument
	}
	if len(req.Links) > l.cfg.MaxJoinLinks {
		return nil, errors.Wrapf(errors.ErrCodeBatchTooLarge, "%d links, limit %d", len(req.Links), l.cfg.MaxJoinLinks)
	}
	incoming := make([]*types.Transaction, 0, len(req.Links))
	for _, link := range req.Links {
		if link == nil || link.Amount == nil {
			return nil, errors.ErrNullArgument
		}
		incoming = append(incoming, link.Clone())
	}
	types.SortBySequence(incoming)

	l.mu.Lock()
	defer l.mu.Unlock()

	owner, err := l.account(req.KeyHash)
	if err != nil {
		return nil, err
	}
	pub, _, err := crypto.DecodePublicKey(owner.PublicKey)
	if err != nil {
		return nil, internal("decode stored public key", err)
	}
	chain, err := l.store.GetChain(req.KeyHash)
	if err != nil {
		return nil, internal("load chain", err)
	}
	types.SortBySequence(chain)
	stored := len(chain)

	j := &joiner{
		ledger:     l,
		owner:      owner.Clone(),
		pub:        pub,
		update:     new(store.Update),
		signatures: make(map[string]string),
		senderSigs: make(map[string]string),
	}
	res = &types.JoinResult{KeyHash: req.KeyHash}

	for _, link := range incoming {
		if link.Owner != req.KeyHash {
			return nil, errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "link %s is not owned by %s", link.ID, req.KeyHash)
		}
		pos := link.Sequence
		if pos < uint64(len(chain)) {
			existing := chain[pos]
			if !existing.SameContent(link) {
				return nil, errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "stored %s (%s) conflicts with incoming %s (%s)",
					existing.ID, existing.TransactionHash, link.ID, link.TransactionHash)
			}
			res.Skipped++
			continue
		}
		if pos != uint64(len(chain)) {
			return nil, errors.Wrapf(errors.ErrCodeWrongPreviousTransaction, "link %s leaves a gap, next sequence is %d", link.ID, len(chain))
		}
		if err := j.verify(link, types.ChainTipHash(chain)); err != nil {
			return nil, err
		}
		link.Last = false
		chain = append(chain, link)
		res.Appended++
	}

	if res.Appended == 0 {
		return res, nil
	}

	if stored > 0 {
		j.update.AddTransaction(demoted(chain[stored-1]))
	}
	chain[len(chain)-1].Last = true
	for _, link := range chain[stored:] {
		j.update.AddTransaction(link)
	}
	j.update.AddAccount(j.owner)
	if err := l.store.Commit(j.update); err != nil {
		return nil, internal("commit join", err)
	}

	monitoring.AddJoinedLinks(res.Appended)
	logx.Info("LEDGER", fmt.Sprintf("Joined %d links into %s (skipped %d), balance=%s",
		res.Appended, req.KeyHash, res.Skipped, j.owner.Balance.Dec()))
	return res, nil
}

// joiner carries the in-flight state of one JoinLedger batch
type joiner struct {
	ledger *Ledger
	owner  *types.Account
	pub    []byte
	update *store.Update

	// signatures used inside the batch, mapped to the link that used them
	signatures map[string]string
	senderSigs map[string]string
}

func (j *joiner) verify(link *types.Transaction, prevHash string) error {
	id := types.TransactionID(link.Sequence, j.owner.KeyHash)
	if link.ID != id {
		return errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "link id %s, expected %s", link.ID, id)
	}
	if link.PreviousTransactionHash != prevHash {
		return errors.Wrapf(errors.ErrCodeWrongPreviousTransaction, "link %s expects previous %q, chain tip is %q",
			link.ID, link.PreviousTransactionHash, prevHash)
	}
	if link.ComputeHash() != link.TransactionHash {
		return errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "link %s carries a hash that does not match its content", link.ID)
	}
	if link.Signature == "" || link.Timestamp == "" || link.From == "" || link.To == "" {
		return errors.ErrNullArgument
	}
	if link.From == link.To {
		return errors.ErrSameSourceAndDestAccount
	}
	if link.Amount.IsZero() {
		return errors.ErrInvalidAmount
	}
	if err := j.unusedSignature(link); err != nil {
		return err
	}
	if link.Receiving {
		return j.applyReceive(link)
	}
	return j.applySend(link)
}

func (j *joiner) unusedSignature(link *types.Transaction) error {
	if other, ok := j.signatures[link.Signature]; ok {
		return errors.Wrapf(errors.ErrCodeRepeatedTransaction, "signature of %s already used by %s", link.ID, other)
	}
	used, err := j.ledger.store.FindBySignature(link.Signature)
	if err != nil {
		return internal("look up signature", err)
	}
	if used != nil {
		return errors.Wrapf(errors.ErrCodeRepeatedTransaction, "signature of %s already used by %s", link.ID, used.ID)
	}
	j.signatures[link.Signature] = link.ID
	return nil
}

func (j *joiner) applySend(link *types.Transaction) error {
	if link.From != j.owner.KeyHash {
		return errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "send-link %s does not originate from its owner", link.ID)
	}
	if _, err := j.ledger.account(link.To); err != nil {
		return err
	}
	payload := crypto.SendPayload(link.From, link.To, link.Amount, link.PreviousTransactionHash, link.Timestamp)
	if !crypto.Verify(j.pub, payload, link.Signature) {
		return errors.Wrapf(errors.ErrCodeInvalidSignature, "send-link %s", link.ID)
	}
	if j.owner.Balance.Lt(link.Amount) {
		return errors.Wrapf(errors.ErrCodeAccountInsufficientAmount, "send-link %s needs %s, balance %s",
			link.ID, link.Amount.Dec(), j.owner.Balance.Dec())
	}
	j.owner.Balance = new(uint256.Int).Sub(j.owner.Balance, link.Amount)

	consumer, err := j.ledger.store.FindBySenderSignature(link.Signature)
	if err != nil {
		return internal("look up sender signature", err)
	}
	link.Pending = consumer == nil
	return nil
}

func (j *joiner) applyReceive(link *types.Transaction) error {
	if link.To != j.owner.KeyHash {
		return errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "receive-link %s is not addressed to its owner", link.ID)
	}
	if link.SenderSignature == "" || link.ReceivedTransactionID == "" {
		return errors.ErrNullArgument
	}
	rawSendSig, err := crypto.DecodeSignature(link.SenderSignature)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidSignature, "receive-link %s sender signature: %v", link.ID, err)
	}
	payload := crypto.ReceivePayload(link.ReceivedTransactionID, rawSendSig, link.PreviousTransactionHash, link.Timestamp)
	if !crypto.Verify(j.pub, payload, link.Signature) {
		return errors.Wrapf(errors.ErrCodeInvalidSignature, "receive-link %s", link.ID)
	}

	if other, ok := j.senderSigs[link.SenderSignature]; ok {
		return errors.Wrapf(errors.ErrCodeTransactionAlreadyReceived, "%s already received by %s", link.ReceivedTransactionID, other)
	}
	consumer, err := j.ledger.store.FindBySenderSignature(link.SenderSignature)
	if err != nil {
		return internal("look up sender signature", err)
	}
	if consumer != nil {
		return errors.Wrapf(errors.ErrCodeTransactionAlreadyReceived, "%s already received by %s", link.ReceivedTransactionID, consumer.ID)
	}
	j.senderSigs[link.SenderSignature] = link.ID

	// only a stored send-link, verified against the sender's key when it was appended, backs a credit
	send, err := j.ledger.store.GetTransaction(link.ReceivedTransactionID)
	if err != nil {
		return internal("load transaction", err)
	}
	if send == nil || send.Receiving {
		return errors.Wrapf(errors.ErrCodeTransactionNotFound, "receive-link %s claims unknown send-link %s", link.ID, link.ReceivedTransactionID)
	}
	if send.Signature != link.SenderSignature || send.To != link.To || send.From != link.From {
		return errors.Wrapf(errors.ErrCodeInvalidSignature, "receive-link %s does not match %s", link.ID, send.ID)
	}
	if !send.Amount.Eq(link.Amount) {
		return errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "receive-link %s amount %s, send-link %s amount %s",
			link.ID, link.Amount.Dec(), send.ID, send.Amount.Dec())
	}
	if !send.Pending {
		return errors.Wrapf(errors.ErrCodeTransactionAlreadyReceived, "%s is already settled", send.ID)
	}
	settled := send.Clone()
	settled.Pending = false
	j.update.AddTransaction(settled)

	j.owner.Balance = new(uint256.Int).Add(j.owner.Balance, send.Amount)
	link.Pending = false
	return nil
}
