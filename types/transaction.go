package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
)

// NoPreviousTransaction is the previous-hash sentinel of a chain's first link.
const NoPreviousTransaction = ""

// Transaction is one link of an owner's personal hash chain: either the send half of a transfer
// (in the sender's chain) or the receive half (in the receiver's chain).
type Transaction struct {
	ID       string `json:"id"`
	Sequence uint64 `json:"sequence"`
	Owner    string `json:"owner"`

	From      string       `json:"from"`
	To        string       `json:"to"`
	Amount    *uint256.Int `json:"amount"`
	Timestamp string       `json:"timestamp"`
	Signature string       `json:"signature"`

	// Receive-links only
	SenderSignature       string `json:"sender_signature,omitempty"`
	ReceivedTransactionID string `json:"received_transaction_id,omitempty"`

	PreviousTransactionHash string `json:"previous_transaction_hash"`
	TransactionHash         string `json:"transaction_hash"`

	Pending   bool `json:"pending"`
	Receiving bool `json:"receiving"`
	Last      bool `json:"last"`
}

// TransactionID builds "<sequence>-<owner>".
func TransactionID(sequence uint64, owner string) string {
	return strconv.FormatUint(sequence, 10) + "-" + owner
}

// ParseTransactionID splits an id into its sequence and owner key hash.
func ParseTransactionID(id string) (uint64, string, error) {
	idx := strings.IndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return 0, "", fmt.Errorf("malformed transaction id %q", id)
	}
	seq, err := strconv.ParseUint(id[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed transaction id %q: %w", id, err)
	}
	return seq, id[idx+1:], nil
}

// ComputeHash derives the link's identifying hash from its immutable content.
// Pending and Last change over the link's life and are excluded.
func (tx *Transaction) ComputeHash() string {
	amount := "0"
	if tx.Amount != nil {
		amount = tx.Amount.Dec()
	}
	return crypto.Digest(
		tx.ID,
		tx.From,
		tx.To,
		amount,
		tx.Timestamp,
		tx.Signature,
		tx.SenderSignature,
		tx.ReceivedTransactionID,
		tx.PreviousTransactionHash,
		strconv.FormatBool(tx.Receiving),
	)
}

// SameContent reports structural equality over the immutable fields.
func (tx *Transaction) SameContent(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return tx.ID == other.ID &&
		tx.Sequence == other.Sequence &&
		tx.Owner == other.Owner &&
		tx.From == other.From &&
		tx.To == other.To &&
		amountEq(tx.Amount, other.Amount) &&
		tx.Timestamp == other.Timestamp &&
		tx.Signature == other.Signature &&
		tx.SenderSignature == other.SenderSignature &&
		tx.ReceivedTransactionID == other.ReceivedTransactionID &&
		tx.PreviousTransactionHash == other.PreviousTransactionHash &&
		tx.TransactionHash == other.TransactionHash &&
		tx.Receiving == other.Receiving
}

// Clone returns a deep copy.
func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	cp := *tx
	if tx.Amount != nil {
		cp.Amount = new(uint256.Int).Set(tx.Amount)
	}
	return &cp
}

func amountEq(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}

// SortBySequence orders links in place by ascending sequence.
func SortBySequence(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Sequence < txs[j].Sequence
	})
}

// ChainTipHash is the previous-transaction value the next link of chain must carry.
func ChainTipHash(chain []*Transaction) string {
	if len(chain) == 0 {
		return NoPreviousTransaction
	}
	return chain[len(chain)-1].TransactionHash
}
