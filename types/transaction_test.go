package types

import (
	"testing"

	"github.com/holiman/uint256"
)

func sampleLink() *Transaction {
	return &Transaction{
		ID:        TransactionID(3, "owner"),
		Sequence:  3,
		Owner:     "owner",
		From:      "owner",
		To:        "other",
		Amount:    uint256.NewInt(30),
		Timestamp: "2026-01-01T00:00:00Z",
		Signature: "sig",
		Pending:   true,
		Last:      true,
	}
}

func TestTransactionIDRoundTrip(t *testing.T) {
	id := TransactionID(12, "a+b/c==")
	seq, owner, err := ParseTransactionID(id)
	if err != nil {
		t.Fatalf("ParseTransactionID() error = %v", err)
	}
	if seq != 12 || owner != "a+b/c==" {
		t.Fatalf("got (%d, %s)", seq, owner)
	}

	for _, bad := range []string{"", "-x", "3-", "x-owner"} {
		if _, _, err := ParseTransactionID(bad); err == nil {
			t.Fatalf("ParseTransactionID(%q) expected error", bad)
		}
	}
}

func TestComputeHashIgnoresMutableFlags(t *testing.T) {
	a := sampleLink()
	b := a.Clone()
	b.Pending = false
	b.Last = false
	if a.ComputeHash() != b.ComputeHash() {
		t.Fatal("hash changed with pending/last flags")
	}

	b.Amount = uint256.NewInt(31)
	if a.ComputeHash() == b.ComputeHash() {
		t.Fatal("hash did not change with amount")
	}
}

func TestSameContent(t *testing.T) {
	a := sampleLink()
	a.TransactionHash = a.ComputeHash()
	b := a.Clone()
	b.Pending = false
	if !a.SameContent(b) {
		t.Fatal("links differing only in pending must be equal")
	}
	b.Signature = "forged"
	if a.SameContent(b) {
		t.Fatal("links with different signatures must differ")
	}
	if a.SameContent(nil) {
		t.Fatal("nil must not equal a link")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := sampleLink()
	b := a.Clone()
	b.Amount.AddUint64(b.Amount, 1)
	if a.Amount.Uint64() != 30 {
		t.Fatalf("clone shares amount storage")
	}
}

func TestSortBySequenceAndTip(t *testing.T) {
	chain := []*Transaction{
		{Sequence: 2, TransactionHash: "h2"},
		{Sequence: 0, TransactionHash: "h0"},
		{Sequence: 1, TransactionHash: "h1"},
	}
	SortBySequence(chain)
	for i, tx := range chain {
		if tx.Sequence != uint64(i) {
			t.Fatalf("position %d holds sequence %d", i, tx.Sequence)
		}
	}
	if ChainTipHash(chain) != "h2" {
		t.Fatalf("tip = %s", ChainTipHash(chain))
	}
	if ChainTipHash(nil) != NoPreviousTransaction {
		t.Fatal("empty chain tip must be the sentinel")
	}
}
