package quorum

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(owner string, hashes ...string) []*types.Transaction {
	chain := make([]*types.Transaction, len(hashes))
	for i, h := range hashes {
		chain[i] = &types.Transaction{
			ID:              types.TransactionID(uint64(i), owner),
			Sequence:        uint64(i),
			Owner:           owner,
			Amount:          uint256.NewInt(1),
			TransactionHash: h,
		}
	}
	return chain
}

func TestMissingSuffix(t *testing.T) {
	auth := chainOf("a", "h0", "h1", "h2")

	tests := []struct {
		name     string
		reported []*types.Transaction
		want     int
		fork     bool
	}{
		{"empty replica", nil, 3, false},
		{"lagging by one", chainOf("a", "h0", "h1"), 1, false},
		{"up to date", chainOf("a", "h0", "h1", "h2"), 0, false},
		{"ahead", chainOf("a", "h0", "h1", "h2", "h3"), 0, false},
		{"forked", chainOf("a", "h0", "x1"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missing, err := MissingSuffix(auth, tt.reported)
			if tt.fork {
				assert.ErrorIs(t, err, errors.ErrWritebackMismatchedTransaction)
				return
			}
			require.NoError(t, err)
			require.Len(t, missing, tt.want)
			if tt.want > 0 {
				assert.Equal(t, uint64(3-tt.want), missing[0].Sequence)
			}
		})
	}
}

func TestSessionScenario(t *testing.T) {
	fakes := newFakes(t, 3)
	coord := newTestCoordinator(t, fakes, Config{Threshold: 3})
	alice, bob := newWallet(t), newWallet(t)
	sa, sb := NewSession(coord, alice), NewSession(coord, bob)
	ctx := context.Background()

	_, err := sa.Register(ctx)
	require.NoError(t, err)
	_, err = sb.Register(ctx)
	require.NoError(t, err)

	send, err := sa.Send(ctx, bob.KeyHash(), uint256.NewInt(30))
	require.NoError(t, err)
	assert.True(t, send.Pending)

	state, _, err := sb.Check(ctx, bob.KeyHash())
	require.NoError(t, err)
	require.Len(t, state.PendingIncoming, 1)

	settled, err := sb.Receive(ctx, send.ID, send.Signature)
	require.NoError(t, err)
	assert.False(t, settled.Pending)

	state, _, err = sa.Check(ctx, alice.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(70), state.Balance.Uint64())
	state, _, err = sb.Check(ctx, bob.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(130), state.Balance.Uint64())

	chain, _, err := sa.Audit(ctx, alice.KeyHash())
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, bob.KeyHash(), chain[0].To)

	// second send chains onto the agreed tip
	next, err := sa.Send(ctx, bob.KeyHash(), uint256.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, chain[0].TransactionHash, next.PreviousTransactionHash)
}

func TestReconcileLaggingReplica(t *testing.T) {
	fakes := newFakes(t, 3)
	coord := newTestCoordinator(t, fakes, Config{})
	alice, bob := newWallet(t), newWallet(t)
	registerAll(t, coord, alice)
	registerAll(t, coord, bob)
	sa := NewSession(coord, alice)
	ctx := context.Background()

	fakes[2].offline.Store(true)
	coll, err := coord.Send(ctx, alice.Send(bob.KeyHash(), uint256.NewInt(30), types.NoPreviousTransaction))
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(ctx))
	fakes[2].offline.Store(false)

	lagging, err := fakes[2].ledger.Audit(alice.KeyHash())
	require.NoError(t, err)
	assert.Empty(t, lagging)

	report, err := sa.Reconcile(ctx, alice.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c": 1}, report.Appended)
	assert.ElementsMatch(t, []string{"a", "b"}, report.UpToDate)
	assert.Empty(t, report.Forked)

	state, err := fakes[2].ledger.CheckAccount(alice.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(70), state.Balance.Uint64())

	coll, err = coord.Audit(ctx, alice.KeyHash())
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(ctx))
	assert.False(t, coll.Disagreement())
}

func TestReconcileReportsFork(t *testing.T) {
	fakes := newFakes(t, 3)
	coord := newTestCoordinator(t, fakes, Config{})
	alice, bob, carol := newWallet(t), newWallet(t), newWallet(t)
	for _, w := range []*client.Wallet{alice, bob, carol} {
		registerAll(t, coord, w)
	}
	ctx := context.Background()

	// replica c alone sees a different first send
	_, err := fakes[2].ledger.SendAmount(alice.Send(carol.KeyHash(), uint256.NewInt(10), types.NoPreviousTransaction))
	require.NoError(t, err)
	fakes[2].offline.Store(true)
	coll, err := coord.Send(ctx, alice.Send(bob.KeyHash(), uint256.NewInt(30), types.NoPreviousTransaction))
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(ctx))
	fakes[2].offline.Store(false)

	report, err := NewSession(coord, alice).Reconcile(ctx, alice.KeyHash())
	require.NoError(t, err)
	require.Contains(t, report.Forked, "c")
	assert.ErrorIs(t, report.Forked["c"], errors.ErrWritebackMismatchedTransaction)
	assert.ElementsMatch(t, []string{"a", "b"}, report.UpToDate)
}

func TestWritebackBatchesSplitAtReceives(t *testing.T) {
	link := func(seq uint64, receiving bool) *types.Transaction {
		return &types.Transaction{Sequence: seq, Receiving: receiving}
	}
	tests := []struct {
		name  string
		links []*types.Transaction
		sizes []int
	}{
		{"sends only", []*types.Transaction{link(0, false), link(1, false)}, []int{2}},
		{"receive in the middle", []*types.Transaction{link(0, false), link(1, false), link(2, true), link(3, false), link(4, true)}, []int{2, 2, 1}},
		{"leading receive", []*types.Transaction{link(0, true), link(1, false)}, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sizes []int
			for _, b := range writebackBatches(tt.links) {
				sizes = append(sizes, len(b))
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}

	long := make([]*types.Transaction, MaxWritebackBatch+1)
	for i := range long {
		long[i] = link(uint64(i), false)
	}
	batches := writebackBatches(long)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxWritebackBatch)
}

func TestReconcileWritesSenderFirst(t *testing.T) {
	fakes := newFakes(t, 3)
	coord := newTestCoordinator(t, fakes, Config{})
	alice, bob := newWallet(t), newWallet(t)
	registerAll(t, coord, alice)
	registerAll(t, coord, bob)
	ctx := context.Background()

	// replica c misses both halves of the transfer
	fakes[2].offline.Store(true)
	coll, err := coord.Send(ctx, alice.Send(bob.KeyHash(), uint256.NewInt(30), types.NoPreviousTransaction))
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(ctx))
	send, err := Result[*types.Transaction](coll)
	require.NoError(t, err)

	req, err := bob.Receive(send.ID, send.Signature, types.NoPreviousTransaction)
	require.NoError(t, err)
	coll, err = coord.Receive(ctx, req)
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(ctx))
	fakes[2].offline.Store(false)

	report, err := NewSession(coord, bob).Reconcile(ctx, bob.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c": 1}, report.Appended)
	assert.Empty(t, report.Failed)

	lagging := fakes[2].ledger
	chainA, err := lagging.Audit(alice.KeyHash())
	require.NoError(t, err)
	require.Len(t, chainA, 1)
	assert.False(t, chainA[0].Pending)

	stateA, err := lagging.CheckAccount(alice.KeyHash())
	require.NoError(t, err)
	stateB, err := lagging.CheckAccount(bob.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(70), stateA.Balance.Uint64())
	assert.Equal(t, uint64(130), stateB.Balance.Uint64())
}
