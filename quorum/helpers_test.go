package quorum

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
	"github.com/stretchr/testify/require"
)

// fakeReplica serves a real ledger in-process and can be slowed down, taken offline or made
// to lie about check results
type fakeReplica struct {
	id      string
	ledger  *ledger.Ledger
	delay   time.Duration
	offline atomic.Bool
	panics  bool
	lie     func(*types.AccountState)
}

func newFakeReplica(t *testing.T, id string) *fakeReplica {
	t.Helper()
	s, err := store.CreateLedgerStore(&store.StoreConfig{Type: store.MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(s.MustClose)
	return &fakeReplica{id: id, ledger: ledger.NewLedger(s, ledger.DefaultConfig())}
}

func (f *fakeReplica) ID() string { return f.id }

func (f *fakeReplica) Close() error { return nil }

func (f *fakeReplica) enter(ctx context.Context) error {
	if f.panics {
		panic("replica exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return errors.Wrapf(errors.ErrCodeReplicaUnavailable, "%s: %v", f.id, ctx.Err())
		}
	}
	if f.offline.Load() {
		return errors.Wrapf(errors.ErrCodeReplicaUnavailable, "%s is offline", f.id)
	}
	return nil
}

func (f *fakeReplica) Register(ctx context.Context, req *types.RegisterRequest) (*types.Account, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.ledger.Register(req)
}

func (f *fakeReplica) Send(ctx context.Context, req *types.SendRequest) (*types.Transaction, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.ledger.SendAmount(req)
}

func (f *fakeReplica) Receive(ctx context.Context, req *types.ReceiveRequest) (*types.Transaction, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.ledger.ReceiveAmount(req)
}

func (f *fakeReplica) Check(ctx context.Context, keyHash string) (*types.AccountState, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	state, err := f.ledger.CheckAccount(keyHash)
	if err == nil && f.lie != nil {
		f.lie(state)
	}
	return state, err
}

func (f *fakeReplica) Audit(ctx context.Context, keyHash string) ([]*types.Transaction, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.ledger.Audit(keyHash)
}

func (f *fakeReplica) Join(ctx context.Context, req *types.JoinRequest) (*types.JoinResult, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.ledger.JoinLedger(req)
}

func (f *fakeReplica) Health(ctx context.Context) (*types.HealthStatus, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return &types.HealthStatus{ReplicaID: f.id, Status: "SERVING"}, nil
}

func newFakes(t *testing.T, n int) []*fakeReplica {
	t.Helper()
	fakes := make([]*fakeReplica, n)
	for i := range fakes {
		fakes[i] = newFakeReplica(t, string(rune('a'+i)))
	}
	return fakes
}

func asReplicas(fakes []*fakeReplica) []client.Replica {
	out := make([]client.Replica, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func newTestCoordinator(t *testing.T, fakes []*fakeReplica, cfg Config) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(asReplicas(fakes), cfg)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord
}

func newWallet(t *testing.T) *client.Wallet {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return client.NewWallet(kp)
}

// registerAll registers wallet and waits for every replica to answer
func registerAll(t *testing.T, coord *Coordinator, wallet *client.Wallet) {
	t.Helper()
	coll, err := coord.Register(context.Background(), wallet.Register())
	require.NoError(t, err)
	require.NoError(t, coll.WaitAll(context.Background()))
	require.Empty(t, coll.Errors())
}
