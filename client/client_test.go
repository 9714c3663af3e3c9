package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/jsonrpc"
	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/service"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startReplica serves a fresh in-memory ledger and returns its URL and key
func startReplica(t *testing.T, id string) (string, *crypto.KeyPair) {
	t.Helper()
	s, err := store.CreateLedgerStore(&store.StoreConfig{Type: store.MemoryStoreType})
	require.NoError(t, err)
	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ld := ledger.NewLedger(s, ledger.DefaultConfig())
	sealer := service.NewSealer(id, key)
	srv := jsonrpc.NewServer("", service.NewLedgerService(ld, sealer), service.NewHealthService(ld, sealer, id))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.MustClose()
	})
	return ts.URL, key
}

func newClient(t *testing.T, cfg Config) *ReplicaClient {
	t.Helper()
	c, err := NewReplicaClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	url, key := startReplica(t, "r1")
	c := newClient(t, Config{ID: "r1", Endpoint: url, PublicKey: key.Encoded, Timeout: 5 * time.Second})
	ctx := context.Background()

	alice, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	wa, wb := NewWallet(alice), NewWallet(bob)

	acc, err := c.Register(ctx, wa.Register())
	require.NoError(t, err)
	assert.Equal(t, alice.Hash, acc.KeyHash)
	_, err = c.Register(ctx, wb.Register())
	require.NoError(t, err)

	send, err := c.Send(ctx, wa.Send(bob.Hash, uint256.NewInt(40), types.NoPreviousTransaction))
	require.NoError(t, err)
	assert.True(t, send.Pending)

	req, err := wb.Receive(send.ID, send.Signature, types.NoPreviousTransaction)
	require.NoError(t, err)
	settled, err := c.Receive(ctx, req)
	require.NoError(t, err)
	assert.False(t, settled.Pending)

	state, err := c.Check(ctx, bob.Hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(140), state.Balance.Uint64())

	chain, err := c.Audit(ctx, alice.Hash)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, send.TransactionHash, chain[0].TransactionHash)

	res, err := c.Join(ctx, &types.JoinRequest{KeyHash: alice.Hash, Links: chain})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	status, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", status.ReplicaID)
}

func TestLedgerErrorsDecoded(t *testing.T) {
	url, key := startReplica(t, "r1")
	c := newClient(t, Config{ID: "r1", Endpoint: url, PublicKey: key.Encoded})

	_, err := c.Check(context.Background(), "nobody")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	assert.Equal(t, errors.ErrCodeAccountNotFound, errors.CodeOf(err))
}

func TestWrongReplicaKey(t *testing.T) {
	url, _ := startReplica(t, "r1")
	impostor, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newClient(t, Config{ID: "r1", Endpoint: url, PublicKey: impostor.Encoded})

	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidResponseSignature)
}

func TestWrongReplicaID(t *testing.T) {
	url, key := startReplica(t, "r1")
	c := newClient(t, Config{ID: "r2", Endpoint: url, PublicKey: key.Encoded})

	_, err := c.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidResponseSignature)
}

func TestStaleEnvelope(t *testing.T) {
	url, key := startReplica(t, "r1")
	c := newClient(t, Config{ID: "r1", Endpoint: url, PublicKey: key.Encoded})
	c.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := c.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidResponseSignature)
}

func TestUnreachableReplica(t *testing.T) {
	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newClient(t, Config{ID: "r9", Endpoint: "http://127.0.0.1:1", PublicKey: key.Encoded, Timeout: time.Second})

	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrReplicaUnavailable)
}

func TestNewReplicaClientValidates(t *testing.T) {
	_, err := NewReplicaClient(Config{ID: "r1", PublicKey: "x"})
	assert.Error(t, err)
	_, err = NewReplicaClient(Config{ID: "r1", Endpoint: "http://localhost", PublicKey: "not-a-key"})
	assert.Error(t, err)
}
