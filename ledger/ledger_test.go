package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.CreateLedgerStore(&store.StoreConfig{Type: store.MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(s.MustClose)

	l := NewLedger(s, DefaultConfig())
	l.SetClock(func() time.Time { return testNow })
	return l
}

// ts returns a fresh timestamp; offset keeps signatures of otherwise identical requests apart
func ts(offset int) string {
	return crypto.FormatTimestamp(testNow.Add(time.Duration(offset) * time.Second))
}

func newKey(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func register(t *testing.T, l *Ledger, kp *crypto.KeyPair) *types.Account {
	t.Helper()
	stamp := ts(0)
	acc, err := l.Register(&types.RegisterRequest{
		PublicKey: kp.Encoded,
		Timestamp: stamp,
		Signature: kp.Sign(crypto.RegisterPayload(stamp)),
	})
	require.NoError(t, err)
	return acc
}

func sendReq(kp *crypto.KeyPair, dest string, amount uint64, prev string, offset int) *types.SendRequest {
	amt := uint256.NewInt(amount)
	stamp := ts(offset)
	return &types.SendRequest{
		SourceHash:          kp.Hash,
		DestHash:            dest,
		Amount:              amt,
		PreviousTransaction: prev,
		Timestamp:           stamp,
		Signature:           kp.Sign(crypto.SendPayload(kp.Hash, dest, amt, prev, stamp)),
	}
}

func receiveReq(t *testing.T, kp *crypto.KeyPair, send *types.Transaction, prev string, offset int) *types.ReceiveRequest {
	t.Helper()
	raw, err := crypto.DecodeSignature(send.Signature)
	require.NoError(t, err)
	stamp := ts(offset)
	return &types.ReceiveRequest{
		TransactionID:       send.ID,
		TransactionSig:      send.Signature,
		PreviousTransaction: prev,
		Timestamp:           stamp,
		Signature:           kp.Sign(crypto.ReceivePayload(send.ID, raw, prev, stamp)),
	}
}

func balance(t *testing.T, l *Ledger, keyHash string) uint64 {
	t.Helper()
	state, err := l.CheckAccount(keyHash)
	require.NoError(t, err)
	return state.Balance.Uint64()
}

func TestRegister(t *testing.T) {
	l := newTestLedger(t)
	kp := newKey(t)

	acc := register(t, l, kp)
	assert.Equal(t, kp.Hash, acc.KeyHash)
	assert.Equal(t, uint64(DefaultGenesisGrant), acc.Balance.Uint64())

	stamp := ts(1)
	_, err := l.Register(&types.RegisterRequest{PublicKey: kp.Encoded, Timestamp: stamp, Signature: kp.Sign(crypto.RegisterPayload(stamp))})
	assert.ErrorIs(t, err, errors.ErrKeyAlreadyRegistered)
}

func TestRegisterRejections(t *testing.T) {
	l := newTestLedger(t)
	kp := newKey(t)
	other := newKey(t)
	stale := crypto.FormatTimestamp(testNow.Add(-time.Hour))

	tests := []struct {
		name string
		req  *types.RegisterRequest
		want error
	}{
		{"nil request", nil, errors.ErrNullArgument},
		{"missing key", &types.RegisterRequest{Timestamp: ts(0), Signature: "x"}, errors.ErrNullArgument},
		{"missing signature", &types.RegisterRequest{PublicKey: kp.Encoded, Timestamp: ts(0)}, errors.ErrNullArgument},
		{"stale timestamp", &types.RegisterRequest{PublicKey: kp.Encoded, Timestamp: stale, Signature: kp.Sign(crypto.RegisterPayload(stale))}, errors.ErrTimestampNotFresh},
		{"foreign signature", &types.RegisterRequest{PublicKey: kp.Encoded, Timestamp: ts(0), Signature: other.Sign(crypto.RegisterPayload(ts(0)))}, errors.ErrInvalidSignature},
		{"garbage key", &types.RegisterRequest{PublicKey: "0OIl", Timestamp: ts(0), Signature: "x"}, errors.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Register(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := l.CheckAccount(kp.Hash)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestSendReceiveScenario(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)

	send, err := l.SendAmount(sendReq(a, b.Hash, 30, types.NoPreviousTransaction, 0))
	require.NoError(t, err)
	assert.True(t, send.Pending)
	assert.True(t, send.Last)
	assert.Equal(t, types.TransactionID(0, a.Hash), send.ID)
	assert.Equal(t, uint64(70), balance(t, l, a.Hash))

	state, err := l.CheckAccount(b.Hash)
	require.NoError(t, err)
	require.Len(t, state.PendingIncoming, 1)
	assert.Equal(t, send.ID, state.PendingIncoming[0].ID)

	settled, err := l.ReceiveAmount(receiveReq(t, b, send, types.NoPreviousTransaction, 0))
	require.NoError(t, err)
	assert.False(t, settled.Pending)
	assert.Equal(t, uint64(130), balance(t, l, b.Hash))

	state, err = l.CheckAccount(b.Hash)
	require.NoError(t, err)
	assert.Empty(t, state.PendingIncoming)

	auditA, err := l.Audit(a.Hash)
	require.NoError(t, err)
	require.Len(t, auditA, 1)
	assert.Equal(t, uint64(30), auditA[0].Amount.Uint64())
	assert.Equal(t, b.Hash, auditA[0].To)
	assert.False(t, auditA[0].Pending)

	auditB, err := l.Audit(b.Hash)
	require.NoError(t, err)
	require.Len(t, auditB, 1)
	assert.Equal(t, uint64(30), auditB[0].Amount.Uint64())
	assert.True(t, auditB[0].Receiving)
	assert.Equal(t, send.Signature, auditB[0].SenderSignature)
	assert.Equal(t, send.ID, auditB[0].ReceivedTransactionID)
}

func TestSendRejections(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)
	stranger := newKey(t)

	stale := sendReq(a, b.Hash, 5, "", 0)
	stale.Timestamp = crypto.FormatTimestamp(testNow.Add(-time.Hour))
	stale.Signature = a.Sign(crypto.SendPayload(a.Hash, b.Hash, stale.Amount, "", stale.Timestamp))

	forged := sendReq(a, b.Hash, 5, "", 0)
	forged.Signature = b.Sign(crypto.SendPayload(a.Hash, b.Hash, forged.Amount, "", forged.Timestamp))

	tests := []struct {
		name string
		req  *types.SendRequest
		want error
	}{
		{"nil amount", &types.SendRequest{SourceHash: a.Hash, DestHash: b.Hash, Timestamp: ts(0), Signature: "x"}, errors.ErrNullArgument},
		{"same account", sendReq(a, a.Hash, 5, "", 0), errors.ErrSameSourceAndDestAccount},
		{"zero amount", sendReq(a, b.Hash, 0, "", 0), errors.ErrInvalidAmount},
		{"unknown dest", sendReq(a, stranger.Hash, 5, "", 0), errors.ErrAccountNotFound},
		{"unknown source", sendReq(stranger, a.Hash, 5, "", 0), errors.ErrAccountNotFound},
		{"stale", stale, errors.ErrTimestampNotFresh},
		{"forged", forged, errors.ErrInvalidSignature},
		{"overdraw", sendReq(a, b.Hash, 101, "", 0), errors.ErrAccountInsufficientAmount},
		{"wrong previous", sendReq(a, b.Hash, 5, "bogus", 0), errors.ErrWrongPreviousTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SendAmount(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, uint64(100), balance(t, l, a.Hash))
	assert.Equal(t, uint64(100), balance(t, l, b.Hash))
	chain, err := l.Audit(a.Hash)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestWrongPreviousLeavesBalances(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)

	first, err := l.SendAmount(sendReq(a, b.Hash, 10, "", 0))
	require.NoError(t, err)

	// still pointing at the empty chain
	_, err = l.SendAmount(sendReq(a, b.Hash, 10, "", 1))
	assert.ErrorIs(t, err, errors.ErrWrongPreviousTransaction)
	assert.Equal(t, uint64(90), balance(t, l, a.Hash))

	_, err = l.SendAmount(sendReq(a, b.Hash, 10, first.TransactionHash, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(80), balance(t, l, a.Hash))
}

func TestReplayRejected(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)

	req := sendReq(a, b.Hash, 10, "", 0)
	_, err := l.SendAmount(req)
	require.NoError(t, err)

	_, err = l.SendAmount(req)
	assert.ErrorIs(t, err, errors.ErrRepeatedTransaction)
	assert.Equal(t, uint64(90), balance(t, l, a.Hash))
}

func TestNoDoubleReceive(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)

	send, err := l.SendAmount(sendReq(a, b.Hash, 25, "", 0))
	require.NoError(t, err)

	req := receiveReq(t, b, send, "", 0)
	_, err = l.ReceiveAmount(req)
	require.NoError(t, err)

	_, err = l.ReceiveAmount(req)
	assert.ErrorIs(t, err, errors.ErrTransactionAlreadyReceived)

	chain, err := l.Audit(b.Hash)
	require.NoError(t, err)
	_, err = l.ReceiveAmount(receiveReq(t, b, send, chain[0].TransactionHash, 1))
	assert.ErrorIs(t, err, errors.ErrTransactionAlreadyReceived)
	assert.Equal(t, uint64(125), balance(t, l, b.Hash))
}

func TestReceiveRejections(t *testing.T) {
	l := newTestLedger(t)
	a, b, c := newKey(t), newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)
	register(t, l, c)

	send, err := l.SendAmount(sendReq(a, b.Hash, 25, "", 0))
	require.NoError(t, err)

	wrongCap := receiveReq(t, b, send, "", 0)
	wrongCap.TransactionSig = a.Sign([]byte("something else"))

	missing := receiveReq(t, b, send, "", 0)
	missing.TransactionID = types.TransactionID(9, a.Hash)

	tests := []struct {
		name string
		req  *types.ReceiveRequest
		want error
	}{
		{"missing id", &types.ReceiveRequest{TransactionSig: "x", Timestamp: ts(0), Signature: "y"}, errors.ErrNullArgument},
		{"unknown transaction", missing, errors.ErrTransactionNotFound},
		{"wrong capability", wrongCap, errors.ErrInvalidSignature},
		{"signed by third party", receiveReq(t, c, send, "", 0), errors.ErrInvalidSignature},
		{"wrong previous", receiveReq(t, b, send, "bogus", 0), errors.ErrWrongPreviousTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ReceiveAmount(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, uint64(100), balance(t, l, b.Hash))
}

func TestConcurrentDoubleSpend(t *testing.T) {
	l := newTestLedger(t)
	a, b, c := newKey(t), newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)
	register(t, l, c)

	reqs := []*types.SendRequest{
		sendReq(a, b.Hash, 60, "", 0),
		sendReq(a, c.Hash, 60, "", 0),
	}
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *types.SendRequest) {
			defer wg.Done()
			_, errs[i] = l.SendAmount(req)
		}(i, req)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.CodeOf(err) == errors.ErrCodeAccountInsufficientAmount:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, uint64(40), balance(t, l, a.Hash))
}

func TestChainIntegrityAndConservation(t *testing.T) {
	l := newTestLedger(t)
	a, b := newKey(t), newKey(t)
	register(t, l, a)
	register(t, l, b)

	const n = 7
	prevA, prevB := "", ""
	for i := 0; i < n; i++ {
		send, err := l.SendAmount(sendReq(a, b.Hash, uint64(i+1), prevA, i))
		require.NoError(t, err)
		prevA = send.TransactionHash

		_, err = l.ReceiveAmount(receiveReq(t, b, send, prevB, i))
		require.NoError(t, err)
		chainB, err := l.Audit(b.Hash)
		require.NoError(t, err)
		prevB = types.ChainTipHash(chainB)
	}

	assert.Equal(t, uint64(200), balance(t, l, a.Hash)+balance(t, l, b.Hash))

	chain, err := l.Audit(a.Hash)
	require.NoError(t, err)
	require.Len(t, chain, n)

	byHash := make(map[string]*types.Transaction, n)
	var tips []*types.Transaction
	for _, link := range chain {
		byHash[link.TransactionHash] = link
		assert.Equal(t, link.ComputeHash(), link.TransactionHash)
		if link.Last {
			tips = append(tips, link)
		}
	}
	require.Len(t, tips, 1)

	// walk backwards from the tip
	visited := 0
	expected := uint64(n - 1)
	for cur := tips[0]; cur != nil; cur = byHash[cur.PreviousTransactionHash] {
		assert.Equal(t, expected, cur.Sequence)
		visited++
		if cur.PreviousTransactionHash == types.NoPreviousTransaction {
			break
		}
		expected--
	}
	assert.Equal(t, n, visited)
}

func TestReadsRequireKey(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.CheckAccount("")
	assert.ErrorIs(t, err, errors.ErrNullArgument)
	_, err = l.Audit("")
	assert.ErrorIs(t, err, errors.ErrNullArgument)
	_, err = l.Audit("nobody")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}
