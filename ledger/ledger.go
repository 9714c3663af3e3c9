package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/monitoring"
	"github.com/mezonai/quorumcoin/store"
	"github.com/mezonai/quorumcoin/types"
)

const (
	DefaultGenesisGrant       = 100
	DefaultFreshnessTolerance = 30 * time.Second
	DefaultMaxJoinLinks       = 512
)

const (
	OpRegister = "register"
	OpSend     = "send"
	OpReceive  = "receive"
	OpCheck    = "check"
	OpAudit    = "audit"
	OpJoin     = "join"
)

type Config struct {
	GenesisGrant       *uint256.Int
	FreshnessTolerance time.Duration
	// MaxJoinLinks bounds one joinLedger batch, which is verified under the write lock
	MaxJoinLinks int
}

func DefaultConfig() Config {
	return Config{
		GenesisGrant:       uint256.NewInt(DefaultGenesisGrant),
		FreshnessTolerance: DefaultFreshnessTolerance,
		MaxJoinLinks:       DefaultMaxJoinLinks,
	}
}

// Ledger is the replica state machine. Every mutation runs its precondition checks, chain
// append, balance update and persist under mu, so concurrent requests cannot double spend or
// double receive. Reads hold the shared side of mu.
type Ledger struct {
	mu    sync.RWMutex
	store store.LedgerStore
	cfg   Config
	now   func() time.Time
}

func NewLedger(ledgerStore store.LedgerStore, cfg Config) *Ledger {
	if cfg.GenesisGrant == nil {
		cfg.GenesisGrant = uint256.NewInt(DefaultGenesisGrant)
	}
	if cfg.FreshnessTolerance <= 0 {
		cfg.FreshnessTolerance = DefaultFreshnessTolerance
	}
	if cfg.MaxJoinLinks <= 0 {
		cfg.MaxJoinLinks = DefaultMaxJoinLinks
	}
	return &Ledger{
		store: ledgerStore,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock replaces the time source used for freshness checks
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Register creates an account holding the genesis grant for a new public key
func (l *Ledger) Register(req *types.RegisterRequest) (acc *types.Account, err error) {
	defer l.observe(OpRegister, time.Now(), &err)

	if req == nil || req.PublicKey == "" || req.Timestamp == "" || req.Signature == "" {
		return nil, errors.ErrNullArgument
	}
	pub, der, err := crypto.DecodePublicKey(req.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidSignature, "public key: %v", err)
	}
	keyHash := crypto.KeyHash(der)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fresh(req.Timestamp) {
		return nil, errors.ErrTimestampNotFresh
	}
	if !crypto.Verify(pub, crypto.RegisterPayload(req.Timestamp), req.Signature) {
		return nil, errors.ErrInvalidSignature
	}
	existed, err := l.store.AccountExists(keyHash)
	if err != nil {
		return nil, internal("check account existence", err)
	}
	if existed {
		return nil, errors.Wrapf(errors.ErrCodeKeyAlreadyRegistered, "%s", keyHash)
	}

	acc = &types.Account{
		KeyHash:   keyHash,
		PublicKey: req.PublicKey,
		Balance:   new(uint256.Int).Set(l.cfg.GenesisGrant),
	}
	if err := l.store.Commit(new(store.Update).AddAccount(acc)); err != nil {
		return nil, internal("store account", err)
	}
	logx.Info("LEDGER", fmt.Sprintf("Registered account %s with balance %s", keyHash, acc.Balance.Dec()))
	return acc.Clone(), nil
}

// CheckAccount returns the balance and the send-links still waiting to be received by keyHash
func (l *Ledger) CheckAccount(keyHash string) (state *types.AccountState, err error) {
	defer l.observe(OpCheck, time.Now(), &err)

	if keyHash == "" {
		return nil, errors.ErrNullArgument
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, err := l.account(keyHash)
	if err != nil {
		return nil, err
	}
	pending, err := l.store.GetPendingIncoming(keyHash)
	if err != nil {
		return nil, internal("load pending incoming", err)
	}
	types.SortBySequence(pending)
	return &types.AccountState{
		KeyHash:         keyHash,
		Balance:         acc.Balance,
		PendingIncoming: pending,
	}, nil
}

// Audit returns every link of keyHash's chain in sequence order
func (l *Ledger) Audit(keyHash string) (chain []*types.Transaction, err error) {
	defer l.observe(OpAudit, time.Now(), &err)

	if keyHash == "" {
		return nil, errors.ErrNullArgument
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.account(keyHash); err != nil {
		return nil, err
	}
	chain, err = l.store.GetChain(keyHash)
	if err != nil {
		return nil, internal("load chain", err)
	}
	types.SortBySequence(chain)
	return chain, nil
}

func (l *Ledger) fresh(ts string) bool {
	return crypto.IsFresh(ts, l.now(), l.cfg.FreshnessTolerance)
}

// account loads keyHash or fails with AccountNotFound
func (l *Ledger) account(keyHash string) (*types.Account, error) {
	acc, err := l.store.GetAccount(keyHash)
	if err != nil {
		return nil, internal("load account", err)
	}
	if acc == nil {
		return nil, errors.Wrapf(errors.ErrCodeAccountNotFound, "%s", keyHash)
	}
	return acc, nil
}

// tip returns the owner's current tip and the previous-transaction value its next link must carry
func (l *Ledger) tip(owner string) (*types.Transaction, string, error) {
	tip, err := l.store.GetChainTip(owner)
	if err != nil {
		return nil, "", internal("load chain tip", err)
	}
	if tip == nil {
		return nil, types.NoPreviousTransaction, nil
	}
	return tip, tip.TransactionHash, nil
}

func (l *Ledger) observe(op string, start time.Time, err *error) {
	if *err == nil {
		monitoring.RecordLedgerOp(op, monitoring.OpSucceeded, time.Since(start))
		return
	}
	code := errors.CodeOf(*err)
	monitoring.RecordLedgerOp(op, monitoring.OpRejected, time.Since(start))
	monitoring.RecordRejectedOp(op, string(code))
	if code == errors.ErrCodeInternal {
		logx.Error("LEDGER", fmt.Sprintf("%s failed: %v", op, *err))
		return
	}
	logx.Warn("LEDGER", fmt.Sprintf("%s rejected (%s): %v", op, code, *err))
}

func internal(what string, err error) error {
	return fmt.Errorf("%s: %w", what, err)
}

func nextSequence(tip *types.Transaction) uint64 {
	if tip == nil {
		return 0
	}
	return tip.Sequence + 1
}

// demoted returns a copy of tip with last cleared, or nil when there is no tip
func demoted(tip *types.Transaction) *types.Transaction {
	if tip == nil {
		return nil
	}
	d := tip.Clone()
	d.Last = false
	return d
}
