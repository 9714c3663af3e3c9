package quorum

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/types"
)

// Session is a wallet bound to a coordinator. Every call returns the payload a threshold of
// replicas agreed on.
type Session struct {
	coord      *Coordinator
	wallet     *client.Wallet
	reconciler *Reconciler
}

func NewSession(coord *Coordinator, wallet *client.Wallet) *Session {
	return &Session{
		coord:      coord,
		wallet:     wallet,
		reconciler: NewReconciler(coord.Replicas()),
	}
}

func (s *Session) KeyHash() string {
	return s.wallet.KeyHash()
}

func (s *Session) Register(ctx context.Context) (*types.Account, error) {
	coll, err := s.coord.Register(ctx, s.wallet.Register())
	return agreed[*types.Account](coll, err)
}

// Tip returns the hash of the wallet's chain tip as a threshold of replicas report it
func (s *Session) Tip(ctx context.Context) (string, error) {
	chain, _, err := s.Audit(ctx, s.wallet.KeyHash())
	if err != nil {
		return "", err
	}
	return types.ChainTipHash(chain), nil
}

// Send transfers amount to dest, chaining onto the agreed tip
func (s *Session) Send(ctx context.Context, dest string, amount *uint256.Int) (*types.Transaction, error) {
	prev, err := s.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve chain tip: %w", err)
	}
	coll, err := s.coord.Send(ctx, s.wallet.Send(dest, amount, prev))
	return agreed[*types.Transaction](coll, err)
}

// Receive claims the send-link identified by transactionID and its signature
func (s *Session) Receive(ctx context.Context, transactionID, transactionSig string) (*types.Transaction, error) {
	prev, err := s.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve chain tip: %w", err)
	}
	req, err := s.wallet.Receive(transactionID, transactionSig, prev)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidSignature, "%v", err)
	}
	coll, err := s.coord.Receive(ctx, req)
	return agreed[*types.Transaction](coll, err)
}

// Check returns the agreed account state together with the full collection, so callers can
// inspect disagreeing replicas
func (s *Session) Check(ctx context.Context, keyHash string) (*types.AccountState, *Collection, error) {
	coll, err := s.coord.Check(ctx, keyHash)
	state, err := agreed[*types.AccountState](coll, err)
	return state, coll, err
}

func (s *Session) Audit(ctx context.Context, keyHash string) ([]*types.Transaction, *Collection, error) {
	coll, err := s.coord.Audit(ctx, keyHash)
	chain, err := agreed[[]*types.Transaction](coll, err)
	return chain, coll, err
}

const (
	maxWritebackRounds   = 4
	maxWritebackAccounts = 32
)

// Reconcile audits keyHash on every replica, takes the largest agreeing group as authoritative
// and writes its chain back to every replica that lags behind it. A replica only accepts a
// receive-link once it holds the matching send-link, so the chains of the accounts that paid
// keyHash are written back first, and the round repeats while links are still waiting on a send.
func (s *Session) Reconcile(ctx context.Context, keyHash string) (*Report, error) {
	order := s.writebackOrder(ctx, keyHash)
	appended := make(map[string]int)

	var report *Report
	for round := 0; round < maxWritebackRounds; round++ {
		progress, blocked := false, false
		for _, acct := range order {
			r, err := s.reconcileAccount(ctx, acct)
			if err != nil {
				if acct == keyHash {
					return nil, err
				}
				logx.Warn("WRITEBACK", fmt.Sprintf("Reconciling sender %s of %s: %v", acct, keyHash, err))
				continue
			}
			progress = progress || len(r.Appended) > 0
			blocked = blocked || awaitingSend(r)
			if acct == keyHash {
				report = r
				for id, n := range r.Appended {
					appended[id] += n
				}
			}
		}
		if !progress || !blocked {
			break
		}
	}

	report.Appended = appended
	upToDate := report.UpToDate[:0]
	for _, id := range report.UpToDate {
		if _, ok := appended[id]; !ok {
			upToDate = append(upToDate, id)
		}
	}
	report.UpToDate = upToDate
	logx.Info("WRITEBACK", fmt.Sprintf("Reconciled %s: appended=%v up_to_date=%v forked=%d failed=%d",
		keyHash, report.Appended, report.UpToDate, len(report.Forked), len(report.Failed)))
	return report, nil
}

// writebackOrder lists keyHash after every account whose send-links its agreed chain receives,
// transitively, senders first
func (s *Session) writebackOrder(ctx context.Context, keyHash string) []string {
	var order []string
	seen := make(map[string]bool)
	var visit func(acct string)
	visit = func(acct string) {
		if seen[acct] || len(seen) >= maxWritebackAccounts || ctx.Err() != nil {
			return
		}
		seen[acct] = true
		if chain, _, err := s.Audit(ctx, acct); err == nil {
			for _, link := range chain {
				if link.Receiving && link.From != acct {
					visit(link.From)
				}
			}
		}
		order = append(order, acct)
	}
	visit(keyHash)
	if len(order) == 0 || order[len(order)-1] != keyHash {
		order = append(order, keyHash)
	}
	return order
}

func awaitingSend(r *Report) bool {
	for _, err := range r.Failed {
		if errors.CodeOf(err) == errors.ErrCodeTransactionNotFound {
			return true
		}
	}
	return false
}

func (s *Session) reconcileAccount(ctx context.Context, keyHash string) (*Report, error) {
	coll, err := s.coord.Audit(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	// give slower replicas the rest of ctx to report before deciding who lags
	waitCtx, cancel := context.WithTimeout(ctx, s.coord.cfg.WaitTimeout)
	_ = coll.WaitAll(waitCtx)
	cancel()

	group, ok := coll.Agreed()
	if !ok {
		return nil, errors.Wrapf(errors.ErrCodeQuorumNotReached, "audit %s: no authoritative chain", keyHash)
	}
	authoritative, ok := group.Payload.([]*types.Transaction)
	if !ok {
		return nil, fmt.Errorf("audit %s: payload is %T", keyHash, group.Payload)
	}

	reports := make(map[string][]*types.Transaction)
	for _, r := range coll.Successful() {
		if chain, ok := r.Payload.([]*types.Transaction); ok {
			reports[r.Replica] = chain
		}
	}
	report, err := s.reconciler.ReconcileAll(ctx, keyHash, authoritative, reports)
	if err != nil {
		return report, err
	}
	for id, rerr := range coll.Errors() {
		if _, ok := report.Failed[id]; !ok {
			report.Failed[id] = rerr
		}
	}
	return report, nil
}

func agreed[T any](coll *Collection, waitErr error) (T, error) {
	if waitErr != nil {
		var zero T
		if err := coll.commonError(); err != nil {
			return zero, err
		}
		return zero, waitErr
	}
	return Result[T](coll)
}
