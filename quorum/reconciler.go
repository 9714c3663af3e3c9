package quorum

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/monitoring"
	"github.com/mezonai/quorumcoin/types"
	"golang.org/x/sync/errgroup"
)

// MissingSuffix returns the links of authoritative that reported lacks. reported must agree
// with authoritative on every position both hold; otherwise the chains forked and the result is
// a WritebackMismatchedTransaction error naming the first conflicting pair.
func MissingSuffix(authoritative, reported []*types.Transaction) ([]*types.Transaction, error) {
	auth := sortedCopy(authoritative)
	rep := sortedCopy(reported)

	overlap := len(auth)
	if len(rep) < overlap {
		overlap = len(rep)
	}
	for i := 0; i < overlap; i++ {
		if !auth[i].SameContent(rep[i]) {
			return nil, errors.Wrapf(errors.ErrCodeWritebackMismatchedTransaction, "authoritative %s (%s) vs replica %s (%s)",
				auth[i].ID, auth[i].TransactionHash, rep[i].ID, rep[i].TransactionHash)
		}
	}
	if len(rep) >= len(auth) {
		return nil, nil
	}
	return auth[len(rep):], nil
}

func sortedCopy(chain []*types.Transaction) []*types.Transaction {
	out := make([]*types.Transaction, len(chain))
	copy(out, chain)
	types.SortBySequence(out)
	return out
}

// Report summarizes one reconciliation round over many replicas
type Report struct {
	KeyHash string
	// Appended counts the links each replica accepted
	Appended map[string]int
	// UpToDate lists replicas that already held the whole authoritative chain
	UpToDate []string
	// Forked maps replicas whose chain conflicts with the authoritative one
	Forked map[string]error
	// Failed maps replicas whose writeback was rejected or unreachable
	Failed map[string]error
}

func newReport(keyHash string) *Report {
	return &Report{
		KeyHash:  keyHash,
		Appended: make(map[string]int),
		Forked:   make(map[string]error),
		Failed:   make(map[string]error),
	}
}

// Reconciler pushes missing chain links to lagging replicas
type Reconciler struct {
	replicas map[string]client.Replica
}

func NewReconciler(replicas []client.Replica) *Reconciler {
	byID := make(map[string]client.Replica, len(replicas))
	for _, r := range replicas {
		byID[r.ID()] = r
	}
	return &Reconciler{replicas: byID}
}

// MaxWritebackBatch bounds the links sent in one joinLedger call
const MaxWritebackBatch = ledger.DefaultMaxJoinLinks

// Writeback sends the part of authoritative that replica lacks to its joinLedger. A fork is
// reported without contacting the replica. The suffix goes out in batches that each start at a
// receive-link, so sends before a receive whose send-link the replica lacks still land; on error
// the returned result counts the links accepted so far.
func (rc *Reconciler) Writeback(ctx context.Context, replica client.Replica, keyHash string, authoritative, reported []*types.Transaction) (*types.JoinResult, error) {
	missing, err := MissingSuffix(authoritative, reported)
	if err != nil {
		return nil, err
	}
	total := &types.JoinResult{KeyHash: keyHash}
	if len(missing) == 0 {
		total.Skipped = len(reported)
		return total, nil
	}
	for _, batch := range writebackBatches(missing) {
		res, err := replica.Join(ctx, &types.JoinRequest{KeyHash: keyHash, Links: batch})
		if err != nil {
			return total, err
		}
		total.Appended += res.Appended
		total.Skipped += res.Skipped
		monitoring.AddWritebackLinks(replica.ID(), res.Appended)
	}
	logx.Info("WRITEBACK", fmt.Sprintf("Replica %s accepted %d links of %s", replica.ID(), total.Appended, keyHash))
	return total, nil
}

func writebackBatches(missing []*types.Transaction) [][]*types.Transaction {
	var batches [][]*types.Transaction
	start := 0
	for i, link := range missing {
		if i > start && (link.Receiving || i-start == MaxWritebackBatch) {
			batches = append(batches, missing[start:i])
			start = i
		}
	}
	return append(batches, missing[start:])
}

// ReconcileAll writes authoritative back to every replica in reports concurrently. Per-replica
// failures are collected in the report; the error is only set when ctx ends first.
func (rc *Reconciler) ReconcileAll(ctx context.Context, keyHash string, authoritative []*types.Transaction, reports map[string][]*types.Transaction) (*Report, error) {
	report := newReport(keyHash)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for id, reported := range reports {
		id, reported := id, reported
		replica, ok := rc.replicas[id]
		if !ok {
			report.Failed[id] = fmt.Errorf("unknown replica %q", id)
			continue
		}
		g.Go(func() error {
			res, err := rc.Writeback(gctx, replica, keyHash, authoritative, reported)

			mu.Lock()
			defer mu.Unlock()
			if res != nil && res.Appended > 0 {
				report.Appended[id] = res.Appended
			}
			switch {
			case err == nil && res.Appended == 0:
				report.UpToDate = append(report.UpToDate, id)
			case err == nil:
				// counted above
			case errors.CodeOf(err) == errors.ErrCodeWritebackMismatchedTransaction:
				logx.Warn("WRITEBACK", fmt.Sprintf("Replica %s forked on %s: %v", id, keyHash, err))
				report.Forked[id] = err
			default:
				logx.Warn("WRITEBACK", fmt.Sprintf("Replica %s writeback of %s failed: %v", id, keyHash, err))
				report.Failed[id] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.UpToDate)
	return report, ctx.Err()
}
