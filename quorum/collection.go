package quorum

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/monitoring"
)

// Reply is what one replica answered to one broadcast
type Reply struct {
	Replica string
	Payload interface{}
	Err     error
	Elapsed time.Duration
	// Late is set when the reply arrived after the caller stopped waiting
	Late bool
}

func (r Reply) OK() bool {
	return r.Err == nil
}

// Group is a set of replicas that returned identical payloads
type Group struct {
	Fingerprint string
	Payload     interface{}
	Replicas    []string
}

// Collection gathers the replies of one broadcast. It keeps accepting replies after the wait
// is over, so slow replicas can still be compared later.
type Collection struct {
	op        string
	threshold int
	total     int

	mu        sync.Mutex
	replies   []Reply
	successes int
	waitOver  bool

	notify chan struct{}
	done   chan struct{}
}

func newCollection(op string, threshold, total int) *Collection {
	c := &Collection{
		op:        op,
		threshold: threshold,
		total:     total,
		replies:   make([]Reply, 0, total),
		notify:    make(chan struct{}, total),
		done:      make(chan struct{}),
	}
	if total == 0 {
		close(c.done)
	}
	return c
}

func (c *Collection) Op() string {
	return c.op
}

func (c *Collection) Threshold() int {
	return c.threshold
}

func (c *Collection) record(r Reply) {
	c.mu.Lock()
	if len(c.replies) == c.total {
		c.mu.Unlock()
		return
	}
	r.Late = c.waitOver
	c.replies = append(c.replies, r)
	if r.OK() {
		c.successes++
	}
	if len(c.replies) == c.total {
		close(c.done)
	}
	c.mu.Unlock()

	monitoring.RecordReplicaReply(r.Replica, outcomeOf(r))
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// wait blocks until threshold successful replies are in, every replica answered, timeout
// elapses or ctx is done
func (c *Collection) wait(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		successes, answered := c.successes, len(c.replies)
		c.mu.Unlock()

		if successes >= c.threshold {
			c.finish(true, start)
			return nil
		}
		if answered == c.total {
			c.finish(false, start)
			return errors.Wrapf(errors.ErrCodeQuorumNotReached, "%s: %d of %d replicas succeeded, need %d",
				c.op, successes, c.total, c.threshold)
		}

		select {
		case <-c.notify:
		case <-timer.C:
			c.finish(false, start)
			return errors.Wrapf(errors.ErrCodeQuorumNotReached, "%s: timed out after %s with %d of %d successes",
				c.op, timeout, successes, c.threshold)
		case <-ctx.Done():
			c.finish(false, start)
			return errors.Wrapf(errors.ErrCodeQuorumNotReached, "%s: %v", c.op, ctx.Err())
		}
	}
}

func (c *Collection) finish(reached bool, start time.Time) {
	c.mu.Lock()
	c.waitOver = true
	c.mu.Unlock()
	monitoring.RecordQuorumWait(c.op, reached, time.Since(start))
	if c.Disagreement() {
		monitoring.IncreaseDisagreements(c.op)
	}
}

// WaitAll blocks until every replica has answered or ctx is done
func (c *Collection) WaitAll(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies returns a snapshot of every reply received so far, in arrival order
func (c *Collection) Replies() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reply, len(c.replies))
	copy(out, c.replies)
	return out
}

func (c *Collection) Successful() []Reply {
	var out []Reply
	for _, r := range c.Replies() {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Errors maps each failed replica to its error
func (c *Collection) Errors() map[string]error {
	out := make(map[string]error)
	for _, r := range c.Replies() {
		if !r.OK() {
			out[r.Replica] = r.Err
		}
	}
	return out
}

// Groups partitions successful replies by payload equality, largest group first. Ties are
// ordered by fingerprint.
func (c *Collection) Groups() []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range c.Successful() {
		fp, err := jsonx.Fingerprint(r.Payload)
		if err != nil {
			fp = fmt.Sprintf("unencodable:%s", r.Replica)
		}
		i, ok := index[fp]
		if !ok {
			i = len(groups)
			index[fp] = i
			groups = append(groups, Group{Fingerprint: fp, Payload: r.Payload})
		}
		groups[i].Replicas = append(groups[i].Replicas, r.Replica)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Replicas) != len(groups[j].Replicas) {
			return len(groups[i].Replicas) > len(groups[j].Replicas)
		}
		return groups[i].Fingerprint < groups[j].Fingerprint
	})
	return groups
}

// Agreed returns the payload group reaching the threshold, if any
func (c *Collection) Agreed() (*Group, bool) {
	groups := c.Groups()
	if len(groups) == 0 || len(groups[0].Replicas) < c.threshold {
		return nil, false
	}
	return &groups[0], true
}

// Disagreement reports whether two validly signed replies carry different payloads
func (c *Collection) Disagreement() bool {
	return len(c.Groups()) > 1
}

// Faulty names the replicas with evidence against them: a reply outside the largest group, or
// a reply whose envelope failed authentication
func (c *Collection) Faulty() []string {
	var out []string
	groups := c.Groups()
	if len(groups) > 1 {
		for _, g := range groups[1:] {
			out = append(out, g.Replicas...)
		}
	}
	for _, r := range c.Replies() {
		if errors.CodeOf(r.Err) == errors.ErrCodeInvalidResponseSignature {
			out = append(out, r.Replica)
		}
	}
	sort.Strings(out)
	return out
}

// Result returns the agreed payload as T, or QuorumNotReached when no group reaches the threshold
func Result[T any](c *Collection) (T, error) {
	var zero T
	g, ok := c.Agreed()
	if !ok {
		if c.Disagreement() {
			return zero, errors.Wrapf(errors.ErrCodeQuorumNotReached, "%s: replicas disagree %v", c.op, groupSizes(c.Groups()))
		}
		if err := c.commonError(); err != nil {
			return zero, err
		}
		return zero, errors.Wrapf(errors.ErrCodeQuorumNotReached, "%s: not enough matching replies", c.op)
	}
	v, ok := g.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("%s: payload is %T", c.op, g.Payload)
	}
	return v, nil
}

// commonError returns the domain error a threshold of replicas agreed on, so a rejected request
// surfaces its real cause instead of a bare quorum failure
func (c *Collection) commonError() error {
	counts := make(map[errors.ErrorCode]int)
	first := make(map[errors.ErrorCode]error)
	for _, r := range c.Replies() {
		if r.OK() {
			continue
		}
		code := errors.CodeOf(r.Err)
		counts[code]++
		if _, ok := first[code]; !ok {
			first[code] = r.Err
		}
	}
	for code, n := range counts {
		if n >= c.threshold && code != errors.ErrCodeInternal && code != errors.ErrCodeReplicaUnavailable {
			return first[code]
		}
	}
	return nil
}

func groupSizes(groups []Group) []int {
	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = len(g.Replicas)
	}
	return sizes
}

func outcomeOf(r Reply) monitoring.ReplyOutcome {
	switch {
	case r.Late:
		return monitoring.ReplyLate
	case r.OK():
		return monitoring.ReplyOK
	case errors.CodeOf(r.Err) == errors.ErrCodeInvalidResponseSignature:
		return monitoring.ReplyBadSignature
	default:
		return monitoring.ReplyError
	}
}
