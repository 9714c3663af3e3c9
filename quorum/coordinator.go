package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/exception"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/types"
)

const (
	DefaultWaitTimeout    = 10 * time.Second
	DefaultReplicaTimeout = 15 * time.Second
)

const (
	OpRegister = "register"
	OpSend     = "send"
	OpReceive  = "receive"
	OpCheck    = "check"
	OpAudit    = "audit"
	OpHealth   = "health"
)

type Config struct {
	// Threshold is the number of successful replies an operation waits for. Zero means a
	// majority; values below a majority are rejected.
	Threshold      int
	WaitTimeout    time.Duration
	ReplicaTimeout time.Duration
}

// Majority is the smallest threshold accepted for n replicas
func Majority(n int) int {
	return n/2 + 1
}

// Call performs one operation against one replica
type Call func(ctx context.Context, r client.Replica) (interface{}, error)

// Coordinator fans every operation out to all known replicas and waits for a threshold of
// authenticated successful replies. Replica tasks run on their own context so late replies keep
// arriving after the caller returns; Close cancels them.
type Coordinator struct {
	replicas []client.Replica
	cfg      Config

	baseCtx context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup
}

func NewCoordinator(replicas []client.Replica, cfg Config) (*Coordinator, error) {
	if len(replicas) == 0 {
		return nil, fmt.Errorf("at least one replica is required")
	}
	seen := make(map[string]bool, len(replicas))
	for _, r := range replicas {
		if seen[r.ID()] {
			return nil, fmt.Errorf("duplicate replica id %q", r.ID())
		}
		seen[r.ID()] = true
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = Majority(len(replicas))
	}
	if cfg.Threshold < Majority(len(replicas)) || cfg.Threshold > len(replicas) {
		return nil, fmt.Errorf("threshold %d out of range [%d, %d]", cfg.Threshold, Majority(len(replicas)), len(replicas))
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.ReplicaTimeout <= 0 {
		cfg.ReplicaTimeout = DefaultReplicaTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		replicas: replicas,
		cfg:      cfg,
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

func (c *Coordinator) Threshold() int {
	return c.cfg.Threshold
}

func (c *Coordinator) Replicas() []client.Replica {
	return c.replicas
}

// Replica returns the replica with id, or nil
func (c *Coordinator) Replica(id string) client.Replica {
	for _, r := range c.replicas {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// Broadcast runs call against every replica concurrently. The returned collection is never nil,
// also when the error reports that the threshold was not reached.
func (c *Coordinator) Broadcast(ctx context.Context, op string, call Call) (*Collection, error) {
	coll := newCollection(op, c.cfg.Threshold, len(c.replicas))
	if err := c.baseCtx.Err(); err != nil {
		return coll, errors.Wrapf(errors.ErrCodeQuorumNotReached, "coordinator closed")
	}

	for _, r := range c.replicas {
		replica := r
		c.tasks.Add(1)
		exception.SafeGoWithRecover(fmt.Sprintf("quorum-%s-%s", op, replica.ID()), func() {
			defer c.tasks.Done()
			rctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.ReplicaTimeout)
			defer cancel()

			start := time.Now()
			payload, err := call(rctx, replica)
			coll.record(Reply{Replica: replica.ID(), Payload: payload, Err: err, Elapsed: time.Since(start)})
		}, func(err error) {
			coll.record(Reply{Replica: replica.ID(), Err: fmt.Errorf("%s: %w", op, err)})
		})
	}

	err := coll.wait(ctx, c.cfg.WaitTimeout)
	if err != nil {
		logx.Warn("QUORUM", err.Error())
	} else if coll.Disagreement() {
		logx.Warn("QUORUM", fmt.Sprintf("%s: replicas disagree, faulty=%v", op, coll.Faulty()))
	}
	return coll, err
}

// Close cancels outstanding replica tasks and waits for them to report
func (c *Coordinator) Close() {
	c.cancel()
	c.tasks.Wait()
	for _, r := range c.replicas {
		if err := r.Close(); err != nil {
			logx.Warn("QUORUM", fmt.Sprintf("closing replica %s: %v", r.ID(), err))
		}
	}
}

func (c *Coordinator) Register(ctx context.Context, req *types.RegisterRequest) (*Collection, error) {
	return c.Broadcast(ctx, OpRegister, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Register(ctx, req)
	})
}

func (c *Coordinator) Send(ctx context.Context, req *types.SendRequest) (*Collection, error) {
	return c.Broadcast(ctx, OpSend, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Send(ctx, req)
	})
}

func (c *Coordinator) Receive(ctx context.Context, req *types.ReceiveRequest) (*Collection, error) {
	return c.Broadcast(ctx, OpReceive, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Receive(ctx, req)
	})
}

func (c *Coordinator) Check(ctx context.Context, keyHash string) (*Collection, error) {
	return c.Broadcast(ctx, OpCheck, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Check(ctx, keyHash)
	})
}

func (c *Coordinator) Audit(ctx context.Context, keyHash string) (*Collection, error) {
	return c.Broadcast(ctx, OpAudit, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Audit(ctx, keyHash)
	})
}

func (c *Coordinator) Health(ctx context.Context) (*Collection, error) {
	return c.Broadcast(ctx, OpHealth, func(ctx context.Context, r client.Replica) (interface{}, error) {
		return r.Health(ctx)
	})
}
