package client

import (
	"context"
	"crypto/ed25519"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/jsonrpc"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/types"
)

const DefaultResponseTolerance = 30 * time.Second

type Config struct {
	ID       string
	Endpoint string
	// PublicKey is the replica's base58 DER public key
	PublicKey string
	Timeout   time.Duration
	// ResponseTolerance bounds the age of a reply envelope timestamp
	ResponseTolerance time.Duration
}

// ReplicaClient talks JSON-RPC to one replica and checks every reply envelope against the
// replica's known key.
type ReplicaClient struct {
	cfg Config
	pub ed25519.PublicKey
	rpc *jrpc2.Client
	now func() time.Time
}

func NewReplicaClient(cfg Config) (*ReplicaClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("replica %s: endpoint cannot be empty", cfg.ID)
	}
	pub, _, err := crypto.DecodePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("replica %s: %w", cfg.ID, err)
	}
	if cfg.ResponseTolerance <= 0 {
		cfg.ResponseTolerance = DefaultResponseTolerance
	}
	opts := &jhttp.ChannelOptions{}
	if cfg.Timeout > 0 {
		opts.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ReplicaClient{
		cfg: cfg,
		pub: pub,
		rpc: jrpc2.NewClient(jhttp.NewChannel(cfg.Endpoint, opts), nil),
		now: time.Now,
	}, nil
}

func (c *ReplicaClient) ID() string {
	return c.cfg.ID
}

func (c *ReplicaClient) Register(ctx context.Context, req *types.RegisterRequest) (*types.Account, error) {
	var acc types.Account
	if err := c.call(ctx, jsonrpc.MethodLedgerRegister, req, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *ReplicaClient) Send(ctx context.Context, req *types.SendRequest) (*types.Transaction, error) {
	var tx types.Transaction
	if err := c.call(ctx, jsonrpc.MethodLedgerSend, req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *ReplicaClient) Receive(ctx context.Context, req *types.ReceiveRequest) (*types.Transaction, error) {
	var tx types.Transaction
	if err := c.call(ctx, jsonrpc.MethodLedgerReceive, req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *ReplicaClient) Check(ctx context.Context, keyHash string) (*types.AccountState, error) {
	var state types.AccountState
	if err := c.call(ctx, jsonrpc.MethodLedgerCheck, &types.AccountRequest{KeyHash: keyHash}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *ReplicaClient) Audit(ctx context.Context, keyHash string) ([]*types.Transaction, error) {
	var chain []*types.Transaction
	if err := c.call(ctx, jsonrpc.MethodLedgerAudit, &types.AccountRequest{KeyHash: keyHash}, &chain); err != nil {
		return nil, err
	}
	if chain == nil {
		chain = []*types.Transaction{}
	}
	return chain, nil
}

func (c *ReplicaClient) Join(ctx context.Context, req *types.JoinRequest) (*types.JoinResult, error) {
	var res types.JoinResult
	if err := c.call(ctx, jsonrpc.MethodLedgerJoin, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *ReplicaClient) Health(ctx context.Context) (*types.HealthStatus, error) {
	var status types.HealthStatus
	if err := c.call(ctx, jsonrpc.MethodHealthCheck, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *ReplicaClient) Close() error {
	return c.rpc.Close()
}

// call performs one round trip, authenticates the envelope and decodes its body into out
func (c *ReplicaClient) call(ctx context.Context, method string, params, out interface{}) error {
	var env types.Envelope
	if err := c.rpc.CallResult(ctx, method, params, &env); err != nil {
		return c.decodeError(err)
	}
	if err := c.verify(&env); err != nil {
		return err
	}
	if err := jsonx.Unmarshal(env.Result, out); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidResponseSignature, "replica %s sent an undecodable body: %v", c.cfg.ID, err)
	}
	return nil
}

// verify checks the envelope signature over its timestamp and the timestamp's freshness.
// The body is not covered: a faulty replica can still lie with a valid envelope.
func (c *ReplicaClient) verify(env *types.Envelope) error {
	if env.Replica != c.cfg.ID && c.cfg.ID != "" {
		return errors.Wrapf(errors.ErrCodeInvalidResponseSignature, "reply from %q, expected %q", env.Replica, c.cfg.ID)
	}
	if !crypto.Verify(c.pub, crypto.ResponsePayload(env.Timestamp), env.Signature) {
		return errors.Wrapf(errors.ErrCodeInvalidResponseSignature, "replica %s", c.cfg.ID)
	}
	if !crypto.IsFresh(env.Timestamp, c.now(), c.cfg.ResponseTolerance) {
		return errors.Wrapf(errors.ErrCodeInvalidResponseSignature, "replica %s replied with stale timestamp %s", c.cfg.ID, env.Timestamp)
	}
	return nil
}

// decodeError recovers the LedgerError a replica put in the JSON-RPC error data. Anything
// else is a transport failure.
func (c *ReplicaClient) decodeError(err error) error {
	var rpcErr *jrpc2.Error
	if stderrors.As(err, &rpcErr) {
		if len(rpcErr.Data) > 0 {
			var le errors.LedgerError
			if jsonx.Unmarshal(rpcErr.Data, &le) == nil && le.Code != "" {
				return &le
			}
		}
		return errors.Wrapf(errors.ErrCodeInternal, "replica %s: %s", c.cfg.ID, rpcErr.Message)
	}
	return errors.Wrapf(errors.ErrCodeReplicaUnavailable, "replica %s: %v", c.cfg.ID, err)
}
