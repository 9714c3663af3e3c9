package service

import (
	"context"
	"fmt"

	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/interfaces"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/types"
)

type LedgerServiceImpl struct {
	ledger interfaces.Ledger
	sealer *Sealer
}

func NewLedgerService(ld interfaces.Ledger, sealer *Sealer) *LedgerServiceImpl {
	return &LedgerServiceImpl{ledger: ld, sealer: sealer}
}

func (s *LedgerServiceImpl) Register(ctx context.Context, in *types.RegisterRequest) (*types.Envelope, error) {
	return s.run(ctx, "register", func() (interface{}, error) {
		return s.ledger.Register(in)
	})
}

func (s *LedgerServiceImpl) Send(ctx context.Context, in *types.SendRequest) (*types.Envelope, error) {
	return s.run(ctx, "send", func() (interface{}, error) {
		return s.ledger.SendAmount(in)
	})
}

func (s *LedgerServiceImpl) Receive(ctx context.Context, in *types.ReceiveRequest) (*types.Envelope, error) {
	return s.run(ctx, "receive", func() (interface{}, error) {
		return s.ledger.ReceiveAmount(in)
	})
}

func (s *LedgerServiceImpl) Check(ctx context.Context, in *types.AccountRequest) (*types.Envelope, error) {
	if in == nil {
		return nil, errors.ErrNullArgument
	}
	return s.run(ctx, "check", func() (interface{}, error) {
		return s.ledger.CheckAccount(in.KeyHash)
	})
}

func (s *LedgerServiceImpl) Audit(ctx context.Context, in *types.AccountRequest) (*types.Envelope, error) {
	if in == nil {
		return nil, errors.ErrNullArgument
	}
	return s.run(ctx, "audit", func() (interface{}, error) {
		return s.ledger.Audit(in.KeyHash)
	})
}

func (s *LedgerServiceImpl) Join(ctx context.Context, in *types.JoinRequest) (*types.Envelope, error) {
	return s.run(ctx, "join", func() (interface{}, error) {
		return s.ledger.JoinLedger(in)
	})
}

// run executes op unless ctx is already done and seals its result. Failures outside the
// error taxonomy are logged and replaced by the generic internal error.
func (s *LedgerServiceImpl) run(ctx context.Context, name string, op func() (interface{}, error)) (*types.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := op()
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeInternal {
			logx.Error("SERVICE", fmt.Sprintf("%s: %v", name, err))
			return nil, errors.ErrInternal
		}
		return nil, err
	}
	env, err := s.sealer.Seal(result)
	if err != nil {
		logx.Error("SERVICE", fmt.Sprintf("%s: %v", name, err))
		return nil, errors.ErrInternal
	}
	return env, nil
}
