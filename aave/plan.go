package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/portfolio"
)

const referralCode uint16 = 0

// variableRateMode is the only borrow mode left on current markets
var variableRateMode = big.NewInt(2)

// Plan builds the calls for kind. Nothing is signed or sent.
func (a *Adapter) Plan(_ context.Context, kind portfolio.ActionKind, req portfolio.ActionRequest) (portfolio.TxPlan, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return portfolio.TxPlan{}, fmt.Errorf("%w: amount must be positive", portfolio.ErrInvalidRequest)
	}
	if req.Asset == (common.Address{}) || req.User == (common.Address{}) {
		return portfolio.TxPlan{}, fmt.Errorf("%w: asset and user are required", portfolio.ErrInvalidRequest)
	}

	var (
		steps []portfolio.TxStep
		err   error
	)
	switch kind {
	case portfolio.ActionSupply:
		steps, err = a.steps(
			a.approve(req),
			a.poolCall("supply", req.Asset, req.Amount, req.User, referralCode),
		)
	case portfolio.ActionWithdraw:
		steps, err = a.steps(a.poolCall("withdraw", req.Asset, req.Amount, req.User))
	case portfolio.ActionBorrow:
		steps, err = a.steps(a.poolCall("borrow", req.Asset, req.Amount, variableRateMode, referralCode, req.User))
	case portfolio.ActionRepay:
		steps, err = a.steps(
			a.approve(req),
			a.poolCall("repay", req.Asset, req.Amount, variableRateMode, req.User),
		)
	default:
		return portfolio.TxPlan{}, fmt.Errorf("%w: %s on %s", portfolio.ErrUnsupportedAction, kind, a.cfg.ID)
	}
	if err != nil {
		return portfolio.TxPlan{}, fmt.Errorf("failed to build %s plan: %w", kind, err)
	}

	plan := portfolio.TxPlan{
		Kind:  portfolio.PlanSingle,
		Steps: steps,
		Meta: map[string]string{
			"protocol": a.cfg.ID,
			"action":   string(kind),
			"asset":    req.Asset.Hex(),
			"amount":   req.Amount.String(),
		},
	}
	if len(steps) > 1 {
		plan.Kind = portfolio.PlanBatch
	}
	return plan, nil
}

type stepFn func() (portfolio.TxStep, error)

func (a *Adapter) steps(fns ...stepFn) ([]portfolio.TxStep, error) {
	out := make([]portfolio.TxStep, 0, len(fns))
	for _, fn := range fns {
		step, err := fn()
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

// approve lets the Pool pull amount of the asset
func (a *Adapter) approve(req portfolio.ActionRequest) stepFn {
	return func() (portfolio.TxStep, error) {
		call, err := chain.NewCall(req.Asset, chain.ERC20ABI, "approve", a.cfg.Pool, req.Amount)
		if err != nil {
			return portfolio.TxStep{}, err
		}
		return portfolio.TxStep{ChainID: a.cfg.ChainID, To: call.Target, Data: call.Data}, nil
	}
}

func (a *Adapter) poolCall(method string, args ...interface{}) stepFn {
	return func() (portfolio.TxStep, error) {
		call, err := chain.NewCall(a.cfg.Pool, PoolABI, method, args...)
		if err != nil {
			return portfolio.TxStep{}, err
		}
		return portfolio.TxStep{ChainID: a.cfg.ChainID, To: call.Target, Data: call.Data}, nil
	}
}
