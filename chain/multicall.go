package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Multicall3Address is the Multicall3 deployment shared by most EVM chains.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// ErrCallReverted marks a batch item that reverted inside aggregate3.
var ErrCallReverted = errors.New("call reverted")

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

// Multicall batches reads through a Multicall3 contract in a single eth_call.
// Single calls pass straight through to the wrapped Reader.
type Multicall struct {
	Reader
	address common.Address
	logger  *zap.SugaredLogger
}

// NewMulticall wraps r so that Batch uses aggregate3 at address.
func NewMulticall(r Reader, address common.Address, logger *zap.SugaredLogger) *Multicall {
	return &Multicall{
		Reader:  r,
		address: address,
		logger:  logger.Named("multicall"),
	}
}

// Address returns the Multicall3 contract address.
func (m *Multicall) Address() common.Address {
	return m.address
}

// Batch executes calls with allowFailure set on every item. If the aggregate
// call itself fails, the batch falls back to the wrapped Reader.
func (m *Multicall) Batch(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	results, err := m.aggregate(ctx, calls)
	if err != nil {
		m.logger.Warnw("aggregate3 failed, falling back to direct batch",
			"address", m.address.Hex(),
			"calls", len(calls),
			"error", err)
		return m.Reader.Batch(ctx, calls)
	}
	return results, nil
}

func (m *Multicall) aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	in := make([]call3, len(calls))
	for i, call := range calls {
		in[i] = call3{Target: call.Target, AllowFailure: true, CallData: call.Data}
	}

	data, err := Multicall3ABI.Pack("aggregate3", in)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	raw, err := m.Reader.Call(ctx, Call{Target: m.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall contract at address=%s calls=%d: %w",
			m.address.Hex(), len(calls), err)
	}

	var out []result3
	if err := Unpack(Multicall3ABI, "aggregate3", raw, &out); err != nil {
		return nil, err
	}
	if len(out) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(out), len(calls))
	}

	results := make([]Result, len(out))
	for i, r := range out {
		if !r.Success {
			results[i] = Result{Err: fmt.Errorf("%w: target %s", ErrCallReverted, calls[i].Target.Hex())}
			continue
		}
		results[i] = Result{Data: r.ReturnData}
	}
	return results, nil
}
