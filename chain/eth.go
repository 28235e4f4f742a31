package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const (
	DefaultMaxTries       = 3
	defaultMaxElapsedTime = 20 * time.Second
)

// EthReader reads contracts over JSON-RPC. Single calls go through ethclient,
// batches are sent as one JSON-RPC batch request with per-item errors.
type EthReader struct {
	client   *ethclient.Client
	rpc      *rpc.Client
	maxTries uint
	logger   *zap.SugaredLogger
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, url string, maxTries uint, logger *zap.SugaredLogger) (*EthReader, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	return NewEthReader(rpcClient, maxTries, logger), nil
}

// NewEthReader wraps an established RPC client.
func NewEthReader(rpcClient *rpc.Client, maxTries uint, logger *zap.SugaredLogger) *EthReader {
	if maxTries == 0 {
		maxTries = DefaultMaxTries
	}
	return &EthReader{
		client:   ethclient.NewClient(rpcClient),
		rpc:      rpcClient,
		maxTries: maxTries,
		logger:   logger.Named("eth_reader"),
	}
}

// Call performs eth_call at the latest block, retrying transport failures.
func (r *EthReader) Call(ctx context.Context, call Call) ([]byte, error) {
	target := call.Target
	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: call.Data}, nil)
		if err != nil {
			if isNodeError(err) {
				return nil, backoff.Permanent(err)
			}
			r.logger.Debugw("eth_call failed, retrying", "target", target.Hex(), "error", err)
			return nil, err
		}
		return data, nil
	}, r.retryOptions()...)
}

type callArg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Batch sends all calls in a single JSON-RPC batch.
func (r *EthReader) Batch(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	elems := make([]rpc.BatchElem, len(calls))
	out := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArg{To: call.Target, Data: call.Data}, "latest"},
			Result: &out[i],
		}
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := r.rpc.BatchCallContext(ctx, elems); err != nil {
			r.logger.Debugw("Batch eth_call failed, retrying", "calls", len(calls), "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, r.retryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("batch eth_call failed: %w", err)
	}

	results := make([]Result, len(calls))
	for i, elem := range elems {
		results[i] = Result{Data: out[i], Err: elem.Error}
	}
	return results, nil
}

// Close releases the underlying connection.
func (r *EthReader) Close() {
	r.rpc.Close()
}

func (r *EthReader) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithMaxElapsedTime(defaultMaxElapsedTime),
	}
}

// isNodeError reports whether the node answered with a JSON-RPC error, such as a revert.
// Those are deterministic and not worth retrying.
func isNodeError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}
