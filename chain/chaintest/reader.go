// Package chaintest provides an in-memory chain.Reader for adapter tests.
//
// Handlers are registered per (target, method). The fake decodes the call's
// arguments with the method ABI and packs the handler's return values with the
// method outputs, so adapters exercise their real encoding paths.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/korjavin/defiportfolio/chain"
)

// ErrNoHandler is returned for calls nobody registered, the fake equivalent of a revert.
var ErrNoHandler = errors.New("no handler registered")

// Handler receives decoded arguments and returns output values in ABI order.
type Handler func(args []interface{}) ([]interface{}, error)

type key struct {
	target   common.Address
	selector [4]byte
}

type entry struct {
	method abi.Method
	fn     Handler
}

// Reader is a thread-safe fake chain.Reader.
type Reader struct {
	mu        sync.Mutex
	handlers  map[key]entry
	calls     map[string]int
	BatchErr  error
	batches   int
	callCount int
}

// NewReader returns an empty fake.
func NewReader() *Reader {
	return &Reader{
		handlers: make(map[key]entry),
		calls:    make(map[string]int),
	}
}

// Handle registers fn for method on target.
func (r *Reader) Handle(target common.Address, contract *abi.ABI, method string, fn Handler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %q", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key{target: target, selector: sel}] = entry{method: m, fn: fn}
}

// Returns registers a handler that always returns values.
func (r *Reader) Returns(target common.Address, contract *abi.ABI, method string, values ...interface{}) {
	r.Handle(target, contract, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// Fails registers a handler that always fails with err.
func (r *Reader) Fails(target common.Address, contract *abi.ABI, method string, err error) {
	r.Handle(target, contract, method, func([]interface{}) ([]interface{}, error) {
		return nil, err
	})
}

// Call implements chain.Reader.
func (r *Reader) Call(_ context.Context, call chain.Call) ([]byte, error) {
	if len(call.Data) < 4 {
		return nil, fmt.Errorf("chaintest: short call data for %s", call.Target.Hex())
	}
	var sel [4]byte
	copy(sel[:], call.Data[:4])

	r.mu.Lock()
	e, ok := r.handlers[key{target: call.Target, selector: sel}]
	if ok {
		r.calls[callKey(call.Target, e.method.Name)]++
	}
	r.callCount++
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s selector %x", ErrNoHandler, call.Target.Hex(), sel)
	}

	args, err := e.method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: unpack %s args: %w", e.method.Name, err)
	}
	out, err := e.fn(args)
	if err != nil {
		return nil, err
	}
	return e.method.Outputs.Pack(out...)
}

// Batch implements chain.Reader with per-item errors.
func (r *Reader) Batch(ctx context.Context, calls []chain.Call) ([]chain.Result, error) {
	r.mu.Lock()
	r.batches++
	batchErr := r.BatchErr
	r.mu.Unlock()

	if batchErr != nil {
		return nil, batchErr
	}

	results := make([]chain.Result, len(calls))
	for i, call := range calls {
		data, err := r.Call(ctx, call)
		results[i] = chain.Result{Data: data, Err: err}
	}
	return results, nil
}

// Calls reports how many times method was called on target.
func (r *Reader) Calls(target common.Address, method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[callKey(target, method)]
}

// Batches reports how many Batch invocations were made.
func (r *Reader) Batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

// CallCount reports the total number of calls, batched or not.
func (r *Reader) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callCount
}

func callKey(target common.Address, method string) string {
	return strings.ToLower(target.Hex()) + ":" + method
}
