// Package chain is the read-only contract-call transport used by protocol adapters.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrEmptyResult is returned when a call to a contract returns no data,
// which is what eth_call yields for an address without code.
var ErrEmptyResult = errors.New("empty call result")

// Call is a single eth_call against the latest block.
type Call struct {
	Target common.Address
	Data   []byte
}

// Result carries the outcome of one call in a batch.
type Result struct {
	Data []byte
	Err  error
}

// OK reports whether the call succeeded with a non-empty payload.
func (r Result) OK() bool {
	return r.Err == nil && len(r.Data) > 0
}

// Reader performs contract reads.
//
// Batch returns one Result per call in order. A failed item is reported in its
// Result and never aborts the batch; the returned error is reserved for failures
// of the batch as a whole.
type Reader interface {
	Call(ctx context.Context, call Call) ([]byte, error)
	Batch(ctx context.Context, calls []Call) ([]Result, error)
}

// NewCall packs a method call for target.
func NewCall(target common.Address, contract *abi.ABI, method string, args ...interface{}) (Call, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return Call{Target: target, Data: data}, nil
}

// MustCall is NewCall for arguments known to be valid for the method.
func MustCall(target common.Address, contract *abi.ABI, method string, args ...interface{}) Call {
	call, err := NewCall(target, contract, method, args...)
	if err != nil {
		panic(err)
	}
	return call
}

// Read packs, calls and unpacks a method into out.
func Read(ctx context.Context, r Reader, target common.Address, contract *abi.ABI, method string, out interface{}, args ...interface{}) error {
	call, err := NewCall(target, contract, method, args...)
	if err != nil {
		return err
	}
	data, err := r.Call(ctx, call)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, target.Hex(), err)
	}
	return Unpack(contract, method, data, out)
}

// Unpack decodes call output into out. Empty output is an error.
func Unpack(contract *abi.ABI, method string, data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("failed to unpack %s: %w", method, ErrEmptyResult)
	}
	if err := contract.UnpackIntoInterface(out, method, data); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}

// UnpackResult decodes a batch item, surfacing its call error first.
func UnpackResult(contract *abi.ABI, method string, res Result, out interface{}) error {
	if res.Err != nil {
		return fmt.Errorf("%s call failed: %w", method, res.Err)
	}
	return Unpack(contract, method, res.Data, out)
}
