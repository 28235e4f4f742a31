// Package portfolio defines the uniform position model shared by every protocol
// adapter, and the aggregator that fans a query out to the adapters of a chain.
package portfolio

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnsupportedAction is returned by planners for actions they do not build.
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrInvalidRequest is returned by planners for malformed action parameters.
	ErrInvalidRequest = errors.New("invalid action request")
)

// ProtocolType is the category of a protocol
type ProtocolType string

const (
	// TypeLending covers supply/borrow money markets
	TypeLending ProtocolType = "lending"
	// TypeDEX covers exchanges and liquidity pools
	TypeDEX       ProtocolType = "dex"
	TypeLaunchpad ProtocolType = "launchpad"
	TypeFiat      ProtocolType = "fiat"
	TypeUnknown   ProtocolType = "unknown"
)

// Token represents an ERC20 token on one chain
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	LogoURI  string         `json:"logoUri,omitempty"`
}

// Amount is a raw on-chain quantity in the token's smallest unit
type Amount struct {
	Token Token    `json:"token"`
	Raw   *big.Int `json:"raw"`
}

// IsZero reports whether the amount is nil or zero.
func (a Amount) IsZero() bool {
	return a.Raw == nil || a.Raw.Sign() == 0
}

// Health is a protocol-reported risk snapshot. Nil fields are unknown.
type Health struct {
	HealthFactor         *float64 `json:"healthFactor,omitempty"`
	LiquidationThreshold *float64 `json:"liquidationThreshold,omitempty"`
	LTV                  *float64 `json:"ltv,omitempty"`
}

// Position represents a user's holding in one protocol
type Position struct {
	ProtocolID string   `json:"protocolId"`
	ChainID    uint64   `json:"chainId"`
	Label      string   `json:"label"`
	Supplied   []Amount `json:"supplied,omitempty"`
	Borrowed   []Amount `json:"borrowed,omitempty"`

	// Uncollected fees of concentrated liquidity positions
	Fees []Amount `json:"fees,omitempty"`

	NetValueUSD *float64  `json:"netValueUsd,omitempty"`
	Health      *Health   `json:"health,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasValue reports whether the position carries any non-zero amount or a
// health or net value signal. A lending account that was checked and found
// empty is reported as a position without value.
func (p Position) HasValue() bool {
	if p.NetValueUSD != nil || p.Health != nil {
		return true
	}
	for _, list := range [][]Amount{p.Supplied, p.Borrowed, p.Fees} {
		for _, a := range list {
			if !a.IsZero() {
				return true
			}
		}
	}
	return false
}

// Supports lists the write actions an adapter can build plans for
type Supports struct {
	Supply          bool `json:"supply,omitempty"`
	Withdraw        bool `json:"withdraw,omitempty"`
	Borrow          bool `json:"borrow,omitempty"`
	Repay           bool `json:"repay,omitempty"`
	Swap            bool `json:"swap,omitempty"`
	AddLiquidity    bool `json:"addLiquidity,omitempty"`
	RemoveLiquidity bool `json:"removeLiquidity,omitempty"`
}

// Descriptor is the static identity of an adapter
type Descriptor struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	ChainID  uint64       `json:"chainId"`
	Type     ProtocolType `json:"type"`
	Supports Supports     `json:"supports"`
}

// Adapter reads a user's positions from one protocol deployment.
//
// UserPositions returns an empty list, not an error, when the user has no
// positions. An error means the adapter's primary read failed.
type Adapter interface {
	Descriptor() Descriptor
	UserPositions(ctx context.Context, user common.Address) ([]Position, error)
}

// TokenResolver resolves token metadata. Adapters skip assets it cannot resolve.
type TokenResolver interface {
	Resolve(ctx context.Context, chainID uint64, address common.Address) (Token, error)
	ResolveAll(ctx context.Context, chainID uint64, addresses []common.Address) map[common.Address]Token
}

// ActionKind is a write action a planner may build
type ActionKind string

const (
	ActionSupply   ActionKind = "supply"
	ActionWithdraw ActionKind = "withdraw"
	ActionBorrow   ActionKind = "borrow"
	ActionRepay    ActionKind = "repay"
)

// ActionRequest carries the parameters of a write action
type ActionRequest struct {
	User   common.Address
	Asset  common.Address
	Amount *big.Int
}

// PlanKind tells whether a plan has one step or several
type PlanKind string

const (
	PlanSingle PlanKind = "single"
	PlanBatch  PlanKind = "batch"
)

// TxStep is one unsigned call descriptor
type TxStep struct {
	ChainID uint64         `json:"chainId"`
	To      common.Address `json:"to"`
	Data    []byte         `json:"data"`
	Value   *big.Int       `json:"value,omitempty"`
}

// TxPlan is an ordered list of calls. Plans are returned, never executed.
type TxPlan struct {
	Kind  PlanKind          `json:"kind"`
	Steps []TxStep          `json:"steps"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Planner is implemented by adapters that can build transaction plans.
type Planner interface {
	Plan(ctx context.Context, kind ActionKind, req ActionRequest) (TxPlan, error)
}
