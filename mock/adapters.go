// Package mock provides static adapters used when live reads are disabled.
// They return the same shapes as the live adapters with fixed balances.
package mock

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.openly.dev/pointy"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/portfolio"
)

var (
	USDC = portfolio.Token{ChainID: chain.MainnetID, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Name: "USD Coin", Decimals: 6}
	WETH = portfolio.Token{ChainID: chain.MainnetID, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18}
	DAI  = portfolio.Token{ChainID: chain.MainnetID, Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18}

	SepoliaUSDC = portfolio.Token{ChainID: chain.SepoliaID, Address: common.HexToAddress("0x94a9D9AC8a22534E3FaCa9F4e7F2E2cf85d5E4C8"), Symbol: "USDC", Name: "USD Coin", Decimals: 6}
)

// aaveActions matches the write actions the live Aave adapter plans
var aaveActions = portfolio.Supports{Supply: true, Withdraw: true, Borrow: true, Repay: true}

// Adapter returns a fixed set of positions for any user
type Adapter struct {
	desc portfolio.Descriptor

	// Latency simulates a network round-trip
	Latency time.Duration

	positions func() []portfolio.Position
}

// Descriptor implements portfolio.Adapter
func (a *Adapter) Descriptor() portfolio.Descriptor {
	return a.desc
}

// UserPositions implements portfolio.Adapter. UpdatedAt is the time of the call.
func (a *Adapter) UserPositions(ctx context.Context, _ common.Address) ([]portfolio.Position, error) {
	if a.Latency > 0 {
		select {
		case <-time.After(a.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	now := time.Now()
	positions := a.positions()
	for i := range positions {
		positions[i].ProtocolID = a.desc.ID
		positions[i].ChainID = a.desc.ChainID
		positions[i].UpdatedAt = now
	}
	return positions, nil
}

func amount(tok portfolio.Token, raw string) portfolio.Amount {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		panic("mock: bad amount " + raw)
	}
	return portfolio.Amount{Token: tok, Raw: n}
}

// AaveEthereum mirrors the aave-v3-eth adapter
func AaveEthereum() *Adapter {
	return &Adapter{
		desc: portfolio.Descriptor{ID: "aave-v3-eth", Name: "Aave V3", ChainID: chain.MainnetID, Type: portfolio.TypeLending, Supports: aaveActions},
		positions: func() []portfolio.Position {
			return []portfolio.Position{{
				Label:       "Aave V3",
				Supplied:    []portfolio.Amount{amount(USDC, "5000000000")},
				Borrowed:    []portfolio.Amount{amount(WETH, "200000000000000000")},
				NetValueUSD: pointy.Float64(4500),
				Health: &portfolio.Health{
					HealthFactor:         pointy.Float64(1.75),
					LiquidationThreshold: pointy.Float64(0.83),
					LTV:                  pointy.Float64(0.78),
				},
			}}
		},
	}
}

// AaveSepolia mirrors the aave-v3-sepolia adapter
func AaveSepolia() *Adapter {
	return &Adapter{
		desc: portfolio.Descriptor{ID: "aave-v3-sepolia", Name: "Aave V3", ChainID: chain.SepoliaID, Type: portfolio.TypeLending, Supports: aaveActions},
		positions: func() []portfolio.Position {
			return []portfolio.Position{{
				Label:       "Aave V3 (Sepolia)",
				Supplied:    []portfolio.Amount{amount(SepoliaUSDC, "100000000")},
				NetValueUSD: pointy.Float64(100),
				Health:      &portfolio.Health{LiquidationThreshold: pointy.Float64(0.78), LTV: pointy.Float64(0.75)},
			}}
		},
	}
}

// CompoundEthereum mirrors the compound-v3-eth adapter
func CompoundEthereum() *Adapter {
	return &Adapter{
		desc: portfolio.Descriptor{ID: "compound-v3-eth", Name: "Compound V3", ChainID: chain.MainnetID, Type: portfolio.TypeLending},
		positions: func() []portfolio.Position {
			return []portfolio.Position{{
				Label:    "Compound V3",
				Supplied: []portfolio.Amount{amount(WETH, "1000000000000000000")},
				Borrowed: []portfolio.Amount{amount(USDC, "1200000000")},
			}}
		},
	}
}

// UniswapV2Ethereum mirrors the uniswap-v2-eth adapter
func UniswapV2Ethereum() *Adapter {
	return &Adapter{
		desc: portfolio.Descriptor{ID: "uniswap-v2-eth", Name: "Uniswap V2", ChainID: chain.MainnetID, Type: portfolio.TypeDEX},
		positions: func() []portfolio.Position {
			return []portfolio.Position{{
				Label:    "Uniswap V2 LP · USDC/WETH",
				Supplied: []portfolio.Amount{amount(USDC, "2500000000"), amount(WETH, "750000000000000000")},
			}}
		},
	}
}

// UniswapV3Ethereum mirrors the uniswap-v3-eth adapter
func UniswapV3Ethereum() *Adapter {
	return &Adapter{
		desc: portfolio.Descriptor{ID: "uniswap-v3-eth", Name: "Uniswap V3", ChainID: chain.MainnetID, Type: portfolio.TypeDEX},
		positions: func() []portfolio.Position {
			return []portfolio.Position{
				{
					Label:    "Uniswap V3 LP (#123456) · 0.30% · [-887220..887220]",
					Supplied: []portfolio.Amount{amount(USDC, "1000000000"), amount(WETH, "500000000000000000")},
					Fees:     []portfolio.Amount{amount(USDC, "50000000"), amount(WETH, "25000000000000000")},
				},
				{
					Label:    "Uniswap V3 LP (#67890) · 1.00% · [-120000..120000]",
					Supplied: []portfolio.Amount{amount(WETH, "120000000000000000"), amount(DAI, "310000000000000000000")},
				},
			}
		},
	}
}

// All returns the mock adapters for chainID in registration order
func All(chainID uint64) []*Adapter {
	switch chainID {
	case chain.MainnetID:
		return []*Adapter{AaveEthereum(), CompoundEthereum(), UniswapV2Ethereum(), UniswapV3Ethereum()}
	case chain.SepoliaID:
		return []*Adapter{AaveSepolia()}
	default:
		return nil
	}
}
