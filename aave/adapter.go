// Package aave reads Aave V3 lending positions and builds plans for the Pool's
// user actions.
//
// Account totals come from Pool.getUserAccountData in the market's base
// currency (1e8 units). The health factor is a 1e18 wad, while liquidation
// threshold and LTV are basis points and are exposed as fractions.
package aave

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.openly.dev/pointy"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/fixedpoint"
	"github.com/korjavin/defiportfolio/portfolio"
)

// Fixed-point bases of getUserAccountData
const (
	baseCurrencyDecimals = 8
	healthFactorDecimals = 18
	bpsDecimals          = 4
)

// Config identifies one Aave V3 market
type Config struct {
	ID         string
	Name       string
	ChainID    uint64
	Pool       common.Address
	Label      string
	EmptyLabel string

	// DataProvider enables per-reserve detail when set
	DataProvider common.Address
}

// Known markets
var (
	Ethereum = Config{
		ID:           "aave-v3-eth",
		Name:         "Aave V3",
		ChainID:      chain.MainnetID,
		Pool:         common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
		DataProvider: common.HexToAddress("0x497a1994c46d4f6C864904A9f1fac6328Cb7C8a6"),
		Label:        "Aave V3",
		EmptyLabel:   "Aave V3 (empty)",
	}

	Sepolia = Config{
		ID:         "aave-v3-sepolia",
		Name:       "Aave V3",
		ChainID:    chain.SepoliaID,
		Pool:       common.HexToAddress("0xE7EC1B0015eb2ADEedb1B7f9F1Ce82F9DAD6dF08"),
		Label:      "Aave V3 (Sepolia)",
		EmptyLabel: "Aave V3 (Sepolia, empty)",
	}
)

// Adapter reads one Aave V3 market
type Adapter struct {
	cfg    Config
	reader chain.Reader
	tokens portfolio.TokenResolver
	logger *zap.SugaredLogger
}

// NewAdapter creates a new Aave V3 adapter for cfg
func NewAdapter(cfg Config, reader chain.Reader, tokens portfolio.TokenResolver, logger *zap.SugaredLogger) *Adapter {
	logger = logger.Named("aave").With("market", cfg.ID)
	logger.Infow("Initialized Aave V3 adapter",
		"poolAddress", cfg.Pool.Hex(),
		"dataProviderAddress", cfg.DataProvider.Hex())

	return &Adapter{
		cfg:    cfg,
		reader: reader,
		tokens: tokens,
		logger: logger,
	}
}

// Descriptor implements portfolio.Adapter
func (a *Adapter) Descriptor() portfolio.Descriptor {
	return portfolio.Descriptor{
		ID:      a.cfg.ID,
		Name:    a.cfg.Name,
		ChainID: a.cfg.ChainID,
		Type:    portfolio.TypeLending,
		Supports: portfolio.Supports{
			Supply:   true,
			Withdraw: true,
			Borrow:   true,
			Repay:    true,
		},
	}
}

// UserPositions returns a single position summarizing the user's account.
// A failed account read fails the call; failed reserve detail only drops the detail.
func (a *Adapter) UserPositions(ctx context.Context, user common.Address) ([]portfolio.Position, error) {
	var account accountData
	if err := chain.Read(ctx, a.reader, a.cfg.Pool, PoolABI, "getUserAccountData", &account, user); err != nil {
		return nil, fmt.Errorf("failed to read account data: %w", err)
	}

	var supplied, borrowed []portfolio.Amount
	if a.cfg.DataProvider != (common.Address{}) {
		supplied, borrowed = a.reserves(ctx, user)
	}

	exposed := account.TotalCollateralBase.Sign() > 0 || account.TotalDebtBase.Sign() > 0
	pos := portfolio.Position{
		ProtocolID: a.cfg.ID,
		ChainID:    a.cfg.ChainID,
		Label:      a.cfg.Label,
		Supplied:   supplied,
		Borrowed:   borrowed,
	}

	switch {
	case exposed:
		net := new(big.Int).Sub(account.TotalCollateralBase, account.TotalDebtBase)
		pos.NetValueUSD = finite(fixedpoint.ScaleDownSafe(net, baseCurrencyDecimals))
		pos.Health = &portfolio.Health{
			HealthFactor:         finite(fixedpoint.ScaleDownSafe(account.HealthFactor, healthFactorDecimals)),
			LiquidationThreshold: finite(fixedpoint.ScaleDownSafe(account.CurrentLiquidationThreshold, bpsDecimals)),
			LTV:                  finite(fixedpoint.ScaleDownSafe(account.Ltv, bpsDecimals)),
		}
	case len(supplied) == 0 && len(borrowed) == 0:
		// checked, nothing there
		pos.Label = a.cfg.EmptyLabel
	}

	pos.UpdatedAt = time.Now()
	a.logger.Debugw("Fetched account", "wallet", user.Hex(), "exposed", exposed,
		"supplied", len(supplied), "borrowed", len(borrowed))

	return []portfolio.Position{pos}, nil
}

// reserves enumerates the user's per-asset balances. Stable and variable debt
// are merged into one borrowed amount per asset.
func (a *Adapter) reserves(ctx context.Context, user common.Address) (supplied, borrowed []portfolio.Amount) {
	var list []reserveToken
	if err := chain.Read(ctx, a.reader, a.cfg.DataProvider, DataProviderABI, "getAllReservesTokens", &list); err != nil {
		a.logger.Warnw("Failed to list reserves", "error", err)
		return nil, nil
	}
	if len(list) == 0 {
		return nil, nil
	}

	calls := make([]chain.Call, len(list))
	for i, r := range list {
		calls[i] = chain.MustCall(a.cfg.DataProvider, DataProviderABI, "getUserReserveData", r.TokenAddress, user)
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		a.logger.Warnw("Failed to read user reserves", "reserves", len(list), "error", err)
		return nil, nil
	}

	type held struct {
		asset  common.Address
		supply *big.Int
		debt   *big.Int
	}
	var (
		holdings []held
		assets   []common.Address
	)
	for i, res := range results {
		var data userReserveData
		if err := chain.UnpackResult(DataProviderABI, "getUserReserveData", res, &data); err != nil {
			a.logger.Warnw("Failed to read user reserve", "asset", list[i].TokenAddress.Hex(), "error", err)
			continue
		}
		debt := new(big.Int).Add(data.CurrentStableDebt, data.CurrentVariableDebt)
		if data.CurrentATokenBalance.Sign() == 0 && debt.Sign() == 0 {
			continue
		}
		holdings = append(holdings, held{asset: list[i].TokenAddress, supply: data.CurrentATokenBalance, debt: debt})
		assets = append(assets, list[i].TokenAddress)
	}
	if len(holdings) == 0 {
		return nil, nil
	}

	meta := a.tokens.ResolveAll(ctx, a.cfg.ChainID, assets)
	for _, h := range holdings {
		tok, ok := meta[h.asset]
		if !ok {
			a.logger.Warnw("Skipping reserve, token metadata unresolved", "asset", h.asset.Hex())
			continue
		}
		if h.supply.Sign() > 0 {
			supplied = append(supplied, portfolio.Amount{Token: tok, Raw: h.supply})
		}
		if h.debt.Sign() > 0 {
			borrowed = append(borrowed, portfolio.Amount{Token: tok, Raw: h.debt})
		}
	}
	return supplied, borrowed
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return pointy.Float64(v)
}
