// Package compound reads Compound V3 (Comet) positions.
package compound

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/portfolio"
)

const ProtocolID = "compound-v3-eth"

// USDCComet is the canonical USDC market on Ethereum mainnet
var USDCComet = common.HexToAddress("0xc3d688B66703497DAA39A0f29c3E84B6f93C3B99")

// CometABI covers the account views of a Comet market
var CometABI = chain.MustParseABI(`[
	{"inputs":[{"name":"account","type":"address"}],"name":"borrowBalanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"baseToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"numAssets","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"i","type":"uint8"}],"name":"getAssetInfo","outputs":[{"components":[
		{"name":"offset","type":"uint8"},
		{"name":"asset","type":"address"},
		{"name":"priceFeed","type":"address"},
		{"name":"scale","type":"uint64"},
		{"name":"borrowCollateralFactor","type":"uint64"},
		{"name":"liquidateCollateralFactor","type":"uint64"},
		{"name":"liquidationFactor","type":"uint64"},
		{"name":"supplyCap","type":"uint128"}
	],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"asset","type":"address"}],"name":"collateralBalanceOf","outputs":[{"name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
]`)

// AssetInfo mirrors CometCore.AssetInfo, in component order
type AssetInfo struct {
	Offset                    uint8
	Asset                     common.Address
	PriceFeed                 common.Address
	Scale                     uint64
	BorrowCollateralFactor    uint64
	LiquidateCollateralFactor uint64
	LiquidationFactor         uint64
	SupplyCap                 *big.Int
}

// Adapter reads one Comet market.
//
// Comet only exposes a boolean liquidation check, so positions carry no
// health data.
type Adapter struct {
	comet   common.Address
	chainID uint64
	reader  chain.Reader
	tokens  portfolio.TokenResolver
	logger  *zap.SugaredLogger
}

// NewAdapter creates a new Compound V3 adapter for the USDC market
func NewAdapter(reader chain.Reader, tokens portfolio.TokenResolver, logger *zap.SugaredLogger) *Adapter {
	logger = logger.Named("compound_v3")
	logger.Infow("Initialized Compound V3 adapter", "cometAddress", USDCComet.Hex())

	return &Adapter{
		comet:   USDCComet,
		chainID: chain.MainnetID,
		reader:  reader,
		tokens:  tokens,
		logger:  logger,
	}
}

// Descriptor implements portfolio.Adapter
func (a *Adapter) Descriptor() portfolio.Descriptor {
	return portfolio.Descriptor{
		ID:      ProtocolID,
		Name:    "Compound V3",
		ChainID: a.chainID,
		Type:    portfolio.TypeLending,
	}
}

type account struct {
	borrow    *big.Int
	supply    *big.Int
	baseToken common.Address
	numAssets uint8
}

type collateral struct {
	asset   common.Address
	balance *big.Int
}

// UserPositions returns at most one position: base supply and collateral as
// supplied, base debt as borrowed.
func (a *Adapter) UserPositions(ctx context.Context, user common.Address) ([]portfolio.Position, error) {
	acct, err := a.account(ctx, user)
	if err != nil {
		return nil, err
	}

	held := a.collateral(ctx, user, a.assets(ctx, acct.numAssets))

	addrs := make([]common.Address, 0, len(held)+1)
	if acct.borrow.Sign() > 0 || acct.supply.Sign() > 0 {
		addrs = append(addrs, acct.baseToken)
	}
	for _, c := range held {
		addrs = append(addrs, c.asset)
	}
	if len(addrs) == 0 {
		return []portfolio.Position{}, nil
	}
	meta := a.tokens.ResolveAll(ctx, a.chainID, addrs)

	var supplied, borrowed []portfolio.Amount
	base, baseOK := meta[acct.baseToken]
	if !baseOK && (acct.borrow.Sign() > 0 || acct.supply.Sign() > 0) {
		a.logger.Warnw("Skipping base asset, token metadata unresolved", "asset", acct.baseToken.Hex())
	}
	if baseOK && acct.supply.Sign() > 0 {
		supplied = append(supplied, portfolio.Amount{Token: base, Raw: acct.supply})
	}
	for _, c := range held {
		tok, ok := meta[c.asset]
		if !ok {
			a.logger.Warnw("Skipping collateral, token metadata unresolved", "asset", c.asset.Hex())
			continue
		}
		supplied = append(supplied, portfolio.Amount{Token: tok, Raw: c.balance})
	}
	if baseOK && acct.borrow.Sign() > 0 {
		borrowed = append(borrowed, portfolio.Amount{Token: base, Raw: acct.borrow})
	}

	if len(supplied) == 0 && len(borrowed) == 0 {
		return []portfolio.Position{}, nil
	}

	return []portfolio.Position{{
		ProtocolID: ProtocolID,
		ChainID:    a.chainID,
		Label:      "Compound V3",
		Supplied:   supplied,
		Borrowed:   borrowed,
		UpdatedAt:  time.Now(),
	}}, nil
}

// account reads the market-level state of user. Any failure fails the query.
func (a *Adapter) account(ctx context.Context, user common.Address) (account, error) {
	results, err := a.reader.Batch(ctx, []chain.Call{
		chain.MustCall(a.comet, CometABI, "borrowBalanceOf", user),
		chain.MustCall(a.comet, CometABI, "balanceOf", user),
		chain.MustCall(a.comet, CometABI, "baseToken"),
		chain.MustCall(a.comet, CometABI, "numAssets"),
	})
	if err != nil {
		return account{}, fmt.Errorf("failed to read comet account: %w", err)
	}

	var acct account
	if err := chain.UnpackResult(CometABI, "borrowBalanceOf", results[0], &acct.borrow); err != nil {
		return account{}, err
	}
	if err := chain.UnpackResult(CometABI, "balanceOf", results[1], &acct.supply); err != nil {
		return account{}, err
	}
	if err := chain.UnpackResult(CometABI, "baseToken", results[2], &acct.baseToken); err != nil {
		return account{}, err
	}
	if err := chain.UnpackResult(CometABI, "numAssets", results[3], &acct.numAssets); err != nil {
		return account{}, err
	}
	return acct, nil
}

// assets lists the market's collateral assets. Unreadable slots are skipped.
func (a *Adapter) assets(ctx context.Context, n uint8) []common.Address {
	if n == 0 {
		return nil
	}

	calls := make([]chain.Call, n)
	for i := range calls {
		calls[i] = chain.MustCall(a.comet, CometABI, "getAssetInfo", uint8(i))
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		a.logger.Warnw("Failed to read asset infos", "numAssets", n, "error", err)
		return nil
	}

	assets := make([]common.Address, 0, n)
	for i, res := range results {
		var out struct{ Info AssetInfo }
		if err := chain.UnpackResult(CometABI, "getAssetInfo", res, &out); err != nil {
			a.logger.Warnw("Failed to read asset info", "index", i, "error", err)
			continue
		}
		assets = append(assets, out.Info.Asset)
	}
	return assets
}

// collateral returns the non-zero collateral balances of user, in asset order
func (a *Adapter) collateral(ctx context.Context, user common.Address, assets []common.Address) []collateral {
	if len(assets) == 0 {
		return nil
	}

	calls := make([]chain.Call, len(assets))
	for i, asset := range assets {
		calls[i] = chain.MustCall(a.comet, CometABI, "collateralBalanceOf", user, asset)
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		a.logger.Warnw("Failed to read collateral balances", "assets", len(assets), "error", err)
		return nil
	}

	var held []collateral
	for i, res := range results {
		var balance *big.Int
		if err := chain.UnpackResult(CometABI, "collateralBalanceOf", res, &balance); err != nil {
			a.logger.Warnw("Failed to read collateral balance", "asset", assets[i].Hex(), "error", err)
			continue
		}
		if balance.Sign() > 0 {
			held = append(held, collateral{asset: assets[i], balance: balance})
		}
	}
	return held
}
