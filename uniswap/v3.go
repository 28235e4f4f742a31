package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/portfolio"
)

// V3Adapter values Uniswap V3 liquidity NFTs held by a wallet
type V3Adapter struct {
	reader          chain.Reader
	tokens          portfolio.TokenResolver
	positionManager common.Address
	factory         common.Address
	chainID         uint64
	logger          *zap.SugaredLogger

	// pool addresses by poolKey, shared across queries; pools never move
	pools sync.Map
}

// NewV3Adapter creates a new Uniswap V3 adapter
func NewV3Adapter(reader chain.Reader, tokens portfolio.TokenResolver, logger *zap.SugaredLogger) *V3Adapter {
	logger = logger.Named("uniswap_v3")
	logger.Infow("Initialized Uniswap V3 adapter",
		"positionManagerAddress", V3PositionManagerAddress.Hex(),
		"factoryAddress", V3FactoryAddress.Hex())

	return &V3Adapter{
		reader:          reader,
		tokens:          tokens,
		positionManager: V3PositionManagerAddress,
		factory:         V3FactoryAddress,
		chainID:         chain.MainnetID,
		logger:          logger,
	}
}

// Descriptor implements portfolio.Adapter
func (a *V3Adapter) Descriptor() portfolio.Descriptor {
	return portfolio.Descriptor{
		ID:      V3ProtocolID,
		Name:    "Uniswap V3",
		ChainID: a.chainID,
		Type:    portfolio.TypeDEX,
	}
}

// nft is one enumerated position moving through the pipeline
type nft struct {
	id        *big.Int
	data      nftPosition
	fee       uint32
	tickLower int
	tickUpper int
	pool      common.Address
	amount0   *big.Int
	amount1   *big.Int
}

func poolKey(token0, token1 common.Address, fee uint32) string {
	return fmt.Sprintf("%s-%s-%d", strings.ToLower(token0.Hex()), strings.ToLower(token1.Hex()), fee)
}

// UserPositions returns one position per NFT with liquidity or owed fees,
// in enumeration order. A position that fails to load is logged and skipped.
func (a *V3Adapter) UserPositions(ctx context.Context, user common.Address) ([]portfolio.Position, error) {
	a.logger.Debugw("Fetching V3 positions", "wallet", user.Hex())

	ids, err := a.tokenIDs(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []portfolio.Position{}, nil
	}

	nfts, err := a.loadPositions(ctx, ids)
	if err != nil {
		return nil, err
	}

	nfts = a.attachPools(ctx, nfts)
	nfts = a.computeAmounts(ctx, nfts)

	addrs := make([]common.Address, 0, 2*len(nfts))
	for _, n := range nfts {
		addrs = append(addrs, n.data.Token0, n.data.Token1)
	}
	meta := a.tokens.ResolveAll(ctx, a.chainID, addrs)

	positions := make([]portfolio.Position, 0, len(nfts))
	for _, n := range nfts {
		t0, ok0 := meta[n.data.Token0]
		t1, ok1 := meta[n.data.Token1]
		if !ok0 || !ok1 {
			a.logger.Warnw("Skipping position, token metadata unresolved", "tokenId", n.id.String())
			continue
		}

		var fees []portfolio.Amount
		if n.data.TokensOwed0.Sign() > 0 {
			fees = append(fees, portfolio.Amount{Token: t0, Raw: n.data.TokensOwed0})
		}
		if n.data.TokensOwed1.Sign() > 0 {
			fees = append(fees, portfolio.Amount{Token: t1, Raw: n.data.TokensOwed1})
		}

		positions = append(positions, portfolio.Position{
			ProtocolID: V3ProtocolID,
			ChainID:    a.chainID,
			Label: fmt.Sprintf("Uniswap V3 LP (#%s) · %s · [%d..%d]",
				n.id.String(), FormatFeeTier(n.fee), n.tickLower, n.tickUpper),
			Supplied: []portfolio.Amount{
				{Token: t0, Raw: n.amount0},
				{Token: t1, Raw: n.amount1},
			},
			Fees:      fees,
			UpdatedAt: time.Now(),
		})
	}

	a.logger.Debugw("Fetched V3 positions", "wallet", user.Hex(), "count", len(positions))
	return positions, nil
}

// tokenIDs enumerates up to MaxV3Positions NFT ids owned by user
func (a *V3Adapter) tokenIDs(ctx context.Context, user common.Address) ([]*big.Int, error) {
	var balance *big.Int
	if err := chain.Read(ctx, a.reader, a.positionManager, PositionManagerABI, "balanceOf", &balance, user); err != nil {
		return nil, fmt.Errorf("failed to read position count: %w", err)
	}

	count := MaxV3Positions
	if balance.IsInt64() && balance.Int64() < int64(count) {
		count = int(balance.Int64())
	}
	if count <= 0 {
		return nil, nil
	}

	calls := make([]chain.Call, count)
	for i := range calls {
		calls[i] = chain.MustCall(a.positionManager, PositionManagerABI, "tokenOfOwnerByIndex", user, big.NewInt(int64(i)))
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate positions: %w", err)
	}

	ids := make([]*big.Int, 0, count)
	for i, res := range results {
		var id *big.Int
		if err := chain.UnpackResult(PositionManagerABI, "tokenOfOwnerByIndex", res, &id); err != nil {
			a.logger.Warnw("Failed to read token id", "index", i, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadPositions reads stored position data, dropping empty NFTs and degenerate ranges
func (a *V3Adapter) loadPositions(ctx context.Context, ids []*big.Int) ([]nft, error) {
	calls := make([]chain.Call, len(ids))
	for i, id := range ids {
		calls[i] = chain.MustCall(a.positionManager, PositionManagerABI, "positions", id)
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	nfts := make([]nft, 0, len(ids))
	for i, res := range results {
		n := nft{id: ids[i]}
		if err := chain.UnpackResult(PositionManagerABI, "positions", res, &n.data); err != nil {
			a.logger.Warnw("Failed to read position", "tokenId", n.id.String(), "error", err)
			continue
		}
		if n.data.empty() {
			continue
		}

		n.fee = uint32(n.data.Fee.Uint64())
		n.tickLower = int(n.data.TickLower.Int64())
		n.tickUpper = int(n.data.TickUpper.Int64())
		if n.tickLower >= n.tickUpper {
			a.logger.Warnw("Skipping position with invalid ticks",
				"tokenId", n.id.String(), "tickLower", n.tickLower, "tickUpper", n.tickUpper)
			continue
		}
		nfts = append(nfts, n)
	}
	return nfts, nil
}

// attachPools resolves each position's pool, reading unknown pools in one batch
func (a *V3Adapter) attachPools(ctx context.Context, nfts []nft) []nft {
	var (
		missing []string
		calls   []chain.Call
	)
	queued := make(map[string]bool)
	for _, n := range nfts {
		key := poolKey(n.data.Token0, n.data.Token1, n.fee)
		if _, ok := a.pools.Load(key); ok || queued[key] {
			continue
		}
		queued[key] = true
		missing = append(missing, key)
		calls = append(calls, chain.MustCall(a.factory, FactoryABI, "getPool",
			n.data.Token0, n.data.Token1, new(big.Int).SetUint64(uint64(n.fee))))
	}

	if len(calls) > 0 {
		results, err := a.reader.Batch(ctx, calls)
		if err != nil {
			a.logger.Warnw("Failed to look up pools", "pools", len(calls), "error", err)
		}
		for i, res := range results {
			var pool common.Address
			if err := chain.UnpackResult(FactoryABI, "getPool", res, &pool); err != nil {
				a.logger.Warnw("Failed to look up pool", "pool", missing[i], "error", err)
				continue
			}
			if pool == (common.Address{}) {
				continue
			}
			a.pools.LoadOrStore(missing[i], pool)
		}
	}

	out := nfts[:0]
	for _, n := range nfts {
		v, ok := a.pools.Load(poolKey(n.data.Token0, n.data.Token1, n.fee))
		if !ok {
			a.logger.Warnw("No pool for position", "tokenId", n.id.String())
			continue
		}
		n.pool = v.(common.Address)
		out = append(out, n)
	}
	return out
}

// computeAmounts reads slot0 once per pool for this query and values each position
func (a *V3Adapter) computeAmounts(ctx context.Context, nfts []nft) []nft {
	var pools []common.Address
	index := make(map[common.Address]int)
	for _, n := range nfts {
		if _, ok := index[n.pool]; ok {
			continue
		}
		index[n.pool] = len(pools)
		pools = append(pools, n.pool)
	}
	if len(pools) == 0 {
		return nil
	}

	calls := make([]chain.Call, len(pools))
	for i, pool := range pools {
		calls[i] = chain.MustCall(pool, PoolABI, "slot0")
	}
	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		a.logger.Warnw("Failed to read pool prices", "pools", len(pools), "error", err)
		return nil
	}

	prices := make(map[common.Address]*big.Int, len(pools))
	for i, res := range results {
		var s slot0
		if err := chain.UnpackResult(PoolABI, "slot0", res, &s); err != nil {
			a.logger.Warnw("Failed to read pool price", "pool", pools[i].Hex(), "error", err)
			continue
		}
		prices[pools[i]] = s.SqrtPriceX96
	}

	out := nfts[:0]
	for _, n := range nfts {
		price, ok := prices[n.pool]
		if !ok {
			continue
		}

		sqrtA := MustSqrtRatioAtTick(ClampTick(n.tickLower))
		sqrtB := MustSqrtRatioAtTick(ClampTick(n.tickUpper))
		n.amount0, n.amount1 = AmountsForLiquidity(price, sqrtA, sqrtB, n.data.Liquidity)

		if n.amount0.Sign() == 0 && n.amount1.Sign() == 0 && n.data.TokensOwed0.Sign() == 0 && n.data.TokensOwed1.Sign() == 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
