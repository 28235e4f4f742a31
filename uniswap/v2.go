package uniswap

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

const pairReads = 4

// V2Adapter values LP balances in an allow-list of Uniswap V2 pairs
type V2Adapter struct {
	reader  chain.Reader
	tokens  portfolio.TokenResolver
	pairs   []common.Address
	chainID uint64
	logger  *zap.SugaredLogger
}

// NewV2Adapter creates a new Uniswap V2 adapter. An empty pair list falls back to DefaultV2Pairs.
func NewV2Adapter(reader chain.Reader, tokens portfolio.TokenResolver, pairs []common.Address, logger *zap.SugaredLogger) *V2Adapter {
	if len(pairs) == 0 {
		pairs = DefaultV2Pairs
	}

	logger = logger.Named("uniswap_v2")
	logger.Infow("Initialized Uniswap V2 adapter", "pairs", len(pairs))

	return &V2Adapter{
		reader:  reader,
		tokens:  tokens,
		pairs:   pairs,
		chainID: chain.MainnetID,
		logger:  logger,
	}
}

// Descriptor implements portfolio.Adapter
func (a *V2Adapter) Descriptor() portfolio.Descriptor {
	return portfolio.Descriptor{
		ID:      V2ProtocolID,
		Name:    "Uniswap V2",
		ChainID: a.chainID,
		Type:    portfolio.TypeDEX,
	}
}

type heldPair struct {
	address common.Address
	balance *big.Int
	token0  common.Address
	token1  common.Address
	amount0 *big.Int
	amount1 *big.Int
}

// UserPositions returns one position per allow-listed pair the user holds LP tokens in
func (a *V2Adapter) UserPositions(ctx context.Context, user common.Address) ([]portfolio.Position, error) {
	a.logger.Debugw("Fetching V2 positions", "wallet", user.Hex())

	held, err := a.balances(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return []portfolio.Position{}, nil
	}

	valued, err := a.value(ctx, held)
	if err != nil {
		return nil, err
	}

	addrs := make([]common.Address, 0, 2*len(valued))
	for _, p := range valued {
		addrs = append(addrs, p.token0, p.token1)
	}
	meta := a.tokens.ResolveAll(ctx, a.chainID, addrs)

	positions := make([]portfolio.Position, 0, len(valued))
	for _, p := range valued {
		t0, ok0 := meta[p.token0]
		t1, ok1 := meta[p.token1]
		if !ok0 || !ok1 {
			a.logger.Warnw("Skipping pair, token metadata unresolved", "pair", p.address.Hex())
			continue
		}

		var supplied []portfolio.Amount
		if p.amount0.Sign() > 0 {
			supplied = append(supplied, portfolio.Amount{Token: t0, Raw: p.amount0})
		}
		if p.amount1.Sign() > 0 {
			supplied = append(supplied, portfolio.Amount{Token: t1, Raw: p.amount1})
		}

		positions = append(positions, portfolio.Position{
			ProtocolID: V2ProtocolID,
			ChainID:    a.chainID,
			Label:      fmt.Sprintf("Uniswap V2 LP · %s/%s", t0.Symbol, t1.Symbol),
			Supplied:   supplied,
			UpdatedAt:  time.Now(),
		})
	}

	a.logger.Debugw("Fetched V2 positions", "wallet", user.Hex(), "count", len(positions))
	return positions, nil
}

// balances returns the pairs with a non-zero LP balance, in allow-list order
func (a *V2Adapter) balances(ctx context.Context, user common.Address) ([]heldPair, error) {
	calls := make([]chain.Call, len(a.pairs))
	for i, pair := range a.pairs {
		calls[i] = chain.MustCall(pair, PairABI, "balanceOf", user)
	}

	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read LP balances: %w", err)
	}

	var held []heldPair
	for i, res := range results {
		var balance *big.Int
		if err := chain.UnpackResult(PairABI, "balanceOf", res, &balance); err != nil {
			a.logger.Warnw("Failed to read LP balance", "pair", a.pairs[i].Hex(), "error", err)
			continue
		}
		if balance.Sign() == 0 {
			continue
		}
		held = append(held, heldPair{address: a.pairs[i], balance: balance})
	}
	return held, nil
}

// value reads pair state for every held pair and computes the user's share.
// Pairs that fail to read or round to nothing are dropped.
func (a *V2Adapter) value(ctx context.Context, held []heldPair) ([]heldPair, error) {
	calls := make([]chain.Call, 0, pairReads*len(held))
	for _, p := range held {
		calls = append(calls,
			chain.MustCall(p.address, PairABI, "token0"),
			chain.MustCall(p.address, PairABI, "token1"),
			chain.MustCall(p.address, PairABI, "getReserves"),
			chain.MustCall(p.address, PairABI, "totalSupply"),
		)
	}

	results, err := a.reader.Batch(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read pair state: %w", err)
	}

	valued := make([]heldPair, 0, len(held))
	for i, p := range held {
		res := results[i*pairReads : (i+1)*pairReads]

		var (
			r      reserves
			supply *big.Int
		)
		if err := firstErr(
			chain.UnpackResult(PairABI, "token0", res[0], &p.token0),
			chain.UnpackResult(PairABI, "token1", res[1], &p.token1),
			chain.UnpackResult(PairABI, "getReserves", res[2], &r),
			chain.UnpackResult(PairABI, "totalSupply", res[3], &supply),
		); err != nil {
			a.logger.Warnw("Failed to read pair state", "pair", p.address.Hex(), "error", err)
			continue
		}

		amount0, amount1, ok := PoolShare(r.Reserve0, r.Reserve1, p.balance, supply)
		if !ok {
			a.logger.Debugw("Skipping pair with no redeemable share", "pair", p.address.Hex())
			continue
		}
		p.amount0, p.amount1 = amount0, amount1
		valued = append(valued, p)
	}
	return valued, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
