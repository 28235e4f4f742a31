package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain/chaintest"
)

var pool = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")

type fakeNFT struct {
	token0, token1       common.Address
	fee                  int64
	tickLower, tickUpper int64
	liquidity            int64
	owed0, owed1         int64
	err                  error
}

// serveNFTs registers the position manager, factory and pool for the given NFTs
func serveNFTs(fake *chaintest.Reader, sqrtPrice *big.Int, ids []int64, nfts map[int64]fakeNFT) {
	fake.Returns(V3PositionManagerAddress, PositionManagerABI, "balanceOf", big.NewInt(int64(len(ids))))
	fake.Handle(V3PositionManagerAddress, PositionManagerABI, "tokenOfOwnerByIndex", func(args []interface{}) ([]interface{}, error) {
		index := args[1].(*big.Int).Int64()
		return []interface{}{big.NewInt(ids[index])}, nil
	})
	fake.Handle(V3PositionManagerAddress, PositionManagerABI, "positions", func(args []interface{}) ([]interface{}, error) {
		id := args[0].(*big.Int).Int64()
		n, ok := nfts[id]
		if !ok {
			return nil, fmt.Errorf("invalid token id %d", id)
		}
		if n.err != nil {
			return nil, n.err
		}
		return []interface{}{
			big.NewInt(0), common.Address{}, n.token0, n.token1,
			big.NewInt(n.fee), big.NewInt(n.tickLower), big.NewInt(n.tickUpper),
			big.NewInt(n.liquidity), big.NewInt(0), big.NewInt(0),
			big.NewInt(n.owed0), big.NewInt(n.owed1),
		}, nil
	})
	fake.Returns(V3FactoryAddress, FactoryABI, "getPool", pool)
	fake.Returns(pool, PoolABI, "slot0", sqrtPrice, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
}

func TestV3AdapterValuesPositions(t *testing.T) {
	fake := chaintest.NewReader()
	tokens := newTokens(fake)
	serveNFTs(fake, Q96, []int64{101, 102, 103, 104, 105}, map[int64]fakeNFT{
		101: {token0: usdc, token1: weth, fee: 3000, tickLower: -60, tickUpper: 60, liquidity: 1_000_000_000},
		102: {token0: usdc, token1: weth, fee: 3000, tickLower: 60, tickUpper: 60, liquidity: 1_000_000_000},
		103: {err: errors.New("execution reverted")},
		104: {token0: usdc, token1: weth, fee: 3000, tickLower: -60, tickUpper: 60},
		105: {token0: usdc, token1: weth, fee: 3000, tickLower: 600, tickUpper: 1200, owed0: 7},
	})

	adapter := NewV3Adapter(fake, tokens, zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	first := positions[0]
	assert.Equal(t, V3ProtocolID, first.ProtocolID)
	assert.Equal(t, "Uniswap V3 LP (#101) · 0.30% · [-60..60]", first.Label)
	require.Len(t, first.Supplied, 2)

	want0, want1 := AmountsForLiquidity(Q96, MustSqrtRatioAtTick(-60), MustSqrtRatioAtTick(60), big.NewInt(1_000_000_000))
	assert.Equal(t, 0, want0.Cmp(first.Supplied[0].Raw))
	assert.Equal(t, 0, want1.Cmp(first.Supplied[1].Raw))
	assert.Positive(t, first.Supplied[0].Raw.Sign())
	assert.Positive(t, first.Supplied[1].Raw.Sign())
	assert.Equal(t, "USDC", first.Supplied[0].Token.Symbol)
	assert.Equal(t, "WETH", first.Supplied[1].Token.Symbol)
	assert.Empty(t, first.Fees)

	// out of range with no liquidity, kept for its owed fees
	feesOnly := positions[1]
	assert.Equal(t, "Uniswap V3 LP (#105) · 0.30% · [600..1200]", feesOnly.Label)
	require.Len(t, feesOnly.Fees, 1)
	assert.Equal(t, int64(7), feesOnly.Fees[0].Raw.Int64())
	assert.Equal(t, "USDC", feesOnly.Fees[0].Token.Symbol)

	// one pool, read once for the pool address and once for the price
	assert.Equal(t, 1, fake.Calls(V3FactoryAddress, "getPool"))
	assert.Equal(t, 1, fake.Calls(pool, "slot0"))
}

func TestV3AdapterMemoizesPoolAcrossQueries(t *testing.T) {
	fake := chaintest.NewReader()
	tokens := newTokens(fake)
	serveNFTs(fake, Q96, []int64{1}, map[int64]fakeNFT{
		1: {token0: usdc, token1: weth, fee: 500, tickLower: -10, tickUpper: 10, liquidity: 5_000_000},
	})

	adapter := NewV3Adapter(fake, tokens, zap.NewNop().Sugar())
	for i := 0; i < 2; i++ {
		positions, err := adapter.UserPositions(context.Background(), wallet)
		require.NoError(t, err)
		require.Len(t, positions, 1)
	}

	assert.Equal(t, 1, fake.Calls(V3FactoryAddress, "getPool"))
	assert.Equal(t, 2, fake.Calls(pool, "slot0"))
}

func TestV3AdapterSkipsPositionWithoutPool(t *testing.T) {
	fake := chaintest.NewReader()
	tokens := newTokens(fake)
	serveNFTs(fake, Q96, []int64{1}, map[int64]fakeNFT{
		1: {token0: usdc, token1: weth, fee: 3000, tickLower: -60, tickUpper: 60, liquidity: 1000},
	})
	fake.Returns(V3FactoryAddress, FactoryABI, "getPool", common.Address{})

	adapter := NewV3Adapter(fake, tokens, zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 0, fake.Calls(pool, "slot0"))
}

func TestV3AdapterCapsEnumeration(t *testing.T) {
	fake := chaintest.NewReader()
	tokens := newTokens(fake)
	ids := make([]int64, 80)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	serveNFTs(fake, Q96, ids, map[int64]fakeNFT{})

	adapter := NewV3Adapter(fake, tokens, zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, MaxV3Positions, fake.Calls(V3PositionManagerAddress, "tokenOfOwnerByIndex"))
}

func TestV3AdapterNoNFTs(t *testing.T) {
	fake := chaintest.NewReader()
	serveNFTs(fake, Q96, nil, nil)

	adapter := NewV3Adapter(fake, newTokens(fake), zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 0, fake.Batches())
}

func TestV3AdapterPrimaryReadFailure(t *testing.T) {
	fake := chaintest.NewReader()
	fake.Fails(V3PositionManagerAddress, PositionManagerABI, "balanceOf", errors.New("rate limited"))

	adapter := NewV3Adapter(fake, newTokens(fake), zap.NewNop().Sugar())
	_, err := adapter.UserPositions(context.Background(), wallet)
	assert.Error(t, err)
}
