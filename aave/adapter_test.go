package aave

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/chain/chaintest"
	"github.com/korjavin/defiportfolio/token"
)

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newTokens(fake *chaintest.Reader) *token.Resolver {
	for _, tok := range []struct {
		addr     common.Address
		symbol   string
		decimals uint8
	}{{usdc, "USDC", 6}, {weth, "WETH", 18}, {dai, "DAI", 18}} {
		fake.Returns(tok.addr, chain.ERC20ABI, "decimals", tok.decimals)
		fake.Returns(tok.addr, chain.ERC20ABI, "symbol", tok.symbol)
		fake.Returns(tok.addr, chain.ERC20ABI, "name", tok.symbol+" token")
	}
	return token.NewResolver(map[uint64]chain.Reader{
		chain.MainnetID: fake,
		chain.SepoliaID: fake,
	}, zap.NewNop().Sugar())
}

func bigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

func serveAccount(fake *chaintest.Reader, pool common.Address, collateral, debt, lt, ltv, hf *big.Int) {
	fake.Returns(pool, PoolABI, "getUserAccountData", collateral, debt, big.NewInt(0), lt, ltv, hf)
}

type reserveBalance struct {
	supply, stable, variable int64
}

func serveReserves(fake *chaintest.Reader, provider common.Address, balances map[common.Address]reserveBalance, order ...common.Address) {
	list := make([]reserveToken, len(order))
	for i, addr := range order {
		list[i] = reserveToken{Symbol: "R", TokenAddress: addr}
	}
	fake.Returns(provider, DataProviderABI, "getAllReservesTokens", list)
	fake.Handle(provider, DataProviderABI, "getUserReserveData", func(args []interface{}) ([]interface{}, error) {
		b := balances[args[0].(common.Address)]
		zero := big.NewInt(0)
		return []interface{}{
			big.NewInt(b.supply), big.NewInt(b.stable), big.NewInt(b.variable),
			zero, zero, zero, zero, zero, b.supply > 0,
		}, nil
	})
}

func TestUserPositionsEmptyAccount(t *testing.T) {
	fake := chaintest.NewReader()
	zero := big.NewInt(0)
	serveAccount(fake, Ethereum.Pool, zero, zero, zero, zero, math.MaxBig256)
	serveReserves(fake, Ethereum.DataProvider, nil, usdc, weth)

	adapter := NewAdapter(Ethereum, fake, newTokens(fake), zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "Aave V3 (empty)", pos.Label)
	assert.Nil(t, pos.Health)
	assert.Nil(t, pos.NetValueUSD)
	assert.Empty(t, pos.Supplied)
	assert.Empty(t, pos.Borrowed)
	assert.False(t, pos.UpdatedAt.IsZero())
}

func TestUserPositionsWithReserves(t *testing.T) {
	fake := chaintest.NewReader()
	serveAccount(fake, Ethereum.Pool,
		big.NewInt(100_050_000_000), // 1000.5
		big.NewInt(40_000_000_000),  // 400
		big.NewInt(8250),
		big.NewInt(8000),
		bigInt("1500000000000000000"),
	)
	serveReserves(fake, Ethereum.DataProvider, map[common.Address]reserveBalance{
		usdc: {supply: 1_000_000_000},
		weth: {stable: 1, variable: 2},
	}, dai, usdc, weth)

	adapter := NewAdapter(Ethereum, fake, newTokens(fake), zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "aave-v3-eth", pos.ProtocolID)
	assert.Equal(t, "Aave V3", pos.Label)

	require.NotNil(t, pos.NetValueUSD)
	assert.InDelta(t, 600.5, *pos.NetValueUSD, 1e-9)

	require.NotNil(t, pos.Health)
	require.NotNil(t, pos.Health.HealthFactor)
	assert.InDelta(t, 1.5, *pos.Health.HealthFactor, 1e-12)
	assert.InDelta(t, 0.825, *pos.Health.LiquidationThreshold, 1e-12)
	assert.InDelta(t, 0.8, *pos.Health.LTV, 1e-12)

	require.Len(t, pos.Supplied, 1)
	assert.Equal(t, "USDC", pos.Supplied[0].Token.Symbol)
	assert.Equal(t, int64(1_000_000_000), pos.Supplied[0].Raw.Int64())

	// stable and variable debt merged
	require.Len(t, pos.Borrowed, 1)
	assert.Equal(t, "WETH", pos.Borrowed[0].Token.Symbol)
	assert.Equal(t, int64(3), pos.Borrowed[0].Raw.Int64())

	// metadata only for assets with a balance
	assert.Equal(t, 0, fake.Calls(dai, "symbol"))
}

func TestUserPositionsSkipsUnresolvedReserve(t *testing.T) {
	broken := common.HexToAddress("0x00000000000000000000000000000000000000bd")

	fake := chaintest.NewReader()
	serveAccount(fake, Ethereum.Pool,
		big.NewInt(200_000_000_000), // 2000
		big.NewInt(50_000_000_000),  // 500
		big.NewInt(8250),
		big.NewInt(8000),
		bigInt("3000000000000000000"),
	)
	serveReserves(fake, Ethereum.DataProvider, map[common.Address]reserveBalance{
		usdc:   {supply: 2_000_000_000},
		broken: {supply: 7, variable: 5},
		weth:   {variable: 9},
	}, usdc, broken, weth)
	tokens := newTokens(fake)
	fake.Returns(broken, chain.ERC20ABI, "decimals", uint8(18))
	fake.Returns(broken, chain.ERC20ABI, "name", "Broken")
	fake.Fails(broken, chain.ERC20ABI, "symbol", errors.New("execution reverted"))

	adapter := NewAdapter(Ethereum, fake, tokens, zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "Aave V3", pos.Label)
	require.NotNil(t, pos.NetValueUSD)
	assert.InDelta(t, 1500.0, *pos.NetValueUSD, 1e-9)

	require.Len(t, pos.Supplied, 1)
	assert.Equal(t, "USDC", pos.Supplied[0].Token.Symbol)
	require.Len(t, pos.Borrowed, 1)
	assert.Equal(t, "WETH", pos.Borrowed[0].Token.Symbol)
	assert.Equal(t, int64(9), pos.Borrowed[0].Raw.Int64())
}

func TestUserPositionsNoDebtHasNoHealthFactor(t *testing.T) {
	fake := chaintest.NewReader()
	serveAccount(fake, Ethereum.Pool, big.NewInt(100_000_000), big.NewInt(0), big.NewInt(8250), big.NewInt(8000), math.MaxBig256)
	fake.Fails(Ethereum.DataProvider, DataProviderABI, "getAllReservesTokens", errors.New("execution reverted"))

	adapter := NewAdapter(Ethereum, fake, newTokens(fake), zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "Aave V3", pos.Label)
	require.NotNil(t, pos.Health)
	assert.Nil(t, pos.Health.HealthFactor)
	assert.NotNil(t, pos.Health.LiquidationThreshold)
	require.NotNil(t, pos.NetValueUSD)
	assert.InDelta(t, 1.0, *pos.NetValueUSD, 1e-12)
	assert.Empty(t, pos.Supplied)
}

func TestUserPositionsAccountReadFails(t *testing.T) {
	fake := chaintest.NewReader()
	fake.Fails(Ethereum.Pool, PoolABI, "getUserAccountData", errors.New("rate limited"))

	adapter := NewAdapter(Ethereum, fake, newTokens(fake), zap.NewNop().Sugar())
	_, err := adapter.UserPositions(context.Background(), wallet)
	assert.Error(t, err)
}

func TestUserPositionsSepoliaSkipsReserveDetail(t *testing.T) {
	fake := chaintest.NewReader()
	zero := big.NewInt(0)
	serveAccount(fake, Sepolia.Pool, zero, zero, zero, zero, math.MaxBig256)

	adapter := NewAdapter(Sepolia, fake, newTokens(fake), zap.NewNop().Sugar())
	positions, err := adapter.UserPositions(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "Aave V3 (Sepolia, empty)", positions[0].Label)
	assert.Equal(t, chain.SepoliaID, positions[0].ChainID)
	assert.Equal(t, 0, fake.Batches())
}
