package main

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/mock"
	"github.com/korjavin/defiportfolio/portfolio"
)

var wallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0x00000000000000000000000000000000000000aa", false},
		{"0x00000000000000000000000000000000000000AA", false},
		{"00000000000000000000000000000000000000aa", true},
		{"0x1234", true},
		{"0xZZ000000000000000000000000000000000000aa", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, err := parseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, wallet, addr)
		})
	}
}

func TestParseChainID(t *testing.T) {
	id, err := parseChainID("11155111")
	require.NoError(t, err)
	assert.Equal(t, chain.SepoliaID, id)

	_, err = parseChainID("137")
	assert.Error(t, err)

	_, err = parseChainID("mainnet")
	assert.Error(t, err)
}

func TestRenderStateWithoutPositions(t *testing.T) {
	assert.Contains(t, renderState(portfolio.State{}), "No wallet connected")
	assert.Contains(t, renderState(portfolio.State{Connected: true, Loading: true}), "Fetching positions")
	assert.Equal(t,
		"No positions found for "+wallet.Hex()+" on Sepolia.",
		renderState(portfolio.State{Connected: true, ChainID: chain.SepoliaID, User: wallet}))
}

func TestRenderStatePositions(t *testing.T) {
	positions, err := mock.AaveEthereum().UserPositions(context.Background(), wallet)
	require.NoError(t, err)

	text := renderState(portfolio.State{Connected: true, ChainID: chain.MainnetID, User: wallet, Positions: positions})

	assert.Contains(t, text, "Found 1 positions for "+wallet.Hex()+" on Ethereum Mainnet:")
	assert.Contains(t, text, "1. Aave V3\n")
	assert.Contains(t, text, "   Supplied: 5,000 USDC\n")
	assert.Contains(t, text, "   Borrowed: 0.2 WETH\n")
	assert.Contains(t, text, "   Net Value: $4,500.00\n")
	assert.Contains(t, text, "   Health Factor: 1.75 | Liq. Threshold: 83.00% | LTV: 78.00%")
}

func TestRenderPositionFees(t *testing.T) {
	positions, err := mock.UniswapV3Ethereum().UserPositions(context.Background(), wallet)
	require.NoError(t, err)

	text := renderPosition(positions[0])
	assert.Equal(t, "   Supplied: 1,000 USDC, 0.5 WETH\n   Unclaimed Fees: 50 USDC, 0.025 WETH\n", text)
}

func TestRenderPositionEmptyAccount(t *testing.T) {
	p := portfolio.Position{ProtocolID: "aave-v3-eth", Label: "Aave V3 (empty)"}
	assert.Equal(t, "   No balances\n", renderPosition(p))

	text := renderState(portfolio.State{Connected: true, ChainID: chain.MainnetID, User: wallet, Positions: []portfolio.Position{p}})
	assert.Contains(t, text, "1. Aave V3 (empty)\n   No balances")
}

func TestRenderHealthWithoutDebt(t *testing.T) {
	assert.Equal(t, "Health Factor: ∞ | LTV: 75.00%", renderHealth(portfolio.Health{LTV: pointy.Float64(0.75)}))
}

func TestRenderChains(t *testing.T) {
	text := renderChains(chain.Visible(true), []uint64{chain.MainnetID})
	assert.Equal(t, "Supported chains:\n\n1 - Ethereum Mainnet\n11155111 - Sepolia (testnet) (no protocols)\n", text)

	assert.NotContains(t, renderChains(chain.Visible(false), nil), "Sepolia")
}

// gatedSource blocks its first query until release is closed
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	calls   chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		calls:   make(chan struct{}, 1),
	}
}

func (s *gatedSource) Positions(ctx context.Context, chainID uint64, user common.Address) []portfolio.Position {
	select {
	case s.calls <- struct{}{}:
		close(s.started)
		<-s.release
	default:
	}
	return nil
}

func newHandlers(source portfolio.PositionSource) *BotHandlers {
	return NewBotHandlers(portfolio.NewRegistry(zap.NewNop().Sugar()), source, Config{RequestTimeout: time.Second}, zap.NewNop().Sugar())
}

func TestQueryDropsSupersededRequest(t *testing.T) {
	source := newGatedSource()
	h := newHandlers(source)

	type result struct {
		text string
		ok   bool
	}
	first := make(chan result, 1)
	go func() {
		text, ok := h.query(42, chain.MainnetID, common.HexToAddress("0x01"), true)
		first <- result{text, ok}
	}()
	<-source.started

	text, ok := h.query(42, chain.MainnetID, wallet, true)
	require.True(t, ok)
	assert.Contains(t, text, wallet.Hex())

	close(source.release)
	r := <-first
	assert.False(t, r.ok)
	assert.Empty(t, r.text)
}

func TestQuerySessionsArePerChat(t *testing.T) {
	source := newGatedSource()
	h := newHandlers(source)

	done := make(chan bool, 1)
	go func() {
		_, ok := h.query(1, chain.MainnetID, wallet, true)
		done <- ok
	}()
	<-source.started

	_, ok := h.query(2, chain.MainnetID, wallet, true)
	assert.True(t, ok)

	close(source.release)
	assert.True(t, <-done)
	assert.Same(t, h.session(1), h.session(1))
	assert.NotSame(t, h.session(1), h.session(2))
}

func TestQueryAgainstMockRegistry(t *testing.T) {
	reg, closeAll, err := buildRegistry(context.Background(), Config{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer closeAll()

	agg := portfolio.NewAggregator(reg, nil, zap.NewNop().Sugar())
	h := NewBotHandlers(reg, agg, Config{RequestTimeout: time.Second}, zap.NewNop().Sugar())

	text, ok := h.query(7, chain.MainnetID, wallet, true)
	require.True(t, ok)
	assert.Contains(t, text, "Found 5 positions")
	assert.Contains(t, text, "1. Aave V3\n")
	assert.Contains(t, text, "5. Uniswap V3 LP (#67890)")

	text, ok = h.query(7, chain.MainnetID, common.Address{}, false)
	require.True(t, ok)
	assert.Contains(t, text, "No wallet connected")
}

func TestPruneSessionsKeepsActiveChats(t *testing.T) {
	source := newGatedSource()
	h := newHandlers(source)

	idle := h.session(1)
	busy := make(chan bool, 1)
	go func() {
		_, ok := h.query(2, chain.MainnetID, wallet, true)
		busy <- ok
	}()
	<-source.started

	// everything counts as idle; only the chat without a request in flight goes
	assert.Equal(t, 1, h.pruneSessions(time.Now().Add(time.Hour)))
	assert.NotSame(t, idle, h.session(1))

	close(source.release)
	assert.True(t, <-busy)

	h.session(3)
	assert.Equal(t, 0, h.pruneSessions(time.Now().Add(-time.Minute)))
}
