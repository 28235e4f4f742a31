package mock

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korjavin/defiportfolio/chain"
)

func TestMockAdaptersEmitValuedPositions(t *testing.T) {
	for _, chainID := range []uint64{chain.MainnetID, chain.SepoliaID} {
		for _, adapter := range All(chainID) {
			d := adapter.Descriptor()
			t.Run(d.ID, func(t *testing.T) {
				assert.Equal(t, chainID, d.ChainID)

				before := time.Now()
				positions, err := adapter.UserPositions(context.Background(), common.Address{})
				require.NoError(t, err)
				require.NotEmpty(t, positions)

				for _, p := range positions {
					assert.Equal(t, d.ID, p.ProtocolID)
					assert.Equal(t, chainID, p.ChainID)
					assert.True(t, p.HasValue())
					assert.False(t, p.UpdatedAt.Before(before))
					for _, a := range p.Supplied {
						assert.Equal(t, chainID, a.Token.ChainID)
					}
				}
			})
		}
	}
}

func TestMockAdapterReturnsFreshSlices(t *testing.T) {
	adapter := AaveEthereum()

	first, err := adapter.UserPositions(context.Background(), common.Address{})
	require.NoError(t, err)
	first[0].Supplied[0].Raw.SetInt64(0)

	second, err := adapter.UserPositions(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), second[0].Supplied[0].Raw.Int64())
}

func TestMockAdapterLatencyHonorsContext(t *testing.T) {
	adapter := CompoundEthereum()
	adapter.Latency = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.UserPositions(ctx, common.Address{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllUnknownChain(t *testing.T) {
	assert.Empty(t, All(137))
}
