package uniswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol ids
const (
	V2ProtocolID = "uniswap-v2-eth"
	V3ProtocolID = "uniswap-v3-eth"
)

// V3 contract addresses
var (
	// Uniswap V3 NFT Position Manager contract address
	V3PositionManagerAddress = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")

	// Uniswap V3 Factory contract address
	V3FactoryAddress = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// DefaultV2Pairs is the seed allow-list of Uniswap V2 pairs on Ethereum mainnet
var DefaultV2Pairs = []common.Address{
	common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), // WETH/USDC
	common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"), // WETH/USDT
	common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11"), // WETH/DAI
	common.HexToAddress("0xBb2b8038a1640196FbE3e38816F3e67Cba72D940"), // WETH/WBTC
	common.HexToAddress("0xd3d2e2692501a5c9ca623199d38826e513033a17"), // WETH/UNI
	common.HexToAddress("0xa2107FA5B38d9bbd2C461D6EdF11B11A50F6b974"), // WETH/LINK
	common.HexToAddress("0xdfc14d2af169b0d36c4eff567ada9b2e0cae044f"), // WETH/AAVE
	common.HexToAddress("0x3dA1313aE46132A397D90d95B1424A9A7e3e0fCE"), // WETH/CRV
	common.HexToAddress("0xc2adda861f89bbb333c90c492cb837741916a225"), // WETH/MKR
}

// MaxV3Positions caps NFT enumeration per query
const MaxV3Positions = 50

// nftPosition mirrors NonfungiblePositionManager.positions, in output order.
type nftPosition struct {
	Nonce                    *big.Int
	Operator                 common.Address
	Token0                   common.Address
	Token1                   common.Address
	Fee                      *big.Int
	TickLower                *big.Int
	TickUpper                *big.Int
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

// empty reports whether the NFT holds neither liquidity nor uncollected fees
func (p nftPosition) empty() bool {
	return p.Liquidity.Sign() == 0 && p.TokensOwed0.Sign() == 0 && p.TokensOwed1.Sign() == 0
}

type slot0 struct {
	SqrtPriceX96               *big.Int
	Tick                       *big.Int
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

type reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}
