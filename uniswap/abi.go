package uniswap

import "github.com/korjavin/defiportfolio/chain"

// PairABI covers the Uniswap V2 pair views used for LP valuation
var PairABI = chain.MustParseABI(`[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getReserves","outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}
	],"stateMutability":"view","type":"function"}
]`)

// PositionManagerABI covers NFT enumeration on the V3 NonfungiblePositionManager
var PositionManagerABI = chain.MustParseABI(`[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"name":"tokenOfOwnerByIndex","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"positions","outputs":[
		{"name":"nonce","type":"uint96"},
		{"name":"operator","type":"address"},
		{"name":"token0","type":"address"},
		{"name":"token1","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"tickLower","type":"int24"},
		{"name":"tickUpper","type":"int24"},
		{"name":"liquidity","type":"uint128"},
		{"name":"feeGrowthInside0LastX128","type":"uint256"},
		{"name":"feeGrowthInside1LastX128","type":"uint256"},
		{"name":"tokensOwed0","type":"uint128"},
		{"name":"tokensOwed1","type":"uint128"}
	],"stateMutability":"view","type":"function"}
]`)

// FactoryABI is the V3 factory pool lookup
var FactoryABI = chain.MustParseABI(`[
	{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`)

// PoolABI is the V3 pool slot0 view
var PoolABI = chain.MustParseABI(`[
	{"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}
	],"stateMutability":"view","type":"function"}
]`)
