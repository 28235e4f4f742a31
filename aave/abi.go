package aave

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/korjavin/defiportfolio/chain"
)

// PoolABI covers the account view and the four user actions of the Aave V3 Pool
var PoolABI = chain.MustParseABI(`[
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData","outputs":[
		{"name":"totalCollateralBase","type":"uint256"},
		{"name":"totalDebtBase","type":"uint256"},
		{"name":"availableBorrowsBase","type":"uint256"},
		{"name":"currentLiquidationThreshold","type":"uint256"},
		{"name":"ltv","type":"uint256"},
		{"name":"healthFactor","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"interestRateMode","type":"uint256"},{"name":"referralCode","type":"uint16"},{"name":"onBehalfOf","type":"address"}],"name":"borrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"interestRateMode","type":"uint256"},{"name":"onBehalfOf","type":"address"}],"name":"repay","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`)

// DataProviderABI covers reserve enumeration on the Aave V3 protocol data provider
var DataProviderABI = chain.MustParseABI(`[
	{"inputs":[],"name":"getAllReservesTokens","outputs":[{"components":[
		{"name":"symbol","type":"string"},
		{"name":"tokenAddress","type":"address"}
	],"name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],"name":"getUserReserveData","outputs":[
		{"name":"currentATokenBalance","type":"uint256"},
		{"name":"currentStableDebt","type":"uint256"},
		{"name":"currentVariableDebt","type":"uint256"},
		{"name":"principalStableDebt","type":"uint256"},
		{"name":"scaledVariableDebt","type":"uint256"},
		{"name":"stableBorrowRate","type":"uint256"},
		{"name":"liquidityRate","type":"uint256"},
		{"name":"stableRateLastUpdated","type":"uint40"},
		{"name":"usageAsCollateralEnabled","type":"bool"}
	],"stateMutability":"view","type":"function"}
]`)

type accountData struct {
	TotalCollateralBase         *big.Int
	TotalDebtBase               *big.Int
	AvailableBorrowsBase        *big.Int
	CurrentLiquidationThreshold *big.Int
	Ltv                         *big.Int
	HealthFactor                *big.Int
}

// reserveToken fields follow the tuple component order
type reserveToken struct {
	Symbol       string
	TokenAddress common.Address
}

type userReserveData struct {
	CurrentATokenBalance     *big.Int
	CurrentStableDebt        *big.Int
	CurrentVariableDebt      *big.Int
	PrincipalStableDebt      *big.Int
	ScaledVariableDebt       *big.Int
	StableBorrowRate         *big.Int
	LiquidityRate            *big.Int
	StableRateLastUpdated    *big.Int
	UsageAsCollateralEnabled bool
}
