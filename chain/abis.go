package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI parses a JSON ABI definition.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// MustParseABI is ParseABI for static definitions.
func MustParseABI(abiJSON string) *abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20ABI covers the metadata and balance views of ERC-20 and ERC-721 tokens.
var ERC20ABI = MustParseABI(`[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`)

// Multicall3ABI is the aggregate3 entry point of Multicall3.
var Multicall3ABI = MustParseABI(`[{
	"inputs":[{"components":[
		{"internalType":"address","name":"target","type":"address"},
		{"internalType":"bool","name":"allowFailure","type":"bool"},
		{"internalType":"bytes","name":"callData","type":"bytes"}
	],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],
	"name":"aggregate3",
	"outputs":[{"components":[
		{"internalType":"bool","name":"success","type":"bool"},
		{"internalType":"bytes","name":"returnData","type":"bytes"}
	],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],
	"stateMutability":"payable","type":"function"
}]`)
