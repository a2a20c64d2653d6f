// Package evm talks to Uniswap-v3 style contracts over an Ethereum JSON-RPC node.
package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20JSON = `[
 {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const factoryJSON = `[
 {"name":"getPool","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"outputs":[{"name":"pool","type":"address"}]}
]`

const poolJSON = `[
 {"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
  {"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},
  {"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},
  {"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}]},
 {"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]}
]`

const quoterV2JSON = `[
 {"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable","inputs":[
  {"name":"params","type":"tuple","components":[
   {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},
   {"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},
   {"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}]}
]`

const swapRouter02JSON = `[
 {"name":"exactInputSingle","type":"function","stateMutability":"payable","inputs":[
  {"name":"params","type":"tuple","components":[
   {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},
   {"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},
   {"name":"sqrtPriceLimitX96","type":"uint160"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"}]},
 {"name":"exactInput","type":"function","stateMutability":"payable","inputs":[
  {"name":"params","type":"tuple","components":[
   {"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},
   {"name":"amountOutMinimum","type":"uint256"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"}]},
 {"name":"multicall","type":"function","stateMutability":"payable","inputs":[
  {"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],
  "outputs":[{"name":"results","type":"bytes[]"}]}
]`

var (
	erc20ABI   = mustParse(erc20JSON)
	factoryABI = mustParse(factoryJSON)
	poolABI    = mustParse(poolJSON)
	quoterABI  = mustParse(quoterV2JSON)
	routerABI  = mustParse(swapRouter02JSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("evm: bad abi: " + err.Error())
	}
	return parsed
}
