package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pooleja/ts-trader/internal/dex"
)

// EncodePath packs a route as token(20) | fee(3) | token(20) ... for exactInput.
func EncodePath(route dex.Route) ([]byte, error) {
	if route.Empty() {
		return nil, dex.ErrNoRoute
	}
	path := make([]byte, 0, common.AddressLength+route.Hops()*(3+common.AddressLength))
	for i, pool := range route.Pools {
		if i > 0 && route.Pools[i-1].TokenOut != pool.TokenIn {
			return nil, fmt.Errorf("route hop %d is not contiguous", i)
		}
		if pool.Fee >= 1<<24 {
			return nil, fmt.Errorf("fee %d overflows uint24", pool.Fee)
		}
		path = append(path, pool.TokenIn.Bytes()...)
		path = append(path, byte(pool.Fee>>16), byte(pool.Fee>>8), byte(pool.Fee))
	}
	path = append(path, route.Pools[route.Hops()-1].TokenOut.Bytes()...)
	return path, nil
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// SwapCalldata encodes multicall(deadline, [exactInput*]) for SwapRouter02.
// The router enforces both minOut and deadline on-chain.
func SwapCalldata(route dex.Route, recipient common.Address, amountIn, minOut *big.Int, deadline int64) ([]byte, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errors.New("swap amount must be positive")
	}
	if minOut == nil || minOut.Sign() < 0 {
		return nil, errors.New("minimum out must be non-negative")
	}
	if deadline <= 0 {
		return nil, errors.New("deadline must be set")
	}

	var inner []byte
	var err error
	switch route.Hops() {
	case 0:
		return nil, dex.ErrNoRoute
	case 1:
		pool := route.Pools[0]
		inner, err = routerABI.Pack("exactInputSingle", exactInputSingleParams{
			TokenIn:           pool.TokenIn,
			TokenOut:          pool.TokenOut,
			Fee:               new(big.Int).SetUint64(uint64(pool.Fee)),
			Recipient:         recipient,
			AmountIn:          amountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		})
	default:
		path, perr := EncodePath(route)
		if perr != nil {
			return nil, perr
		}
		inner, err = routerABI.Pack("exactInput", exactInputParams{
			Path:             path,
			Recipient:        recipient,
			AmountIn:         amountIn,
			AmountOutMinimum: minOut,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("pack swap: %w", err)
	}

	data, err := routerABI.Pack("multicall", big.NewInt(deadline), [][]byte{inner})
	if err != nil {
		return nil, fmt.Errorf("pack multicall: %w", err)
	}
	return data, nil
}
