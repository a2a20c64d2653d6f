package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenReader reads ERC-20 state.
type TokenReader struct {
	caller Caller
}

// NewTokenReader wraps a Caller.
func NewTokenReader(c Caller) *TokenReader { return &TokenReader{caller: c} }

// BalanceOf returns owner's balance of token in base units. Zero is a valid balance.
func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := call(ctx, r.caller, nil, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, err := bigAt(values, 0)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return balance, nil
}

// Decimals returns the token's decimal scale.
func (r *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := call(ctx, r.caller, nil, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals %s: unexpected type %T", token.Hex(), values[0])
	}
	return d, nil
}
