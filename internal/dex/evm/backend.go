package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pooleja/ts-trader/internal/dex"
)

// Caller performs read-only eth_call requests.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainReader is a Caller that can also report the head block.
type ChainReader interface {
	Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// Backend is the node surface needed to read state and broadcast swaps. *ethclient.Client satisfies it.
type Backend interface {
	ChainReader
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dial connects to an http(s) or ws(s) JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// IsRevert reports whether a node error means the EVM executed and reverted the call.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "reverted")
}

// Classify tags err with dex.ErrCallReverted or dex.ErrTransport.
func Classify(err error) error {
	if err == nil || errors.Is(err, dex.ErrCallReverted) || errors.Is(err, dex.ErrTransport) {
		return err
	}
	if IsRevert(err) {
		return fmt.Errorf("%w: %w", dex.ErrCallReverted, err)
	}
	return fmt.Errorf("%w: %w", dex.ErrTransport, err)
}

// call packs, executes and unpacks a view call, optionally pinned to block.
func call(ctx context.Context, c Caller, block *big.Int, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), Classify(err))
	}
	values, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, to.Hex(), err)
	}
	return values, nil
}

func bigAt(values []interface{}, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("missing return value %d", i)
	}
	v, ok := values[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("return value %d is %T, want *big.Int", i, values[i])
	}
	return v, nil
}
