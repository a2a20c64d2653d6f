package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type handlerKey struct {
	to       common.Address
	selector string
}

type handler struct {
	method abi.Method
	fn     func(args []interface{}) ([]interface{}, error)
}

// fakeChain answers eth_call by ABI selector and records broadcasts.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	chainID     *big.Int
	nonce       uint64
	gasPrice    *big.Int
	gasEstimate uint64
	estimateErr error
	sendErr     error
	blockErr    error

	handlers  map[handlerKey]handler
	callBlock []*big.Int
	estimated []ethereum.CallMsg
	sent      []*types.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		head:        50_000_000,
		chainID:     big.NewInt(137),
		gasPrice:    big.NewInt(30_000_000_000),
		gasEstimate: 150_000,
		handlers:    make(map[handlerKey]handler),
	}
}

func (f *fakeChain) on(to common.Address, contract abi.ABI, method string, fn func(args []interface{}) ([]interface{}, error)) {
	m := contract.Methods[method]
	f.handlers[handlerKey{to: to, selector: hex.EncodeToString(m.ID)}] = handler{method: m, fn: fn}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.callBlock = append(f.callBlock, block)
	f.mu.Unlock()
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, nil
	}
	h, ok := f.handlers[handlerKey{to: *msg.To, selector: hex.EncodeToString(msg.Data[:4])}]
	if !ok {
		return nil, nil
	}
	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(out...)
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.head, f.blockErr }

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimated = append(f.estimated, msg)
	return f.gasEstimate, f.estimateErr
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

// revertError mimics the JSON-RPC error geth returns for a reverted call.
type revertError struct{ reason string }

func (e revertError) Error() string          { return "execution reverted: " + e.reason }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return "0x08c379a0" }
