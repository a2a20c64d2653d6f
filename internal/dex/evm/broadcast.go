package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/execution"
)

// gas limit = estimate * gasBufferNum / gasBufferDen
const (
	gasBufferNum = 12
	gasBufferDen = 10
)

// SignedSwap is a router call signed by the wallet and not yet broadcast.
type SignedSwap struct {
	Tx       *types.Transaction
	Calldata []byte
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    uint64
	Deadline int64
}

// Broadcaster signs router swaps locally and submits them over RPC.
type Broadcaster struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	router  common.Address
	chainID *big.Int
	dryRun  bool
	log     zerolog.Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithDryRun signs swaps but never sends them.
func WithDryRun(dry bool) BroadcasterOption {
	return func(b *Broadcaster) { b.dryRun = dry }
}

// NewBroadcaster binds a signing key to a router on a chain.
func NewBroadcaster(backend Backend, key *ecdsa.PrivateKey, router common.Address, chainID *big.Int, log zerolog.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		backend: backend,
		key:     key,
		from:    AddressOf(key),
		router:  router,
		chainID: new(big.Int).Set(chainID),
		log:     log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Address returns the signing account.
func (b *Broadcaster) Address() common.Address { return b.from }

// Build encodes, gas-prices and signs a swap. The returned error is classified via Classify.
func (b *Broadcaster) Build(ctx context.Context, req execution.SwapRequest) (*SignedSwap, error) {
	calldata, err := SwapCalldata(req.Route, b.from, req.AmountIn, req.MinimumOut, req.Deadline)
	if err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}

	nonce, err := b.backend.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", Classify(err))
	}
	gasPrice := req.GasPrice
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		if gasPrice, err = b.backend.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", Classify(err))
		}
	}

	value := new(big.Int)
	estimate, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     b.from,
		To:       &b.router,
		GasPrice: gasPrice,
		Value:    value,
		Data:     calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", Classify(err))
	}
	if req.GasHint > estimate {
		estimate = req.GasHint
	}
	gas := estimate * gasBufferNum / gasBufferDen

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &b.router,
		Value:    value,
		Data:     calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return &SignedSwap{
		Tx:       signed,
		Calldata: calldata,
		To:       b.router,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Nonce:    nonce,
		Deadline: req.Deadline,
	}, nil
}

// Submit builds the swap and broadcasts it once. It returns right after the node accepts the transaction.
func (b *Broadcaster) Submit(ctx context.Context, req execution.SwapRequest) (*execution.Submission, error) {
	swap, err := b.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	sub := &execution.Submission{
		TxHash:   swap.Tx.Hash(),
		Nonce:    swap.Nonce,
		Gas:      swap.Gas,
		GasPrice: swap.GasPrice,
		DryRun:   b.dryRun,
	}
	if b.dryRun {
		b.log.Warn().Str("tx", sub.TxHash.Hex()).Msg("dry run: signed swap not broadcast")
		return sub, nil
	}
	if err := b.backend.SendTransaction(ctx, swap.Tx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", Classify(err))
	}
	return sub, nil
}
