package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/dex"
)

// DefaultFeeTiers are the Uniswap v3 fee tiers probed when none are configured.
var DefaultFeeTiers = []uint32{500, 3000, 10000}

var errNoPool = errors.New("pool not deployed or not initialized")

// DirectQuoter prices single-hop swaps by reading pool state and simulating QuoterV2.
type DirectQuoter struct {
	reader   ChainReader
	factory  common.Address
	quoter   common.Address
	feeTiers []uint32
	now      func() time.Time
	log      zerolog.Logger
}

// NewDirectQuoter builds a quoter over the given factory and QuoterV2 contracts.
func NewDirectQuoter(reader ChainReader, factory, quoter common.Address, feeTiers []uint32, log zerolog.Logger) *DirectQuoter {
	if len(feeTiers) == 0 {
		feeTiers = DefaultFeeTiers
	}
	return &DirectQuoter{
		reader:   reader,
		factory:  factory,
		quoter:   quoter,
		feeTiers: feeTiers,
		now:      time.Now,
		log:      log,
	}
}

// Quote probes each fee tier's pool at the current head block and keeps the best output.
func (q *DirectQuoter) Quote(ctx context.Context, from, to dex.Asset, amountIn *big.Int) (*dex.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", dex.ErrQuoteUnavailable)
	}
	head, err := q.reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", dex.ErrQuoteUnavailable, err)
	}
	block := new(big.Int).SetUint64(head)
	sampledAt := q.now()

	var best *dex.Quote
	for _, fee := range q.feeTiers {
		pool, err := q.readPool(ctx, block, from.Address, to.Address, fee)
		if errors.Is(err, errNoPool) {
			q.log.Debug().Uint32("fee", fee).Str("from", from.Symbol).Str("to", to.Symbol).Msg("no pool for fee tier")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dex.ErrQuoteUnavailable, err)
		}

		out, gas, err := q.simulate(ctx, block, pool, amountIn)
		if errors.Is(err, dex.ErrCallReverted) {
			q.log.Debug().Err(err).Str("pool", pool.Address.Hex()).Uint32("fee", fee).Msg("quoter reverted for pool")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dex.ErrQuoteUnavailable, err)
		}
		if out.Sign() <= 0 {
			continue
		}
		if best == nil || out.Cmp(best.ExpectedOut) > 0 {
			best = &dex.Quote{
				Route:       dex.Route{Source: dex.SourceDirect, Pools: []dex.Pool{pool}},
				AmountIn:    new(big.Int).Set(amountIn),
				ExpectedOut: out,
				GasEstimate: gas,
				BlockNumber: head,
				SampledAt:   sampledAt,
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no %s/%s pool with liquidity across fee tiers %v", dex.ErrNoRoute, from.Symbol, to.Symbol, q.feeTiers)
	}
	return best, nil
}

func (q *DirectQuoter) readPool(ctx context.Context, block *big.Int, tokenIn, tokenOut common.Address, fee uint32) (dex.Pool, error) {
	values, err := call(ctx, q.reader, block, q.factory, factoryABI, "getPool", tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return dex.Pool{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return dex.Pool{}, fmt.Errorf("getPool: unexpected type %T", values[0])
	}
	if addr == (common.Address{}) {
		return dex.Pool{}, errNoPool
	}

	slot0, err := call(ctx, q.reader, block, addr, poolABI, "slot0")
	if err != nil {
		return dex.Pool{}, err
	}
	sqrtPrice, err := bigAt(slot0, 0)
	if err != nil {
		return dex.Pool{}, fmt.Errorf("slot0 %s: %w", addr.Hex(), err)
	}
	tick, err := bigAt(slot0, 1)
	if err != nil {
		return dex.Pool{}, fmt.Errorf("slot0 %s: %w", addr.Hex(), err)
	}
	if sqrtPrice.Sign() == 0 {
		return dex.Pool{}, errNoPool
	}

	liq, err := call(ctx, q.reader, block, addr, poolABI, "liquidity")
	if err != nil {
		return dex.Pool{}, err
	}
	liquidity, err := bigAt(liq, 0)
	if err != nil {
		return dex.Pool{}, fmt.Errorf("liquidity %s: %w", addr.Hex(), err)
	}
	if liquidity.Sign() == 0 {
		return dex.Pool{}, errNoPool
	}

	return dex.Pool{
		Address:      addr,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		Fee:          fee,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         int32(tick.Int64()),
	}, nil
}

type quoteSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (q *DirectQuoter) simulate(ctx context.Context, block *big.Int, pool dex.Pool, amountIn *big.Int) (*big.Int, uint64, error) {
	params := quoteSingleParams{
		TokenIn:           pool.TokenIn,
		TokenOut:          pool.TokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(pool.Fee)),
		SqrtPriceLimitX96: new(big.Int),
	}
	values, err := call(ctx, q.reader, block, q.quoter, quoterABI, "quoteExactInputSingle", params)
	if err != nil {
		return nil, 0, err
	}
	out, err := bigAt(values, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("quoteExactInputSingle: %w", err)
	}
	var gas uint64
	if est, err := bigAt(values, 3); err == nil && est.IsUint64() {
		gas = est.Uint64()
	}
	return out, gas, nil
}
