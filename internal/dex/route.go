// Package dex defines the venue-neutral swap vocabulary shared by quoters and executors.
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoRoute reports that no liquidity path connects the two assets at the sampled chain state.
	ErrNoRoute = errors.New("no route found")
	// ErrQuoteUnavailable reports a failed or malformed read while quoting, or a quote that went stale.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrCallReverted classifies node errors where the EVM executed the call and it reverted.
	ErrCallReverted = errors.New("call reverted")
	// ErrTransport classifies node errors raised before any execution happened.
	ErrTransport = errors.New("rpc transport error")
)

// Route sources.
const (
	SourceDirect     = "direct"
	SourceAggregator = "aggregator"
)

// Asset identifies an ERC-20 token together with its decimal scale.
type Asset struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// Unit returns 10^decimals, the number of base units in one whole token.
func (a Asset) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Decimals)), nil)
}

func (a Asset) String() string { return a.Symbol }

// Pool is a single concentrated-liquidity pool hop, sampled at quote time.
type Pool struct {
	Address      common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32 // hundredths of a bip, e.g. 500 = 0.05%
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

// Route is an ordered sequence of pools leading from the input to the output token.
type Route struct {
	Source string
	Pools  []Pool
}

// Empty reports whether the route has no hops.
func (r Route) Empty() bool { return len(r.Pools) == 0 }

// Hops returns the number of pools traversed.
func (r Route) Hops() int { return len(r.Pools) }

// Validate checks that hops are contiguous and connect from to to.
func (r Route) Validate(from, to common.Address) error {
	if r.Empty() {
		return ErrNoRoute
	}
	if r.Pools[0].TokenIn != from {
		return fmt.Errorf("route starts at %s, want %s", r.Pools[0].TokenIn.Hex(), from.Hex())
	}
	for i := 1; i < len(r.Pools); i++ {
		if r.Pools[i-1].TokenOut != r.Pools[i].TokenIn {
			return fmt.Errorf("route hop %d is not contiguous", i)
		}
	}
	if last := r.Pools[len(r.Pools)-1]; last.TokenOut != to {
		return fmt.Errorf("route ends at %s, want %s", last.TokenOut.Hex(), to.Hex())
	}
	return nil
}

func (r Route) String() string {
	if r.Empty() {
		return "<empty>"
	}
	parts := make([]string, 0, len(r.Pools))
	for _, p := range r.Pools {
		parts = append(parts, fmt.Sprintf("%s@%d", p.Address.Hex(), p.Fee))
	}
	return r.Source + ":" + strings.Join(parts, ">")
}

// Quote is the expected output of swapping AmountIn along Route at the sampled state.
type Quote struct {
	Route          Route
	AmountIn       *big.Int
	ExpectedOut    *big.Int
	GasAdjustedOut *big.Int // nil when the quoter does not estimate gas
	GasPriceWei    *big.Int // nil when the quoter does not suggest a gas price
	GasEstimate    uint64
	BlockNumber    uint64
	SampledAt      time.Time
}

// Stale reports whether the quote is older than ttl at now. A zero ttl disables the check.
func (q *Quote) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(q.SampledAt) > ttl
}

// Quoter discovers a route between two assets and prices an exact-input swap along it.
type Quoter interface {
	Quote(ctx context.Context, from, to Asset, amountIn *big.Int) (*Quote, error)
}
