// Package risk bounds trade sizes by balance and a notional cap.
package risk

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/pooleja/ts-trader/internal/dex"
)

// ErrInvalidAmount reports a sized amount of zero or less; the caller skips the trade.
var ErrInvalidAmount = errors.New("invalid trade amount")

// Direction says which way value moves between the priced (base) and pricing (quote) asset.
type Direction int

const (
	// SellBase converts the base asset into the quote asset, e.g. WETH -> USDC.
	SellBase Direction = iota + 1
	// BuyBase converts the quote asset into the base asset, e.g. USDC -> WETH.
	BuyBase
)

func (d Direction) String() string {
	switch d {
	case SellBase:
		return "sell_base"
	case BuyBase:
		return "buy_base"
	default:
		return "unknown"
	}
}

// Intent is a sized, not yet quoted, trade.
type Intent struct {
	Direction Direction
	From      dex.Asset
	To        dex.Asset
	Amount    *big.Int
}

// Size returns min(balance, cap) in base units of the source asset.
//
// maxNotional is denominated in the quote asset. For SellBase the cap is
// converted at price and floored; for BuyBase it is scaled by decimals and
// floored. The price is used exactly, only the final quotient is truncated.
func Size(dir Direction, balance *big.Int, maxNotional, price decimal.Decimal, decimals uint8) (*big.Int, error) {
	if balance == nil || balance.Sign() <= 0 {
		return nil, fmt.Errorf("%w: balance is zero", ErrInvalidAmount)
	}
	if maxNotional.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive notional cap %s", ErrInvalidAmount, maxNotional)
	}

	scaled := maxNotional.Shift(int32(decimals)).Rat()
	switch dir {
	case SellBase:
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("%w: non-positive price %s", ErrInvalidAmount, price)
		}
		scaled.Quo(scaled, price.Rat())
	case BuyBase:
	default:
		return nil, fmt.Errorf("%w: unknown direction %d", ErrInvalidAmount, dir)
	}
	limit := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	amount := new(big.Int).Set(balance)
	if limit.Cmp(amount) < 0 {
		amount = limit
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: cap converts to %s base units", ErrInvalidAmount, amount)
	}
	return amount, nil
}

// Limits carries the per-trade notional cap.
type Limits struct {
	MaxNotionalPerTrade decimal.Decimal
}

// Intent sizes a trade from one asset into another at the given price.
func (l Limits) Intent(dir Direction, from, to dex.Asset, balance *big.Int, price decimal.Decimal) (Intent, error) {
	amount, err := Size(dir, balance, l.MaxNotionalPerTrade, price, from.Decimals)
	if err != nil {
		return Intent{}, err
	}
	return Intent{Direction: dir, From: from, To: to, Amount: amount}, nil
}
