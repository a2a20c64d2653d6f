// Package strategy decides which rebalancing legs a price signal warrants.
package strategy

import (
	"math/big"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/risk"
	"github.com/pooleja/ts-trader/internal/signal"
)

// Leg is one swap direction between the base and quote asset.
type Leg struct {
	Name      string
	Direction risk.Direction
	From      dex.Asset
	To        dex.Asset
}

// Inputs bundles the reads a decision depends on.
type Inputs struct {
	Signal       signal.PriceSignal
	BaseBalance  *big.Int
	QuoteBalance *big.Int
}

// Decision says whether a leg should trade and why.
type Decision struct {
	Leg    Leg
	Trade  bool
	Reason string
}

// MovingAverage exits the base asset when price trades under its average and
// re-enters when price trades over it. Both comparisons are strict.
type MovingAverage struct {
	sell Leg
	buy  Leg
}

// NewMovingAverage builds the two legs for a base/quote pair.
func NewMovingAverage(base, quote dex.Asset) *MovingAverage {
	return &MovingAverage{
		sell: Leg{Name: base.Symbol + "->" + quote.Symbol, Direction: risk.SellBase, From: base, To: quote},
		buy:  Leg{Name: quote.Symbol + "->" + base.Symbol, Direction: risk.BuyBase, From: quote, To: base},
	}
}

// Name returns the identifier for logging.
func (m *MovingAverage) Name() string { return "MovingAverage" }

// Decide evaluates the sell leg, then the buy leg, independently of each other.
func (m *MovingAverage) Decide(in Inputs) []Decision {
	pos := in.Signal.Position()
	return []Decision{
		decide(m.sell, in.BaseBalance, pos < 0, "price below average", "price not below average"),
		decide(m.buy, in.QuoteBalance, pos > 0, "price above average", "price not above average"),
	}
}

func decide(leg Leg, balance *big.Int, triggered bool, yes, no string) Decision {
	if balance == nil || balance.Sign() <= 0 {
		return Decision{Leg: leg, Reason: leg.From.Symbol + " balance is zero"}
	}
	if !triggered {
		return Decision{Leg: leg, Reason: no}
	}
	return Decision{Leg: leg, Trade: true, Reason: yes}
}
