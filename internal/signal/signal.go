// Package signal derives the moving-average price signal consumed by the strategy layer.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultLookbackDays is the trailing window used when none is configured.
const DefaultLookbackDays = 20

const averagePrecision = 18

// ErrDataUnavailable reports that the price source could not supply enough history.
var ErrDataUnavailable = errors.New("price data unavailable")

// Sample is one closed period from the price-history source.
type Sample struct {
	Timestamp int64 // unix seconds at period open
	Close     decimal.Decimal
}

// PriceSignal pairs the latest close with the trailing mean of the same sample set.
type PriceSignal struct {
	Latest  decimal.Decimal
	Average decimal.Decimal
	Samples int
	From    int64
	To      int64
}

// Position returns -1, 0 or +1 when the latest price is below, at or above the average.
func (s PriceSignal) Position() int { return s.Latest.Cmp(s.Average) }

// History fetches daily close samples covering a trailing window.
type History interface {
	Closes(ctx context.Context, lookbackDays int) ([]Sample, error)
}

// Compute fetches history and reduces it to a PriceSignal.
// The returned window is not checked against lookbackDays; sources may return less.
func Compute(ctx context.Context, history History, lookbackDays int) (PriceSignal, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	samples, err := history.Closes(ctx, lookbackDays)
	if err != nil {
		return PriceSignal{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return FromSamples(samples)
}

// FromSamples computes the signal from samples in any order.
func FromSamples(samples []Sample) (PriceSignal, error) {
	if len(samples) < 2 {
		return PriceSignal{}, fmt.Errorf("%w: need at least 2 samples, got %d", ErrDataUnavailable, len(samples))
	}
	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	total := decimal.Zero
	for _, s := range ordered {
		total = total.Add(s.Close)
	}
	last := ordered[len(ordered)-1]
	return PriceSignal{
		Latest:  last.Close,
		Average: total.DivRound(decimal.NewFromInt(int64(len(ordered))), averagePrecision),
		Samples: len(ordered),
		From:    ordered[0].Timestamp,
		To:      last.Timestamp,
	}, nil
}
