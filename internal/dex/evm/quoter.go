package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/metrics"
)

// Routing strategies accepted by NewQuoter.
const (
	StrategyDirect     = "direct"
	StrategyAggregator = "aggregator"
)

// QuoterConfig selects and parameterizes a route quoter.
type QuoterConfig struct {
	Strategy      string
	Factory       common.Address
	Quoter        common.Address
	FeeTiers      []uint32
	AggregatorURL string
	ChainID       int64
}

// NewQuoter returns the configured dex.Quoter variant.
func NewQuoter(cfg QuoterConfig, reader ChainReader, log zerolog.Logger) (dex.Quoter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyDirect:
		return instrumented{source: dex.SourceDirect, inner: NewDirectQuoter(reader, cfg.Factory, cfg.Quoter, cfg.FeeTiers, log)}, nil
	case StrategyAggregator:
		if cfg.AggregatorURL == "" {
			return nil, errors.New("aggregator strategy requires a base url")
		}
		return instrumented{source: dex.SourceAggregator, inner: NewAggregatorQuoter(cfg.AggregatorURL, cfg.ChainID, log)}, nil
	default:
		return nil, fmt.Errorf("unknown router strategy %q", cfg.Strategy)
	}
}

type instrumented struct {
	source string
	inner  dex.Quoter
}

func (i instrumented) Quote(ctx context.Context, from, to dex.Asset, amountIn *big.Int) (*dex.Quote, error) {
	q, err := i.inner.Quote(ctx, from, to, amountIn)
	result := "ok"
	switch {
	case errors.Is(err, dex.ErrNoRoute):
		result = "no_route"
	case err != nil:
		result = "unavailable"
	}
	metrics.QuotesTotal.WithLabelValues(i.source, result).Inc()
	return q, err
}
