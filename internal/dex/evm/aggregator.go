package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/dex"
)

// AggregatorQuoter delegates route search to a routing-API style service that
// scores paths across pools and fee tiers and returns a gas-adjusted quote.
type AggregatorQuoter struct {
	Base    string
	ChainID int64
	Http    *http.Client
	now     func() time.Time
	log     zerolog.Logger
}

type aggregatorToken struct {
	Address string `json:"address"`
}

type aggregatorPool struct {
	Type         string          `json:"type"`
	Address      string          `json:"address"`
	TokenIn      aggregatorToken `json:"tokenIn"`
	TokenOut     aggregatorToken `json:"tokenOut"`
	Fee          string          `json:"fee"`
	Liquidity    string          `json:"liquidity"`
	SqrtRatioX96 string          `json:"sqrtRatioX96"`
	TickCurrent  string          `json:"tickCurrent"`
}

type aggregatorQuote struct {
	BlockNumber      string             `json:"blockNumber"`
	Amount           string             `json:"amount"`
	Quote            string             `json:"quote"`
	QuoteGasAdjusted string             `json:"quoteGasAdjusted"`
	GasPriceWei      string             `json:"gasPriceWei"`
	GasUseEstimate   string             `json:"gasUseEstimate"`
	Route            [][]aggregatorPool `json:"route"`
}

// NewAggregatorQuoter builds a quoter against base, e.g. a self-hosted routing API.
func NewAggregatorQuoter(base string, chainID int64, log zerolog.Logger) *AggregatorQuoter {
	return &AggregatorQuoter{
		Base:    strings.TrimSuffix(base, "/"),
		ChainID: chainID,
		Http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
		log:     log,
	}
}

// Quote asks the service for the best exact-input route. Only single-path v3 routes are accepted.
func (a *AggregatorQuoter) Quote(ctx context.Context, from, to dex.Asset, amountIn *big.Int) (*dex.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", dex.ErrQuoteUnavailable)
	}
	chain := strconv.FormatInt(a.ChainID, 10)
	q := url.Values{}
	q.Set("tokenInAddress", from.Address.Hex())
	q.Set("tokenInChainId", chain)
	q.Set("tokenOutAddress", to.Address.Hex())
	q.Set("tokenOutChainId", chain)
	q.Set("amount", amountIn.String())
	q.Set("type", "exactIn")
	q.Set("protocols", "v3")
	u := a.Base + "/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", dex.ErrQuoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.Http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http do: %v", dex.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: aggregator has no %s/%s route", dex.ErrNoRoute, from.Symbol, to.Symbol)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: aggregator quote status %d", dex.ErrQuoteUnavailable, resp.StatusCode)
	}

	var out aggregatorQuote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", dex.ErrQuoteUnavailable, err)
	}
	quote, err := a.convert(out, from, to, amountIn)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("route", quote.Route.String()).Str("expected_out", quote.ExpectedOut.String()).Msg("aggregator quote")
	return quote, nil
}

func (a *AggregatorQuoter) convert(in aggregatorQuote, from, to dex.Asset, amountIn *big.Int) (*dex.Quote, error) {
	if len(in.Route) == 0 || len(in.Route[0]) == 0 {
		return nil, fmt.Errorf("%w: aggregator returned an empty route", dex.ErrNoRoute)
	}
	if len(in.Route) > 1 {
		return nil, fmt.Errorf("%w: split route across %d paths is not executable as one swap", dex.ErrQuoteUnavailable, len(in.Route))
	}

	pools := make([]dex.Pool, 0, len(in.Route[0]))
	for i, p := range in.Route[0] {
		pool, err := convertPool(p)
		if err != nil {
			return nil, fmt.Errorf("%w: hop %d: %v", dex.ErrQuoteUnavailable, i, err)
		}
		pools = append(pools, pool)
	}
	route := dex.Route{Source: dex.SourceAggregator, Pools: pools}
	if err := route.Validate(from.Address, to.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", dex.ErrQuoteUnavailable, err)
	}

	expected, ok := parseBig(in.Quote)
	if !ok || expected.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bad quote amount %q", dex.ErrQuoteUnavailable, in.Quote)
	}
	quote := &dex.Quote{
		Route:       route,
		AmountIn:    new(big.Int).Set(amountIn),
		ExpectedOut: expected,
		SampledAt:   a.now(),
	}
	if v, ok := parseBig(in.QuoteGasAdjusted); ok {
		quote.GasAdjustedOut = v
	}
	if v, ok := parseBig(in.GasPriceWei); ok && v.Sign() > 0 {
		quote.GasPriceWei = v
	}
	if v, err := strconv.ParseUint(in.GasUseEstimate, 10, 64); err == nil {
		quote.GasEstimate = v
	}
	if v, err := strconv.ParseUint(in.BlockNumber, 10, 64); err == nil {
		quote.BlockNumber = v
	}
	return quote, nil
}

func convertPool(p aggregatorPool) (dex.Pool, error) {
	if p.Type != "" && p.Type != "v3-pool" {
		return dex.Pool{}, fmt.Errorf("unsupported pool type %q", p.Type)
	}
	for _, a := range []string{p.Address, p.TokenIn.Address, p.TokenOut.Address} {
		if !common.IsHexAddress(a) {
			return dex.Pool{}, fmt.Errorf("bad address %q", a)
		}
	}
	fee, err := strconv.ParseUint(p.Fee, 10, 32)
	if err != nil {
		return dex.Pool{}, fmt.Errorf("bad fee %q", p.Fee)
	}
	pool := dex.Pool{
		Address:  common.HexToAddress(p.Address),
		TokenIn:  common.HexToAddress(p.TokenIn.Address),
		TokenOut: common.HexToAddress(p.TokenOut.Address),
		Fee:      uint32(fee),
	}
	if v, ok := parseBig(p.SqrtRatioX96); ok {
		pool.SqrtPriceX96 = v
	}
	if v, ok := parseBig(p.Liquidity); ok {
		pool.Liquidity = v
	}
	if v, err := strconv.ParseInt(p.TickCurrent, 10, 32); err == nil {
		pool.Tick = int32(v)
	}
	return pool, nil
}

func parseBig(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}
