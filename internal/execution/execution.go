// Package execution turns a quote into a bounded swap and hands it to a submitter.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/metrics"
	"github.com/pooleja/ts-trader/internal/risk"
)

const bpsDenominator = 10_000

var (
	// ErrSubmissionFailed means the transaction never reached the network; retry on the next run is safe.
	ErrSubmissionFailed = errors.New("swap submission failed")
	// ErrExecutionReverted means the swap reverts on-chain; do not retry blindly.
	ErrExecutionReverted = errors.New("swap execution reverted")
)

// SwapRequest is a fully bounded exact-input swap ready to be signed.
type SwapRequest struct {
	Route      dex.Route
	AmountIn   *big.Int
	MinimumOut *big.Int
	Deadline   int64
	GasPrice   *big.Int // optional hint from the quote
	GasHint    uint64   // quoter gas estimate; a floor for the node estimate
}

// Submission describes a signed transaction handed to the node.
type Submission struct {
	TxHash   common.Hash
	Nonce    uint64
	Gas      uint64
	GasPrice *big.Int
	DryRun   bool
}

// Submitter signs and broadcasts swaps. Errors are tagged with dex.ErrCallReverted or dex.ErrTransport.
type Submitter interface {
	Submit(ctx context.Context, req SwapRequest) (*Submission, error)
}

// Receipt is returned as soon as the transaction is broadcast; it does not imply confirmation.
type Receipt struct {
	TxHash      common.Hash
	Leg         string
	AmountIn    *big.Int
	ExpectedOut *big.Int
	MinimumOut  *big.Int
	Deadline    int64
	DryRun      bool
}

// MinimumOut returns expectedOut * (10000 - bps) / 10000, truncated.
func MinimumOut(expectedOut *big.Int, bps int) (*big.Int, error) {
	if expectedOut == nil || expectedOut.Sign() <= 0 {
		return nil, errors.New("expected out must be positive")
	}
	if bps < 0 || bps > bpsDenominator {
		return nil, fmt.Errorf("slippage %d bps outside [0, %d]", bps, bpsDenominator)
	}
	out := new(big.Int).Mul(expectedOut, big.NewInt(int64(bpsDenominator-bps)))
	return out.Quo(out, big.NewInt(bpsDenominator)), nil
}

// Executor applies slippage and deadline bounds and submits swaps.
type Executor struct {
	log       zerolog.Logger
	submitter Submitter
	quoteTTL  time.Duration
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithQuoteTTL refuses quotes older than ttl at execution time.
func WithQuoteTTL(ttl time.Duration) Option {
	return func(e *Executor) { e.quoteTTL = ttl }
}

// WithClock injects the time source for deadlines and staleness.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor wraps a submitter.
func NewExecutor(log zerolog.Logger, submitter Submitter, opts ...Option) *Executor {
	e := &Executor{log: log, submitter: submitter, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute submits intent along quote's route. Nothing is retried.
func (e *Executor) Execute(ctx context.Context, quote *dex.Quote, intent risk.Intent, slippageBps, deadlineSeconds int) (*Receipt, error) {
	leg := intent.From.Symbol + "->" + intent.To.Symbol
	if quote == nil || quote.Route.Empty() {
		return nil, fmt.Errorf("%s: %w", leg, dex.ErrNoRoute)
	}
	if intent.Amount == nil || quote.AmountIn == nil || intent.Amount.Cmp(quote.AmountIn) != 0 {
		return nil, fmt.Errorf("%s: %w: quote amount does not match intent", leg, dex.ErrQuoteUnavailable)
	}
	now := e.now()
	if quote.Stale(now, e.quoteTTL) {
		return nil, fmt.Errorf("%s: %w: quote sampled %s ago", leg, dex.ErrQuoteUnavailable, now.Sub(quote.SampledAt).Round(time.Second))
	}
	if deadlineSeconds <= 0 {
		return nil, fmt.Errorf("%s: deadline must be positive, got %d", leg, deadlineSeconds)
	}
	minOut, err := MinimumOut(quote.ExpectedOut, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", leg, err)
	}

	req := SwapRequest{
		Route:      quote.Route,
		AmountIn:   intent.Amount,
		MinimumOut: minOut,
		Deadline:   now.Unix() + int64(deadlineSeconds),
		GasPrice:   quote.GasPriceWei,
		GasHint:    quote.GasEstimate,
	}
	sub, err := e.submitter.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, dex.ErrCallReverted) {
			metrics.SwapsTotal.WithLabelValues(leg, "reverted").Inc()
			return nil, fmt.Errorf("%s: %w: %v", leg, ErrExecutionReverted, err)
		}
		metrics.SwapsTotal.WithLabelValues(leg, "submission_failed").Inc()
		return nil, fmt.Errorf("%s: %w: %v", leg, ErrSubmissionFailed, err)
	}

	result := "submitted"
	if sub.DryRun {
		result = "dry_run"
	}
	metrics.SwapsTotal.WithLabelValues(leg, result).Inc()
	e.log.Info().
		Str("leg", leg).
		Str("tx", sub.TxHash.Hex()).
		Str("amount_in", req.AmountIn.String()).
		Str("expected_out", quote.ExpectedOut.String()).
		Str("min_out", minOut.String()).
		Int64("deadline", req.Deadline).
		Uint64("nonce", sub.Nonce).
		Bool("dry_run", sub.DryRun).
		Msg("swap " + result)

	return &Receipt{
		TxHash:      sub.TxHash,
		Leg:         leg,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		ExpectedOut: new(big.Int).Set(quote.ExpectedOut),
		MinimumOut:  minOut,
		Deadline:    req.Deadline,
		DryRun:      sub.DryRun,
	}, nil
}
