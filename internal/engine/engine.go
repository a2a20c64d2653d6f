// Package engine runs one rebalancing cycle: read, decide, then size, quote and execute each leg.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/execution"
	"github.com/pooleja/ts-trader/internal/journal"
	"github.com/pooleja/ts-trader/internal/metrics"
	"github.com/pooleja/ts-trader/internal/risk"
	"github.com/pooleja/ts-trader/internal/signal"
	"github.com/pooleja/ts-trader/internal/strategy"
	"github.com/pooleja/ts-trader/internal/trace"
)

// BalanceReader reads ERC-20 balances. *evm.TokenReader satisfies it.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// SwapExecutor submits a quoted intent. *execution.Executor satisfies it.
type SwapExecutor interface {
	Execute(ctx context.Context, quote *dex.Quote, intent risk.Intent, slippageBps, deadlineSeconds int) (*execution.Receipt, error)
}

// Deps are the collaborators of a run.
type Deps struct {
	Balances BalanceReader
	History  signal.History
	Strategy strategy.Strategy
	Quoter   dex.Quoter
	Executor SwapExecutor
	Journal  journal.Recorder
	Tracer   *trace.Tracer
}

// Params are the per-deployment knobs of a run.
type Params struct {
	Owner        common.Address
	Base         dex.Asset
	Quote        dex.Asset
	LookbackDays int
	SlippageBps  int
	DeadlineSecs int
	Limits       risk.Limits
}

// Engine is the decision orchestrator. An Engine may run many times; runs share no state.
type Engine struct {
	deps   Deps
	params Params
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunID fixes how run identifiers are generated.
func WithRunID(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// New validates the collaborators and builds an engine.
func New(log zerolog.Logger, deps Deps, params Params, opts ...Option) (*Engine, error) {
	switch {
	case deps.Balances == nil:
		return nil, errors.New("engine: balance reader is required")
	case deps.History == nil:
		return nil, errors.New("engine: price history is required")
	case deps.Strategy == nil:
		return nil, errors.New("engine: strategy is required")
	case deps.Quoter == nil:
		return nil, errors.New("engine: quoter is required")
	case deps.Executor == nil:
		return nil, errors.New("engine: executor is required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.Discard
	}
	e := &Engine{
		deps:   deps,
		params: params,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes one cycle. The returned report is never nil; check Report.Failed for the exit code.
func (e *Engine) Run(ctx context.Context) *Report {
	report := &Report{RunID: e.newID(), Final: Idle, States: []State{Idle}}
	ctx, span := e.deps.Tracer.Start(ctx, "rebalance.run", attribute.String("run_id", report.RunID))
	log := trace.Logger(ctx, e.log.With().Str("run_id", report.RunID).Logger())
	defer func() {
		trace.End(span, report.Err)
		metrics.LastRunTimestamp.SetToCurrentTime()
	}()

	base, quote, sig, stage, err := e.read(ctx, report)
	if err != nil {
		report.Err = err
		e.enter(report, Aborted)
		log.Error().Err(err).Str("stage", stage.String()).Msg("run aborted")
		return report
	}
	report.Signal = sig
	report.Balances = Balances{Base: base, Quote: quote}
	log.Info().
		Str("latest", sig.Latest.String()).
		Str("average", sig.Average.String()).
		Int("samples", sig.Samples).
		Str("base_balance", base.String()).
		Str("quote_balance", quote.String()).
		Msg("inputs read")

	e.enter(report, Deciding)
	decisions := e.deps.Strategy.Decide(strategy.Inputs{Signal: sig, BaseBalance: base, QuoteBalance: quote})
	for _, d := range decisions {
		balance := base
		if d.Leg.Direction == risk.BuyBase {
			balance = quote
		}
		result := e.runLeg(ctx, log, report, d, balance, sig)
		report.Legs = append(report.Legs, result)
		e.record(report.RunID, result)
	}

	switch {
	case report.Failed():
		e.enter(report, Aborted)
	case !report.Traded():
		// nothing warranted a trade; aborted but not a failure
		e.enter(report, Aborted)
	default:
		e.enter(report, Done)
	}
	log.Info().Str("final", report.Final.String()).Bool("failed", report.Failed()).Msg("run finished")
	return report
}

// read fetches both balances and the price signal concurrently and joins them.
func (e *Engine) read(ctx context.Context, report *Report) (*big.Int, *big.Int, signal.PriceSignal, State, error) {
	e.enter(report, ReadingBalances)
	e.enter(report, ComputingSignal)

	var (
		base, quote *big.Int
		sig         signal.PriceSignal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := e.deps.Balances.BalanceOf(gctx, e.params.Base.Address, e.params.Owner)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBalanceUnavailable, e.params.Base.Symbol, err)
		}
		base = bal
		return nil
	})
	g.Go(func() error {
		bal, err := e.deps.Balances.BalanceOf(gctx, e.params.Quote.Address, e.params.Owner)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBalanceUnavailable, e.params.Quote.Symbol, err)
		}
		quote = bal
		return nil
	})
	g.Go(func() error {
		spanCtx, span := e.deps.Tracer.Start(gctx, "signal.compute")
		s, err := signal.Compute(spanCtx, e.deps.History, e.params.LookbackDays)
		trace.End(span, err)
		if err != nil {
			return err
		}
		sig = s
		return nil
	})
	if err := g.Wait(); err != nil {
		stage := ComputingSignal
		if errors.Is(err, ErrBalanceUnavailable) {
			stage = ReadingBalances
		}
		return nil, nil, signal.PriceSignal{}, stage, err
	}
	if base == nil || quote == nil {
		return nil, nil, signal.PriceSignal{}, ReadingBalances, fmt.Errorf("%w: empty balance read", ErrBalanceUnavailable)
	}
	return base, quote, sig, Deciding, nil
}

func (e *Engine) runLeg(ctx context.Context, log zerolog.Logger, report *Report, d strategy.Decision, balance *big.Int, sig signal.PriceSignal) (result LegResult) {
	result = LegResult{Leg: d.Leg.Name, Stage: Deciding, Reason: d.Reason}
	ctx, span := e.deps.Tracer.Start(ctx, "leg "+d.Leg.Name, attribute.String("leg", d.Leg.Name))
	log = log.With().Str("leg", d.Leg.Name).Logger()
	defer func() {
		trace.End(span, result.Err)
		metrics.LegsTotal.WithLabelValues(result.Leg, result.Outcome).Inc()
		ev := log.Info()
		if result.Failed() {
			ev = log.Error().Err(result.Err)
		}
		ev.Str("stage", result.Stage.String()).Str("outcome", result.Outcome).Str("reason", result.Reason).Msg("leg result")
	}()

	if !d.Trade {
		result.Outcome = journal.OutcomeNoTrade
		return result
	}

	e.enter(report, Sizing)
	result.Stage = Sizing
	intent, err := e.params.Limits.Intent(d.Leg.Direction, d.Leg.From, d.Leg.To, balance, sig.Latest)
	if err != nil {
		result.Outcome = journal.OutcomeSkipped
		result.Reason = err.Error()
		if !errors.Is(err, risk.ErrInvalidAmount) {
			result.Outcome = journal.OutcomeFailed
			result.Err = &LegError{Leg: d.Leg.Name, Stage: Sizing, Err: err}
		}
		return result
	}
	result.Intent = &intent
	log.Info().Str("amount_in", intent.Amount.String()).Str("unit", d.Leg.From.Symbol+" base units").Msg("trade sized")

	e.enter(report, Quoting)
	result.Stage = Quoting
	quote, err := e.deps.Quoter.Quote(ctx, intent.From, intent.To, intent.Amount)
	if err != nil {
		return e.fail(result, Quoting, err)
	}
	result.Quote = quote
	ev := log.Info().
		Str("route", quote.Route.String()).
		Str("expected_out", quote.ExpectedOut.String()).
		Uint64("block", quote.BlockNumber)
	if quote.GasAdjustedOut != nil {
		ev = ev.Str("gas_adjusted_out", quote.GasAdjustedOut.String())
	}
	if quote.GasPriceWei != nil {
		ev = ev.Str("gas_price_wei", quote.GasPriceWei.String())
	}
	ev.Msg("quote")

	e.enter(report, Executing)
	result.Stage = Executing
	receipt, err := e.deps.Executor.Execute(ctx, quote, intent, e.params.SlippageBps, e.params.DeadlineSecs)
	if err != nil {
		return e.fail(result, Executing, err)
	}
	result.Receipt = receipt
	result.Outcome = journal.OutcomeSubmitted
	if receipt.DryRun {
		result.Outcome = journal.OutcomeDryRun
	}
	result.Reason = d.Reason
	return result
}

func (e *Engine) fail(result LegResult, stage State, err error) LegResult {
	result.Stage = stage
	result.Outcome = journal.OutcomeFailed
	result.Err = &LegError{Leg: result.Leg, Stage: stage, Err: err}
	result.Reason = err.Error()
	return result
}

func (e *Engine) enter(report *Report, s State) {
	report.States = append(report.States, s)
	report.Final = s
}

func (e *Engine) record(runID string, r LegResult) {
	entry := journal.Entry{
		RunID:     runID,
		Leg:       r.Leg,
		Stage:     r.Stage.String(),
		Outcome:   r.Outcome,
		Reason:    r.Reason,
		Timestamp: e.now().UTC(),
	}
	if r.Intent != nil {
		entry.AmountIn = r.Intent.Amount.String()
	}
	if r.Quote != nil {
		entry.Route = r.Quote.Route.String()
		entry.ExpectedOut = r.Quote.ExpectedOut.String()
	}
	if r.Receipt != nil {
		entry.TxHash = r.Receipt.TxHash.Hex()
		entry.MinimumOut = r.Receipt.MinimumOut.String()
		entry.Deadline = r.Receipt.Deadline
		entry.DryRun = r.Receipt.DryRun
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	e.deps.Journal.Record(entry)
}
