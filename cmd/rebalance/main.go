package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pooleja/ts-trader/internal/config"
	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/dex/evm"
	"github.com/pooleja/ts-trader/internal/engine"
	"github.com/pooleja/ts-trader/internal/exchange"
	"github.com/pooleja/ts-trader/internal/execution"
	"github.com/pooleja/ts-trader/internal/journal"
	"github.com/pooleja/ts-trader/internal/metrics"
	"github.com/pooleja/ts-trader/internal/risk"
	"github.com/pooleja/ts-trader/internal/strategy"
	"github.com/pooleja/ts-trader/internal/trace"
	"github.com/pooleja/ts-trader/internal/util"
)

const version = "1.0.0"

// chainClient is the node connection a run needs. *ethclient.Client satisfies it.
type chainClient interface {
	evm.Backend
	Close()
}

type dialFunc func(ctx context.Context, url string) (chainClient, error)

func dialRPC(ctx context.Context, url string) (chainClient, error) {
	client, err := evm.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// runner is a wired engine plus the ledger its legs are journaled to.
type runner struct {
	engine *engine.Engine
	ledger *journal.Ledger
	close  func()
}

func main() {
	os.Exit(run(context.Background(), dialRPC))
}

// run executes one cycle and maps the outcome to the process exit code.
func run(parent context.Context, dial dialFunc) int {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		startupLog := util.NewLogger("info", "json")
		startupLog.Error().Err(err).Msg("load config")
		return 1
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("chain", cfg.Dex.Chain).
		Logger()

	ctx, cancel := ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, cfg.App.RunTimeout())
	defer cancelRun()

	tracer, err := trace.Init(ctx, trace.Options{Enabled: cfg.App.Tracing, Service: cfg.App.Name, Version: version})
	if err != nil {
		log.Error().Err(err).Msg("init tracing")
		return 1
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()
	defer pushMetrics(cfg, log)

	r, err := build(ctx, cfg, dial, tracer, log)
	if err != nil {
		log.Error().Err(err).Msg("startup")
		return 1
	}
	defer r.close()

	report := r.engine.Run(ctx)
	for _, e := range r.ledger.Snapshot() {
		log.Info().Str("leg", e.Leg).Str("outcome", e.Outcome).Str("tx", e.TxHash).Str("reason", e.Reason).Msg("summary")
	}
	if report.Failed() {
		for _, leg := range report.Legs {
			if leg.Failed() {
				log.Error().Err(leg.Err).Str("leg", leg.Leg).Str("stage", leg.Stage.String()).Msg("leg failed")
			}
		}
		return 1
	}
	return 0
}

// build wires the chain client, quoter, signer and journal into an engine.
func build(ctx context.Context, cfg *config.Config, dial dialFunc, tracer *trace.Tracer, log zerolog.Logger) (*runner, error) {
	notional, err := cfg.Risk.Notional()
	if err != nil {
		return nil, fmt.Errorf("%w: risk.max_trade_notional: %v", config.ErrInvalid, err)
	}
	key, err := evm.LoadPrivateKeyFromEnv(cfg.Wallet.PrivateKeyEnv)
	if err != nil {
		return nil, err
	}
	owner := common.HexToAddress(cfg.Wallet.Address)
	if signer := evm.AddressOf(key); signer != owner {
		return nil, fmt.Errorf("%w: key for %s does not match wallet.address %s", config.ErrInvalid, signer.Hex(), owner.Hex())
	}

	client, err := dial(ctx, cfg.Dex.RpcURL)
	if err != nil {
		return nil, err
	}
	closers := []func(){client.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if chainID.Cmp(big.NewInt(cfg.Dex.ChainID)) != 0 {
		closeAll()
		return nil, fmt.Errorf("%w: rpc reports chain %s, configured %d", config.ErrInvalid, chainID, cfg.Dex.ChainID)
	}

	tokens := evm.NewTokenReader(client)
	base, quote := cfg.Assets.Base.Token(), cfg.Assets.Quote.Token()
	if err := checkDecimals(ctx, tokens, base, quote); err != nil {
		closeAll()
		return nil, err
	}

	quoter, err := evm.NewQuoter(evm.QuoterConfig{
		Strategy:      cfg.Dex.RouterStrategy,
		Factory:       cfg.Dex.Factory(),
		Quoter:        cfg.Dex.Quoter(),
		FeeTiers:      cfg.Dex.FeeTiers,
		AggregatorURL: cfg.Dex.AggregatorURL,
		ChainID:       cfg.Dex.ChainID,
	}, client, log)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	broadcaster := evm.NewBroadcaster(client, key, cfg.Dex.Router(), chainID, log, evm.WithDryRun(cfg.App.DryRun))
	executor := execution.NewExecutor(log, broadcaster, execution.WithQuoteTTL(cfg.Dex.QuoteTTL()))

	history := exchange.NewBitstamp(cfg.Prices.BaseURL, cfg.Prices.Pair, log,
		exchange.WithStep(time.Duration(cfg.Prices.StepSecs)*time.Second),
		exchange.WithLimit(cfg.Prices.Limit),
	)

	strat, err := strategy.Build(cfg.Strategy.Mode, base, quote)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	ledger := journal.NewLedger(2)
	recorder := journal.Recorder(ledger)
	if cfg.App.JournalPath != "" {
		jsonl, err := journal.NewJSONLRecorder(cfg.App.JournalPath, log)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = jsonl.Close() })
		recorder = journal.Multi(ledger, jsonl)
	}

	eng, err := engine.New(log, engine.Deps{
		Balances: tokens,
		History:  history,
		Strategy: strat,
		Quoter:   quoter,
		Executor: executor,
		Journal:  recorder,
		Tracer:   tracer,
	}, engine.Params{
		Owner:        owner,
		Base:         base,
		Quote:        quote,
		LookbackDays: cfg.Strategy.LookbackDays,
		SlippageBps:  cfg.Dex.Slippage(),
		DeadlineSecs: cfg.Dex.DeadlineSecs,
		Limits:       risk.Limits{MaxNotionalPerTrade: notional},
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	log.Info().
		Str("wallet", owner.Hex()).
		Str("router", cfg.Dex.RouterAddress).
		Str("strategy", strat.Name()).
		Str("routing", cfg.Dex.RouterStrategy).
		Bool("dry_run", cfg.App.DryRun).
		Msg("rebalance starting")
	return &runner{engine: eng, ledger: ledger, close: closeAll}, nil
}

// checkDecimals refuses to size trades against token metadata that disagrees with the chain.
func checkDecimals(ctx context.Context, tokens *evm.TokenReader, assets ...dex.Asset) error {
	var errs []error
	for _, a := range assets {
		got, err := tokens.Decimals(ctx, a.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s decimals: %w", a.Symbol, err))
			continue
		}
		if got != a.Decimals {
			errs = append(errs, fmt.Errorf("%w: %s has %d decimals on-chain, configured %d", config.ErrInvalid, a.Symbol, got, a.Decimals))
		}
	}
	return errors.Join(errs...)
}

func pushMetrics(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.App.PushgatewayURL, "rebalance", cfg.Dex.Chain); err != nil {
		log.Warn().Err(err).Msg("push metrics")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
