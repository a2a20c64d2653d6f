package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/dex/evm"
	"github.com/pooleja/ts-trader/internal/engine"
	"github.com/pooleja/ts-trader/internal/exchange"
	"github.com/pooleja/ts-trader/internal/execution"
	"github.com/pooleja/ts-trader/internal/journal"
	"github.com/pooleja/ts-trader/internal/risk"
	"github.com/pooleja/ts-trader/internal/strategy"
)

var (
	weth   = dex.Asset{Symbol: "WETH", Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), Decimals: 18}
	usdc   = dex.Asset{Symbol: "USDC", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6}
	router = common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45")
)

// node is an in-memory JSON-RPC node: balances are served directly, broadcasts are recorded.
type node struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	sent     []*types.Transaction
	sendErr  error
}

func (n *node) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if v, ok := n.balances[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (n *node) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("unexpected eth_call")
}
func (n *node) BlockNumber(context.Context) (uint64, error)       { return 1, nil }
func (n *node) ChainID(context.Context) (*big.Int, error)         { return big.NewInt(137), nil }
func (n *node) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(30_000_000_000), nil }

func (n *node) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 200_000, nil }
func (n *node) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return uint64(len(n.sent)), nil
}
func (n *node) SendTransaction(_ context.Context, tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, tx)
	return nil
}

// priceServer serves 20 daily closes ending at latest; the rest sit at rest.
func priceServer(t *testing.T, rest, latest string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v2/ohlc/ethusd") {
			http.NotFound(w, r)
			return
		}
		var candles []string
		for i := 0; i < 20; i++ {
			px := rest
			if i == 19 {
				px = latest
			}
			candles = append(candles, fmt.Sprintf(`{"timestamp":"%d","close":"%s"}`, 1_700_000_000+i*86_400, px))
		}
		fmt.Fprintf(w, `{"data":{"pair":"ETH/USD","ohlc":[%s]}}`, strings.Join(candles, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func routingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		in, out := q.Get("tokenInAddress"), q.Get("tokenOutAddress")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"blockNumber":"50000000","quote":"2990000000","quoteGasAdjusted":"2989000000","gasPriceWei":"41000000000","gasUseEstimate":"180000",
		  "route":[[{"type":"v3-pool","address":"0x45dDa9cb7c25131DF268515131f647d726f50608","tokenIn":{"address":"%s"},"tokenOut":{"address":"%s"},"fee":"500"}]]}`, in, out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type flow struct {
	node    *node
	journal string
	engine  *engine.Engine
	owner   common.Address
}

func newFlow(t *testing.T, prices, routing *httptest.Server, wethBal, usdcBal *big.Int) *flow {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	n := &node{balances: map[common.Address]*big.Int{weth.Address: wethBal, usdc.Address: usdcBal}}
	log := zerolog.Nop()

	quoter, err := evm.NewQuoter(evm.QuoterConfig{Strategy: evm.StrategyAggregator, AggregatorURL: routing.URL, ChainID: 137}, n, log)
	if err != nil {
		t.Fatalf("NewQuoter: %v", err)
	}
	broadcaster := evm.NewBroadcaster(n, key, router, big.NewInt(137), log)
	executor := execution.NewExecutor(log, broadcaster, execution.WithQuoteTTL(30*time.Second))

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	recorder, err := journal.NewJSONLRecorder(path, log)
	if err != nil {
		t.Fatalf("NewJSONLRecorder: %v", err)
	}
	t.Cleanup(func() { _ = recorder.Close() })

	eng, err := engine.New(log, engine.Deps{
		Balances: n,
		History:  exchange.NewBitstamp(prices.URL, "ethusd", log, exchange.WithHTTPClient(prices.Client())),
		Strategy: strategy.NewMovingAverage(weth, usdc),
		Quoter:   quoter,
		Executor: executor,
		Journal:  recorder,
	}, engine.Params{
		Owner:        broadcaster.Address(),
		Base:         weth,
		Quote:        usdc,
		LookbackDays: 20,
		SlippageBps:  500,
		DeadlineSecs: 1800,
		Limits:       risk.Limits{MaxNotionalPerTrade: decimal.NewFromInt(25_000)},
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &flow{node: n, journal: path, engine: eng, owner: broadcaster.Address()}
}

func readJournal(t *testing.T, path string) []journal.Entry {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()
	var out []journal.Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e journal.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decode journal: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestRebalanceFlowSellsBelowAverage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	f := newFlow(t, priceServer(t, "1800", "1500"), routingServer(t, http.StatusOK), oneEth, big.NewInt(0))
	report := f.engine.Run(ctx)

	if report.Failed() {
		t.Fatalf("run failed: %+v", report.Legs)
	}
	if len(f.node.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(f.node.sent))
	}
	tx := f.node.sent[0]
	if *tx.To() != router {
		t.Fatalf("swap sent to %s, want router", tx.To().Hex())
	}
	if tx.GasPrice().String() != "41000000000" {
		t.Fatalf("expected quoted gas price, got %s", tx.GasPrice())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	if err != nil || sender != f.owner {
		t.Fatalf("unexpected sender %s (%v)", sender.Hex(), err)
	}

	entries := readJournal(t, f.journal)
	if len(entries) != 2 {
		t.Fatalf("expected both legs journaled, got %d", len(entries))
	}
	sell := entries[0]
	if sell.Leg != "WETH->USDC" || sell.Outcome != journal.OutcomeSubmitted || sell.TxHash != tx.Hash().Hex() {
		t.Fatalf("unexpected sell entry %+v", sell)
	}
	if sell.AmountIn != oneEth.String() || sell.MinimumOut != "2840500000" {
		t.Fatalf("unexpected sell bounds %+v", sell)
	}
	if entries[1].Outcome != journal.OutcomeNoTrade {
		t.Fatalf("unexpected buy entry %+v", entries[1])
	}
}

func TestRebalanceFlowNoRouteFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	usdcBal := big.NewInt(5_000_000_000)
	f := newFlow(t, priceServer(t, "1700", "2000"), routingServer(t, http.StatusNotFound), big.NewInt(0), usdcBal)
	report := f.engine.Run(ctx)

	if !report.Failed() {
		t.Fatalf("expected failed run")
	}
	buy, _ := report.Leg("USDC->WETH")
	if !errors.Is(buy.Err, dex.ErrNoRoute) || buy.Stage != engine.Quoting {
		t.Fatalf("unexpected buy leg %+v", buy)
	}
	if len(f.node.sent) != 0 {
		t.Fatalf("nothing may be broadcast without a route")
	}
	entries := readJournal(t, f.journal)
	if len(entries) != 2 || entries[1].Outcome != journal.OutcomeFailed || !strings.Contains(entries[1].Error, "no route found") {
		t.Fatalf("unexpected journal %+v", entries)
	}
}

func TestRebalanceFlowSubmissionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFlow(t, priceServer(t, "1700", "2000"), routingServer(t, http.StatusOK), big.NewInt(0), big.NewInt(1_000_000))
	f.node.sendErr = errors.New("connection reset by peer")
	report := f.engine.Run(ctx)

	buy, _ := report.Leg("USDC->WETH")
	if !report.Failed() || !errors.Is(buy.Err, execution.ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %+v", buy)
	}
}
