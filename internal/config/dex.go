package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pooleja/ts-trader/internal/dex"
)

// Polygon mainnet deployments used when the config leaves them out.
const (
	polygonWETH    = "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"
	polygonUSDC    = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonFactory = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
)

// maxFee is the largest v3 fee, 100% in hundredths of a bip.
const maxFee = 1_000_000

// Dex defines the network endpoint and the exchange contracts swaps go through.
type Dex struct {
	Chain          string   `yaml:"chain"`
	ChainID        int64    `yaml:"chain_id"`
	RpcURL         string   `yaml:"rpc_url"`
	RouterStrategy string   `yaml:"router_strategy"` // direct|aggregator
	RouterAddress  string   `yaml:"router_address"`  // SwapRouter02
	QuoterAddress  string   `yaml:"quoter_address"`  // QuoterV2
	FactoryAddress string   `yaml:"factory_address"`
	AggregatorURL  string   `yaml:"aggregator_url"`
	FeeTiers       []uint32 `yaml:"fee_tiers"`
	SlippageBps    *int     `yaml:"slippage_bps"`
	DeadlineSecs   int      `yaml:"deadline_secs"`
	QuoteTTLSecs   int      `yaml:"quote_ttl_secs"`
}

// Wallet names the trading account and where its key comes from. The key itself never lives in YAML.
type Wallet struct {
	Address       string `yaml:"address"`
	PrivateKeyEnv string `yaml:"private_key_env"`
}

// Asset is an ERC-20 token as written in YAML.
type Asset struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// Assets holds the traded pair. Base is the volatile asset, quote the unit of account.
type Assets struct {
	Base  Asset `yaml:"base"`
	Quote Asset `yaml:"quote"`
}

func (w *Wallet) applyDefaults() {
	if w.PrivateKeyEnv == "" {
		w.PrivateKeyEnv = "TRADER_PRIVATE_KEY"
	}
}

func (d *Dex) applyDefaults() {
	if d.Chain == "" {
		d.Chain = "polygon"
	}
	if d.ChainID == 0 && strings.EqualFold(d.Chain, "polygon") {
		d.ChainID = 137
	}
	if d.RouterStrategy == "" {
		d.RouterStrategy = "direct"
	}
	if d.FactoryAddress == "" && d.ChainID == 137 {
		d.FactoryAddress = polygonFactory
	}
	if d.QuoteTTLSecs <= 0 {
		d.QuoteTTLSecs = 30
	}
}

func (a *Assets) applyDefaults() {
	if a.Base == (Asset{}) {
		a.Base = Asset{Symbol: "WETH", Address: polygonWETH, Decimals: 18}
	}
	if a.Quote == (Asset{}) {
		a.Quote = Asset{Symbol: "USDC", Address: polygonUSDC, Decimals: 6}
	}
}

func (d Dex) problems() []string {
	var out []string
	if strings.TrimSpace(d.RpcURL) == "" {
		out = append(out, "dex.rpc_url is required")
	}
	if d.ChainID <= 0 {
		out = append(out, "dex.chain_id is required")
	}
	if !common.IsHexAddress(d.RouterAddress) {
		out = append(out, fmt.Sprintf("dex.router_address %q is not a hex address", d.RouterAddress))
	}
	if !common.IsHexAddress(d.QuoterAddress) {
		out = append(out, fmt.Sprintf("dex.quoter_address %q is not a hex address", d.QuoterAddress))
	}
	switch strings.ToLower(d.RouterStrategy) {
	case "direct":
		if !common.IsHexAddress(d.FactoryAddress) {
			out = append(out, fmt.Sprintf("dex.factory_address %q is not a hex address", d.FactoryAddress))
		}
	case "aggregator":
		if strings.TrimSpace(d.AggregatorURL) == "" {
			out = append(out, "dex.aggregator_url is required for the aggregator strategy")
		}
	default:
		out = append(out, fmt.Sprintf("dex.router_strategy %q must be direct or aggregator", d.RouterStrategy))
	}
	if d.SlippageBps == nil {
		out = append(out, "dex.slippage_bps is required")
	} else if *d.SlippageBps < 0 || *d.SlippageBps > 10_000 {
		out = append(out, fmt.Sprintf("dex.slippage_bps %d outside [0, 10000]", *d.SlippageBps))
	}
	if d.DeadlineSecs <= 0 {
		out = append(out, "dex.deadline_secs is required and must be positive")
	}
	for _, fee := range d.FeeTiers {
		if fee == 0 || fee >= maxFee {
			out = append(out, fmt.Sprintf("dex.fee_tiers entry %d is not a valid fee", fee))
		}
	}
	return out
}

func (a Assets) problems() []string {
	var out []string
	for _, leaf := range []struct {
		name  string
		asset Asset
	}{{"assets.base", a.Base}, {"assets.quote", a.Quote}} {
		if leaf.asset.Symbol == "" {
			out = append(out, leaf.name+".symbol is required")
		}
		if !common.IsHexAddress(leaf.asset.Address) {
			out = append(out, fmt.Sprintf("%s.address %q is not a hex address", leaf.name, leaf.asset.Address))
		}
	}
	if strings.EqualFold(a.Base.Address, a.Quote.Address) {
		out = append(out, "assets.base and assets.quote must differ")
	}
	return out
}

// Token converts the YAML form to a dex.Asset. Call after Validate.
func (a Asset) Token() dex.Asset {
	return dex.Asset{Symbol: a.Symbol, Address: common.HexToAddress(a.Address), Decimals: a.Decimals}
}

// Slippage returns the configured tolerance in basis points. Call after Validate.
func (d Dex) Slippage() int {
	if d.SlippageBps == nil {
		return 0
	}
	return *d.SlippageBps
}

// QuoteTTL is how long a quote stays executable.
func (d Dex) QuoteTTL() time.Duration { return time.Duration(d.QuoteTTLSecs) * time.Second }

// Router is the SwapRouter02 address.
func (d Dex) Router() common.Address { return common.HexToAddress(d.RouterAddress) }

// Quoter is the QuoterV2 address.
func (d Dex) Quoter() common.Address { return common.HexToAddress(d.QuoterAddress) }

// Factory is the v3 factory address.
func (d Dex) Factory() common.Address { return common.HexToAddress(d.FactoryAddress) }

// RunTimeout bounds a whole run.
func (a App) RunTimeout() time.Duration { return time.Duration(a.RunTimeoutSecs) * time.Second }
