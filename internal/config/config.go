// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that must stop the process before any I/O.
var ErrInvalid = errors.New("invalid configuration")

// App captures process-wide runtime settings.
type App struct {
	Name           string `yaml:"name"`
	Env            string `yaml:"env"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json|console
	DryRun         bool   `yaml:"dry_run"`
	RunTimeoutSecs int    `yaml:"run_timeout_secs"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Tracing        bool   `yaml:"tracing"`
	JournalPath    string `yaml:"journal_path"`
}

// Risk encodes the per-trade notional cap, in quote-asset units ("25000", "12.5").
type Risk struct {
	MaxTradeNotional string `yaml:"max_trade_notional"`
}

// Strategy specifies which strategy is active and its lookback.
type Strategy struct {
	Mode         string `yaml:"mode"`
	LookbackDays int    `yaml:"lookback_days"`
}

// Prices configures the OHLC history endpoint.
type Prices struct {
	BaseURL  string `yaml:"base_url"`
	Pair     string `yaml:"pair"`
	StepSecs int    `yaml:"step_secs"`
	Limit    int    `yaml:"limit"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Wallet   Wallet   `yaml:"wallet"`
	Dex      Dex      `yaml:"dex"`
	Assets   Assets   `yaml:"assets"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Prices   Prices   `yaml:"prices"`

	envProblems []string
}

// Load reads a YAML file, applies defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills optional fields. Required fields are left alone so Validate can report them.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "ts-trader"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "json"
	}
	if c.App.RunTimeoutSecs <= 0 {
		c.App.RunTimeoutSecs = 120
	}
	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "ma"
	}
	if c.Prices.BaseURL == "" {
		c.Prices.BaseURL = "https://www.bitstamp.net"
	}
	if c.Prices.Pair == "" {
		c.Prices.Pair = "ethusd"
	}
	c.Wallet.applyDefaults()
	c.Dex.applyDefaults()
	c.Assets.applyDefaults()
}

// ApplyEnv overrides deployment-specific values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("TRADER_RPC_URL"); v != "" {
		c.Dex.RpcURL = v
	}
	if v := getenv("TRADER_ADDRESS"); v != "" {
		c.Wallet.Address = v
	}
	if v := getenv("TRADER_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := getenv("TRADER_PUSHGATEWAY_URL"); v != "" {
		c.App.PushgatewayURL = v
	}
	if v := getenv("TRADER_DRY_RUN"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			c.envProblems = append(c.envProblems, fmt.Sprintf("TRADER_DRY_RUN %q is not a boolean", v))
		} else {
			c.App.DryRun = dry
		}
	}
}

// Validate reports every missing or malformed required option at once.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.envProblems...)
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if _, err := c.Risk.Notional(); err != nil {
		add("risk.max_trade_notional: %v", err)
	}
	if c.Strategy.LookbackDays <= 0 {
		add("strategy.lookback_days is required and must be positive")
	}
	if c.Wallet.PrivateKeyEnv == "" {
		add("wallet.private_key_env is required")
	}
	if !common.IsHexAddress(c.Wallet.Address) {
		add("wallet.address %q is not a hex address", c.Wallet.Address)
	}
	problems = append(problems, c.Dex.problems()...)
	problems = append(problems, c.Assets.problems()...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Notional parses the notional cap as an exact decimal.
func (r Risk) Notional() (decimal.Decimal, error) {
	if strings.TrimSpace(r.MaxTradeNotional) == "" {
		return decimal.Zero, errors.New("required")
	}
	d, err := decimal.NewFromString(strings.TrimSpace(r.MaxTradeNotional))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a decimal: %w", err)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}
