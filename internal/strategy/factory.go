package strategy

import (
	"fmt"
	"strings"

	"github.com/pooleja/ts-trader/internal/dex"
)

// Strategy turns a price signal and current balances into per-leg trade decisions.
type Strategy interface {
	Decide(in Inputs) []Decision
	Name() string
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, base, quote dex.Asset) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "ma", "moving_average", "ma_crossover":
		return NewMovingAverage(base, quote), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}
