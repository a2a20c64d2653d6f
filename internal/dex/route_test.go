package dex

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	weth = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	usdc = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	wbtc = common.HexToAddress("0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6")
)

func TestAssetUnit(t *testing.T) {
	a := Asset{Symbol: "USDC", Decimals: 6}
	if a.Unit().Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected 10^6, got %s", a.Unit())
	}
}

func TestRouteValidate(t *testing.T) {
	route := Route{Source: SourceAggregator, Pools: []Pool{
		{TokenIn: weth, TokenOut: wbtc, Fee: 500},
		{TokenIn: wbtc, TokenOut: usdc, Fee: 3000},
	}}
	if err := route.Validate(weth, usdc); err != nil {
		t.Fatalf("expected valid route, got %v", err)
	}
	if err := route.Validate(usdc, weth); err == nil {
		t.Fatalf("expected reversed route to fail")
	}

	broken := Route{Pools: []Pool{
		{TokenIn: weth, TokenOut: wbtc},
		{TokenIn: usdc, TokenOut: weth},
	}}
	if err := broken.Validate(weth, weth); err == nil {
		t.Fatalf("expected non-contiguous route to fail")
	}
}

func TestRouteValidateEmpty(t *testing.T) {
	if err := (Route{}).Validate(weth, usdc); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestQuoteStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	q := &Quote{SampledAt: now.Add(-45 * time.Second)}
	if !q.Stale(now, 30*time.Second) {
		t.Fatalf("expected quote older than ttl to be stale")
	}
	if q.Stale(now, time.Minute) {
		t.Fatalf("expected quote within ttl to be fresh")
	}
	if q.Stale(now, 0) {
		t.Fatalf("expected zero ttl to disable staleness")
	}
}
