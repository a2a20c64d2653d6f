package risk

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pooleja/ts-trader/internal/dex"
)

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer %q", s)
	}
	return v
}

func TestSizeSellBaseLimitedByBalance(t *testing.T) {
	balance := mustInt(t, "2000000000000000000")
	got, err := Size(SellBase, balance, decimal.NewFromInt(25000), decimal.NewFromInt(1500), 18)
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	if got.Cmp(balance) != 0 {
		t.Fatalf("expected full balance, got %s", got)
	}
	if got == balance {
		t.Fatalf("Size must not alias the balance argument")
	}
}

func TestSizeSellBaseLimitedByCap(t *testing.T) {
	balance := mustInt(t, "20000000000000000000")
	got, err := Size(SellBase, balance, decimal.NewFromInt(25000), decimal.NewFromInt(1500), 18)
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	// 25000 / 1500 = 16.666... WETH, floored in wei.
	if want := mustInt(t, "16666666666666666666"); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSizeUsesExactPrice(t *testing.T) {
	balance := mustInt(t, "100000000000000000000")
	got, err := Size(SellBase, balance, decimal.NewFromInt(1000), decimal.RequireFromString("1999.5"), 18)
	if err != nil {
		t.Fatalf("Size returned error: %v", err)
	}
	// floor(1000e18 / 1999.5), not floor(1000e18 / 1999).
	if want := mustInt(t, "500125031257814453"); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSizeBuyBase(t *testing.T) {
	cases := []struct {
		name    string
		balance string
		want    string
	}{
		{"balance below cap", "10000000000", "10000000000"},
		{"cap below balance", "30000000000", "25000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Size(BuyBase, mustInt(t, tc.balance), decimal.NewFromInt(25000), decimal.NewFromInt(2000), 6)
			if err != nil {
				t.Fatalf("Size returned error: %v", err)
			}
			if got.Cmp(mustInt(t, tc.want)) != 0 {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSizeInvalidAmount(t *testing.T) {
	cases := []struct {
		name    string
		dir     Direction
		balance *big.Int
		cap     decimal.Decimal
		price   decimal.Decimal
	}{
		{"zero balance", SellBase, big.NewInt(0), decimal.NewFromInt(100), decimal.NewFromInt(1)},
		{"nil balance", BuyBase, nil, decimal.NewFromInt(100), decimal.NewFromInt(1)},
		{"zero cap", BuyBase, big.NewInt(10), decimal.Zero, decimal.NewFromInt(1)},
		{"zero price", SellBase, big.NewInt(10), decimal.NewFromInt(100), decimal.Zero},
		{"cap below one unit", SellBase, big.NewInt(10), decimal.RequireFromString("0.000000000000000001"), decimal.NewFromInt(5000)},
		{"unknown direction", Direction(9), big.NewInt(10), decimal.NewFromInt(100), decimal.NewFromInt(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Size(tc.dir, tc.balance, tc.cap, tc.price, 18); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestSizeBoundsAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		balance := new(big.Int).Rand(rng, mustInt(t, "100000000000000000000"))
		balance.Add(balance, big.NewInt(1))
		capUSD := decimal.NewFromInt(rng.Int63n(100000) + 1)
		price := decimal.New(rng.Int63n(5_000_000)+1, -2)

		first, err := Size(SellBase, balance, capUSD, price, 18)
		if errors.Is(err, ErrInvalidAmount) {
			continue
		}
		if err != nil {
			t.Fatalf("Size returned error: %v", err)
		}
		second, _ := Size(SellBase, balance, capUSD, price, 18)
		if first.Cmp(second) != 0 {
			t.Fatalf("Size not idempotent: %s vs %s", first, second)
		}
		if first.Sign() <= 0 || first.Cmp(balance) > 0 {
			t.Fatalf("amount %s outside (0, balance=%s]", first, balance)
		}
		notional := decimal.NewFromBigInt(first, -18).Mul(price)
		if notional.GreaterThan(capUSD) {
			t.Fatalf("amount %s worth %s exceeds cap %s", first, notional, capUSD)
		}
	}
}

func TestLimitsIntent(t *testing.T) {
	weth := dex.Asset{Symbol: "WETH", Decimals: 18}
	usdc := dex.Asset{Symbol: "USDC", Decimals: 6}
	limits := Limits{MaxNotionalPerTrade: decimal.NewFromInt(25000)}

	intent, err := limits.Intent(BuyBase, usdc, weth, big.NewInt(10_000_000_000), decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("Intent returned error: %v", err)
	}
	if intent.From.Symbol != "USDC" || intent.To.Symbol != "WETH" || intent.Direction != BuyBase {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Amount.Cmp(big.NewInt(10_000_000_000)) != 0 {
		t.Fatalf("expected full USDC balance, got %s", intent.Amount)
	}
}
