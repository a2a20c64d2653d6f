// Package exchange hosts the HTTP connectors that supply price history.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pooleja/ts-trader/internal/metrics"
	"github.com/pooleja/ts-trader/internal/signal"
)

const (
	defaultBitstampBaseURL = "https://www.bitstamp.net"
	defaultStep            = 24 * time.Hour
	defaultLimit           = 365
	userAgent              = "ts-trader/1.0"
)

// Bitstamp fetches OHLC history from the Bitstamp public API.
type Bitstamp struct {
	baseURL string
	pair    string
	step    time.Duration
	limit   int
	client  *http.Client
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures Bitstamp construction parameters.
type Option func(*Bitstamp)

// WithHTTPClient overrides the default 10s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bitstamp) {
		if c != nil {
			b.client = c
		}
	}
}

// WithStep overrides the candle period (Bitstamp accepts 60s up to 3 days).
func WithStep(d time.Duration) Option {
	return func(b *Bitstamp) {
		if d > 0 {
			b.step = d
		}
	}
}

// WithLimit caps how many candles a single request may return.
func WithLimit(n int) Option {
	return func(b *Bitstamp) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithClock injects the time source used to compute the window start.
func WithClock(now func() time.Time) Option {
	return func(b *Bitstamp) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBitstamp constructs a history source for a pair such as "ethusd".
func NewBitstamp(baseURL, pair string, log zerolog.Logger, opts ...Option) *Bitstamp {
	b := &Bitstamp{
		baseURL: defaultBitstampBaseURL,
		pair:    strings.ToLower(strings.TrimSpace(pair)),
		step:    defaultStep,
		limit:   defaultLimit,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		log:     log,
	}
	if baseURL != "" {
		b.baseURL = strings.TrimSuffix(baseURL, "/")
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type bitstampResponse struct {
	Data struct {
		Pair string          `json:"pair"`
		OHLC []bitstampCandle `json:"ohlc"`
	} `json:"data"`
}

type bitstampCandle struct {
	Timestamp string `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// Closes returns close samples starting lookbackDays ago. Candles that fail to
// parse are dropped, so the window may be shorter than requested.
func (b *Bitstamp) Closes(ctx context.Context, lookbackDays int) ([]signal.Sample, error) {
	start := b.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour).Unix()

	q := url.Values{}
	q.Set("step", strconv.FormatInt(int64(b.step/time.Second), 10))
	q.Set("limit", strconv.Itoa(b.limit))
	q.Set("start", strconv.FormatInt(start, 10))
	u := fmt.Sprintf("%s/api/v2/ohlc/%s/?%s", b.baseURL, url.PathEscape(b.pair), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.PriceFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("bitstamp ohlc status %d", resp.StatusCode)
	}

	var payload bitstampResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	metrics.PriceFetchesTotal.WithLabelValues("ok").Inc()

	samples := make([]signal.Sample, 0, len(payload.Data.OHLC))
	for _, c := range payload.Data.OHLC {
		sample, err := parseCandle(c)
		if err != nil {
			b.log.Warn().Err(err).Str("pair", b.pair).Str("timestamp", c.Timestamp).Msg("skipping candle")
			continue
		}
		samples = append(samples, sample)
	}
	b.log.Debug().Str("pair", b.pair).Int("samples", len(samples)).Int64("start", start).Msg("fetched price history")
	return samples, nil
}

func parseCandle(c bitstampCandle) (signal.Sample, error) {
	ts, err := strconv.ParseInt(c.Timestamp, 10, 64)
	if err != nil {
		return signal.Sample{}, fmt.Errorf("parse timestamp: %w", err)
	}
	px, err := decimal.NewFromString(c.Close)
	if err != nil {
		return signal.Sample{}, fmt.Errorf("parse close: %w", err)
	}
	if px.Sign() <= 0 {
		return signal.Sample{}, fmt.Errorf("non-positive close %s", c.Close)
	}
	return signal.Sample{Timestamp: ts, Close: px}, nil
}
