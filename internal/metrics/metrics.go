// Package metrics exposes Prometheus counters for a rebalancing run and pushes them on exit.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector of this package; runs are short-lived so nothing scrapes it.
var Registry = prometheus.NewRegistry()

var (
	PriceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_fetches_total", Help: "Price history requests by result"},
		[]string{"result"},
	)
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Route quotes by source and result"},
		[]string{"source", "result"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swaps_total", Help: "Swap transactions by leg and result"},
		[]string{"leg", "result"},
	)
	LegsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "legs_total", Help: "Evaluated trade legs by outcome"},
		[]string{"leg", "outcome"},
	)
	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "last_run_timestamp_seconds", Help: "Unix time the last run finished"},
	)
)

func init() {
	Registry.MustRegister(PriceFetchesTotal, QuotesTotal, SwapsTotal, LegsTotal, LastRunTimestamp)
}

// Push replaces the job's metric group on a Pushgateway. An empty url is a no-op.
func Push(ctx context.Context, url, job, instance string) error {
	if url == "" {
		return nil
	}
	LastRunTimestamp.SetToCurrentTime()
	p := push.New(url, job).Gatherer(Registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
