package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_ingested_rows_total",
		Help: "Funding snapshots written, by exchange.",
	}, []string{"exchange"})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_fetch_failures_total",
		Help: "Venue feed failures that zeroed an exchange for a pass.",
	}, []string{"exchange"})

	SymbolFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_symbol_failures_total",
		Help: "Per-symbol fetches dropped inside a rate-limited batch.",
	}, []string{"exchange"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funding_tick_duration_seconds",
		Help:    "Wall time of collection ticks that held the lock.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_ticks_skipped_total",
		Help: "Ticks skipped because another replica held the ingestion lock.",
	})

	Opportunities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbitrage_opportunities",
		Help: "Surviving instruments in the most recent arbitrage query.",
	})
)
