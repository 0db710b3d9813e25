package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Tick outcomes
const (
	OutcomeOK           = "ok"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeInvalidRates = "invalid_rates"
	OutcomeScanFailed   = "scan_failed"
)

var (
	TicksTotal           = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scan_ticks_total", Help: "Scan ticks by group and outcome"}, []string{"group", "outcome"})
	ScanLatencyMs        = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "scan_latency_ms", Help: "Fetch to report latency per tick", Buckets: prometheus.LinearBuckets(1, 50, 20)}, []string{"group"})
	CyclesEvaluatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cycles_evaluated_total", Help: "Cycles whose factor was computed"}, []string{"group"})
	ArbOppsFound         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arbitrage_opportunities_found", Help: "Ticks that found a profitable cycle"}, []string{"group"})
	BestProfitBps        = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "best_cycle_profit_bps", Help: "Gross profit of the last reported cycle, 0 when none"}, []string{"group"})
	SinkErrorsTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sink_errors_total", Help: "Report delivery failures"}, []string{"group"})
	APIErrorsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "api_errors_total", Help: "Price API errors by source and endpoint"}, []string{"source", "endpoint"})
	FetchLatencyMs       = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "price_fetch_latency_ms", Help: "Price source request latency", Buckets: prometheus.ExponentialBuckets(5, 2, 12)}, []string{"source"})
	SinkDeliveredTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sink_delivered_total", Help: "Opportunities delivered by sink"}, []string{"sink"})
)

func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		TicksTotal, ScanLatencyMs, CyclesEvaluatedTotal, ArbOppsFound, BestProfitBps,
		SinkErrorsTotal, APIErrorsTotal, FetchLatencyMs, SinkDeliveredTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info().Int("collectors", len(toRegister)).Msg("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
