// Package metrics exposes Prometheus metrics for the polling loop:
//   - trader_ticks_total                  – polling cycles completed
//   - trader_ticks_skipped_total          – cycles skipped because the prior one was still running
//   - trader_quote_failures_total         – per-symbol quote fetch failures
//   - trader_alerts_fired_total           – watch plans that fired
//   - trader_orders_placed_total{side,price_type} – orders accepted by the broker
//   - trader_fills_total{status}          – pending fills by terminal status
//   - trader_verify_mismatch_total        – placed orders not yet visible in the order list
//   - trader_watched_symbols              – symbols currently polled (gauge)
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_ticks_total",
		Help: "Polling cycles completed",
	})

	mtxTicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_ticks_skipped_total",
		Help: "Polling cycles skipped due to overlap",
	})

	mtxQuoteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_quote_failures_total",
		Help: "Quote fetch failures",
	}, []string{"symbol"})

	mtxAlertsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_alerts_fired_total",
		Help: "Watch plans fired",
	})

	mtxOrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_orders_placed_total",
		Help: "Orders accepted by the broker",
	}, []string{"side", "price_type"})

	mtxFills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_fills_total",
		Help: "Pending fills resolved, by terminal status",
	}, []string{"status"})

	mtxVerifyMismatch = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_verify_mismatch_total",
		Help: "Placed orders not yet visible in the broker order list",
	})

	mtxWatchedSymbols = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trader_watched_symbols",
		Help: "Symbols currently polled",
	})
)

func init() {
	prometheus.MustRegister(
		mtxTicks,
		mtxTicksSkipped,
		mtxQuoteFailures,
		mtxAlertsFired,
		mtxOrdersPlaced,
		mtxFills,
		mtxVerifyMismatch,
		mtxWatchedSymbols,
	)
}

// Handler returns the Prometheus text exposition handler.
func Handler() http.Handler { return promhttp.Handler() }

func IncTick()                   { mtxTicks.Inc() }
func IncTickSkipped()            { mtxTicksSkipped.Inc() }
func IncQuoteFailure(sym string) { mtxQuoteFailures.WithLabelValues(sym).Inc() }
func IncAlertFired()             { mtxAlertsFired.Inc() }
func IncVerifyMismatch()         { mtxVerifyMismatch.Inc() }
func SetWatchedSymbols(n int)    { mtxWatchedSymbols.Set(float64(n)) }

// IncOrderPlaced counts one accepted order.
func IncOrderPlaced(side, priceType string) {
	mtxOrdersPlaced.WithLabelValues(side, priceType).Inc()
}

// IncFill counts one terminally resolved pending fill.
func IncFill(status string) {
	mtxFills.WithLabelValues(status).Inc()
}
