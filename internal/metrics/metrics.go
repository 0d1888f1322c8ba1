// Package metrics exposes Prometheus instrumentation for the cycle loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trading_cycles_total", Help: "Count of evaluation cycles run"},
	)
	CrossesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crossovers_total", Help: "Crossover events emitted by the detector"},
		[]string{"direction"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the gateway"},
		[]string{"action", "outcome"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Number of open positions (0 or 1)"},
	)
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realized_pnl", Help: "Realized P&L for the current session"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, CrossesTotal, OrdersTotal, OpenPositions, RealizedPnL)
}

// Serve starts the /metrics endpoint on addr. The returned server can be
// shut down by the caller.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
