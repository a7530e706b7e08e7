package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	MalformedTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "malformed_ticks_total", Help: "Ticks discarded as malformed"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Tick evaluations by outcome"},
		[]string{"symbol", "outcome"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted by result"},
		[]string{"symbol", "side", "result"},
	)
	ForcedCloseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "forced_close_failures_total", Help: "Forced liquidations whose order failed"},
		[]string{"symbol"},
	)
	AuditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "audit_failures_total", Help: "Audit records that could not be written"},
	)
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Open positions per symbol (1 long, -1 short, 0 flat)"},
		[]string{"symbol"},
	)
	OrderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "order_latency_seconds", Help: "Order submission latency", Buckets: prometheus.DefBuckets},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		MalformedTicksTotal,
		DecisionsTotal,
		OrdersTotal,
		ForcedCloseFailuresTotal,
		AuditFailuresTotal,
		OpenPositions,
		OrderLatency,
	)
}

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
