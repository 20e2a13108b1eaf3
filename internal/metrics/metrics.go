// Package metrics registers the Prometheus collectors for the engine. The
// dashboard mounts Handler at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalper_ticks_total", Help: "Count of market ticks routed, by instrument role"},
		[]string{"role"},
	)
	TicksDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scalper_ticks_dropped_total", Help: "Ticks for instruments outside the current role map"},
	)
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scalper_cycles_total", Help: "Signal/risk cycles executed"},
	)
	CycleErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scalper_cycle_errors_total", Help: "Cycles that surfaced an error"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalper_signals_total", Help: "Entry signals emitted, by side"},
		[]string{"side"},
	)
	PositionClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalper_position_closes_total", Help: "Positions closed, by exit reason"},
		[]string{"reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "scalper_open_positions", Help: "Currently open positions (0 or 1)"},
	)
	RotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scalper_atm_rotations_total", Help: "ATM pair rotations performed"},
	)
	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scalper_feed_reconnects_total", Help: "Websocket feed connections established"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksDroppedTotal,
		CyclesTotal,
		CycleErrorsTotal,
		SignalsTotal,
		PositionClosesTotal,
		OpenPositions,
		RotationsTotal,
		FeedReconnectsTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
