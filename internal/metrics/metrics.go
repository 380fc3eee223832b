// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livesync_connection_status",
			Help: "1 for the current connection status, 0 for the others.",
		},
		[]string{"status"},
	)
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesync_connect_attempts_total",
			Help: "Connection attempts by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)
	ActiveAuctions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livesync_active_auctions",
			Help: "Cars currently in the live view.",
		})
	ExpiredAuctions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livesync_expired_auctions_total",
			Help: "Auction windows that elapsed.",
		})
	PriceRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesync_price_refresh_total",
			Help: "Price fetches by outcome (ok, error, stale).",
		},
		[]string{"outcome"},
	)
	Bids = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesync_bids_total",
			Help: "Bid submissions by outcome (placed, rejected, network, invalid).",
		},
		[]string{"outcome"},
	)
)

// SetConnectionStatus flips the status gauge to the given state
func SetConnectionStatus(current string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionStatus.WithLabelValues(s).Set(v)
	}
}
