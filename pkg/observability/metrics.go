package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Control-plane request metrics
var (
	ControlPlaneRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alloy_discovery_control_plane_requests_total",
			Help: "Total number of requests sent to the Nomad API",
		},
		[]string{"transport", "result"}, // transport: unix/network, result: success/failure
	)

	ControlPlaneRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alloy_discovery_control_plane_request_duration_seconds",
			Help:    "Duration of requests sent to the Nomad API in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"transport"},
	)
)

// Polling metrics
var (
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alloy_discovery_poll_cycles_total",
			Help: "Total number of polling passes",
		},
		[]string{"result"}, // success, failure
	)

	PollCycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alloy_discovery_poll_cycle_duration_seconds",
			Help:    "Duration of a full list/derive/write pass in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
	)

	AllocationsObserved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alloy_discovery_allocations",
			Help: "Number of allocations returned for this node by the last pass",
		},
	)

	TargetsWritten = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alloy_discovery_targets",
			Help: "Number of targets in the last written discovery file",
		},
	)

	LastSuccessTimestampSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alloy_discovery_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pass",
		},
	)
)

// Discovery file metrics
var (
	DiscoveryFileWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alloy_discovery_file_writes_total",
			Help: "Total number of discovery file writes",
		},
		[]string{"result"},
	)

	DiscoveryFileBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alloy_discovery_file_bytes",
			Help: "Size of the last written discovery file in bytes",
		},
	)
)
