package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDetected counts protocol events decoded on each chain
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_events_detected_total",
			Help: "Total number of protocol events detected",
		},
		[]string{"chain", "event_type", "status"},
	)

	// StatusObservations counts bridge request observations by classification
	StatusObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_status_observations_total",
			Help: "Bridge request status observations by classification",
		},
		[]string{"observation"},
	)

	// RelayTransactionsBuilt counts relay transactions handed to the sender
	RelayTransactionsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_transactions_built_total",
			Help: "Total number of relay transactions built",
		},
		[]string{"chain", "method"},
	)

	// GasLimit tracks the gas limit of built relay transactions
	GasLimit = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayer_gas_limit",
			Help:    "Gas limit of built relay transactions",
			Buckets: []float64{21000, 50000, 100000, 200000, 500000, 1000000, 3000000},
		},
		[]string{"chain"},
	)

	// SignatureFailures counts signatures that could not be recovered or were not from an authority
	SignatureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_signature_failures_total",
			Help: "Total number of rejected signatures",
		},
		[]string{"kind", "reason"},
	)

	// BootstrapPhase is the current bootstrap phase code
	BootstrapPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_bootstrap_phase",
			Help: "Current bootstrap phase (0 syncing .. 4 normal)",
		},
	)

	// LastProcessedBlock tracks the last processed block number
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_last_processed_block",
			Help: "Last processed safe block number by chain",
		},
		[]string{"chain"},
	)

	// QueueDepth is the number of relay transactions waiting for the broadcaster
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_queue_depth",
			Help: "Relay transactions waiting in the send queue",
		},
	)

	// ChainlinkPrice is the latest answer of each configured price feed
	ChainlinkPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_chainlink_price",
			Help: "Latest Chainlink price by chain and pair",
		},
		[]string{"chain", "pair"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
