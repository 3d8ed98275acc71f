// Package observability provides Prometheus metrics instrumentation for the
// yard simulation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// ALLOCATION METRICS
// =============================================================================

var (
	allocationAuctionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yardctl_allocation_auctions_total",
			Help: "Total number of Contract-Net allocation auctions run by container agents",
		},
		[]string{"status"}, // status: allocated, refused
	)

	allocationAuctionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yardctl_allocation_auction_duration_seconds",
			Help:    "Time from CFP fan-out to a winning slot's result notification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	slotStackDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yardctl_slot_stack_depth",
			Help: "Current number of containers stacked on a slot",
		},
		[]string{"slot"},
	)
)

// =============================================================================
// DEALLOCATION / REALLOCATION METRICS
// =============================================================================

var (
	deallocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yardctl_deallocations_total",
			Help: "Total number of containers removed from a slot stack",
		},
		[]string{"cause"}, // cause: self, port_manager
	)

	reallocationCascadeLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yardctl_reallocation_cascade_length",
			Help:    "Number of blocking containers reallocated in a single self-deallocation cascade",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	forcedReallocationSecondsSaved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yardctl_forced_reallocation_seconds_from_departure",
			Help:    "Evaluation score E observed when a slot proposes during an allocation auction",
			Buckets: []float64{0, 60, 300, 900, 1800, 3600, 7200},
		},
	)
)

// =============================================================================
// DIRECTORY FACILITATOR METRICS
// =============================================================================

var (
	dfRegistryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yardctl_df_registry_entries",
			Help: "Current number of service descriptions filed with the directory facilitator",
		},
	)

	dfSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yardctl_df_searches_total",
			Help: "Total directory facilitator searches",
		},
		[]string{"result"}, // result: hit, miss
	)
)

// =============================================================================
// MESSAGE TRANSPORT METRICS
// =============================================================================

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yardctl_messages_sent_total",
			Help: "Total ACL messages sent through the transport bus",
		},
		[]string{"performative"},
	)

	transportErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yardctl_transport_errors_total",
			Help: "Total transport errors raised while sending a message",
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordAllocationAuction records an allocation auction's outcome and
// duration.
func RecordAllocationAuction(status string, durationSeconds float64) {
	allocationAuctionsTotal.WithLabelValues(status).Inc()
	if status == "allocated" {
		allocationAuctionDurationSeconds.Observe(durationSeconds)
	}
}

// SetSlotStackDepth reports a slot's current occupancy.
func SetSlotStackDepth(slot string, depth int) {
	slotStackDepth.WithLabelValues(slot).Set(float64(depth))
}

// RecordDeallocation records a container leaving a slot.
func RecordDeallocation(cause string) {
	deallocationsTotal.WithLabelValues(cause).Inc()
}

// RecordReallocationCascade records how many containers a single
// self-deallocation cascade had to reallocate.
func RecordReallocationCascade(length int) {
	reallocationCascadeLength.Observe(float64(length))
}

// RecordAllocationProposalScore records the evaluation score E offered by a
// slot during an allocation auction.
func RecordAllocationProposalScore(secondsFromDeparture float64) {
	forcedReallocationSecondsSaved.Observe(secondsFromDeparture)
}

// SetDFRegistryEntries reports the directory facilitator's current
// registration count.
func SetDFRegistryEntries(n int) {
	dfRegistryEntries.Set(float64(n))
}

// RecordDFSearch records a directory facilitator search's outcome.
func RecordDFSearch(result string) {
	dfSearchesTotal.WithLabelValues(result).Inc()
}

// RecordMessageSent records an outgoing ACL message by performative.
func RecordMessageSent(performative string) {
	messagesSentTotal.WithLabelValues(performative).Inc()
}

// RecordTransportError records a failed Send.
func RecordTransportError() {
	transportErrorsTotal.Inc()
}
