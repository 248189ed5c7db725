package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the visit module.
type Metrics struct {
	// New visits by type
	VisitsCreated *prometheus.CounterVec

	// Decisions by outcome and method ("role" or "name")
	Decisions *prometheus.CounterVec

	// Check-ins by trigger ("scan", "manual", or "approval")
	CheckIns *prometheus.CounterVec

	// Completed visits
	CheckOuts prometheus.Counter

	// Refused credential scans by error code
	ScanFailures *prometheus.CounterVec

	// Time from arrival to departure
	VisitDuration prometheus.Histogram

	// Create latency including directory resolution
	CreateLatency prometheus.Histogram
}

// New creates a Metrics instance with all visit module metrics registered.
func New() *Metrics {
	return &Metrics{
		VisitsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_visits_created_total",
			Help: "Total visits created by visit type",
		}, []string{"visit_type"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_visit_decisions_total",
			Help: "Total visit decisions by outcome and method",
		}, []string{"outcome", "method"}),

		CheckIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_visit_check_ins_total",
			Help: "Total recorded arrivals by trigger",
		}, []string{"trigger"}),

		CheckOuts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_visit_check_outs_total",
			Help: "Total recorded departures",
		}),

		ScanFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_credential_scan_failures_total",
			Help: "Credential scans refused, by error code",
		}, []string{"reason"}),

		VisitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_visit_duration_minutes",
			Help:    "Visit duration from check-in to check-out in minutes",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 480},
		}),

		CreateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_visit_create_duration_seconds",
			Help:    "Duration of visit creation including directory resolution",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementCreated records a new visit.
func (m *Metrics) IncrementCreated(visitType string) {
	if m != nil {
		m.VisitsCreated.WithLabelValues(visitType).Inc()
	}
}

// IncrementDecision records a decision outcome.
func (m *Metrics) IncrementDecision(outcome, method string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome, method).Inc()
	}
}

// IncrementCheckIn records an arrival.
func (m *Metrics) IncrementCheckIn(trigger string) {
	if m != nil {
		m.CheckIns.WithLabelValues(trigger).Inc()
	}
}

// IncrementCheckOut records a departure.
func (m *Metrics) IncrementCheckOut() {
	if m != nil {
		m.CheckOuts.Inc()
	}
}

// IncrementScanFailure records a refused scan.
func (m *Metrics) IncrementScanFailure(reason string) {
	if m != nil {
		m.ScanFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveVisitDuration records how long a visitor stayed.
func (m *Metrics) ObserveVisitDuration(minutes int) {
	if m != nil {
		m.VisitDuration.Observe(float64(minutes))
	}
}

// ObserveCreateLatency records the time spent creating a visit.
func (m *Metrics) ObserveCreateLatency(d time.Duration) {
	if m != nil {
		m.CreateLatency.Observe(d.Seconds())
	}
}
