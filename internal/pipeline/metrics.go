package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the orchestration pipeline.
type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	IncidentsCreated  prometheus.Counter
	SuppressionsTotal *prometheus.CounterVec
	CorrelationsTotal *prometheus.CounterVec
	TicketsTotal      *prometheus.CounterVec
	ApprovalsTotal    *prometheus.CounterVec
	ClosesTotal       *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	RunsTotal         *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_events_total",
			Help: "Total events received by routed phase.",
		}, []string{"phase"}),
		IncidentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argus_incidents_created_total",
			Help: "Total incidents created by the monitor pipeline.",
		}),
		SuppressionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_suppressions_total",
			Help: "Total incident creations suppressed by reason.",
		}, []string{"reason"}),
		CorrelationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_correlations_total",
			Help: "Total correlation outcomes by kind.",
		}, []string{"kind"}),
		TicketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_tickets_total",
			Help: "Total ticket operations by operation and result.",
		}, []string{"op", "result"}),
		ApprovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_approvals_total",
			Help: "Total approval webhook decisions by outcome.",
		}, []string{"decision"}),
		ClosesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_closes_total",
			Help: "Total incident closes by mode and result.",
		}, []string{"mode", "result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"stage"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_runs_total",
			Help: "Total monitor pipeline runs by final decision.",
		}, []string{"decision"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.IncidentsCreated,
		m.SuppressionsTotal,
		m.CorrelationsTotal,
		m.TicketsTotal,
		m.ApprovalsTotal,
		m.ClosesTotal,
		m.StageDuration,
		m.RunsTotal,
	)

	return m
}
