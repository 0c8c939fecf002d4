package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/raine/yandex-direct/internal/direct"
)

// Recorder collects report and listing metrics. It implements
// direct.Observer.
type Recorder struct {
	registry *prometheus.Registry

	// Report polling metrics
	PollsTotal *prometheus.CounterVec
	WaitTotal  *prometheus.CounterVec

	ReportsTotal   *prometheus.CounterVec
	ReportDuration *prometheus.HistogramVec
	ReportRounds   *prometheus.HistogramVec

	// Entity listing metrics
	EntityRequestsTotal *prometheus.CounterVec
	EntitiesListed      *prometheus.CounterVec
}

var _ direct.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,

		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "direct_report_polls_total",
				Help: "Total number of report requests sent, by outcome",
			},
			[]string{"report_type", "outcome"},
		),
		WaitTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "direct_report_wait_seconds_total",
				Help: "Total time the server asked to wait before resubmitting",
			},
			[]string{"report_type"},
		),
		ReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "direct_reports_total",
				Help: "Total number of report runs, by result",
			},
			[]string{"report_type", "result"},
		),
		ReportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "direct_report_duration_seconds",
				Help:    "Report run duration in seconds, including waits",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"report_type"},
		),
		ReportRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "direct_report_rounds",
				Help:    "Number of requests it took to get a report",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
			},
			[]string{"report_type"},
		),
		EntityRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "direct_entity_requests_total",
				Help: "Total number of entity listing requests, by result",
			},
			[]string{"resource", "result"},
		),
		EntitiesListed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "direct_entities_listed_total",
				Help: "Total number of entities returned by listing requests",
			},
			[]string{"resource"},
		),
	}
}

// Registry returns the registry the collectors are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObservePoll(reportType string, outcome direct.Outcome, wait time.Duration) {
	r.PollsTotal.WithLabelValues(reportType, outcome.String()).Inc()
	if wait > 0 {
		r.WaitTotal.WithLabelValues(reportType).Add(wait.Seconds())
	}
}

func (r *Recorder) ObserveReport(reportType string, rounds int, elapsed time.Duration, err error) {
	r.ReportsTotal.WithLabelValues(reportType, direct.ErrorKind(err)).Inc()
	r.ReportDuration.WithLabelValues(reportType).Observe(elapsed.Seconds())
	if rounds > 0 {
		r.ReportRounds.WithLabelValues(reportType).Observe(float64(rounds))
	}
}

func (r *Recorder) ObserveEntities(resource string, count int, err error) {
	r.EntityRequestsTotal.WithLabelValues(resource, direct.ErrorKind(err)).Inc()
	if count > 0 {
		r.EntitiesListed.WithLabelValues(resource).Add(float64(count))
	}
}

// WriteTextfile writes the current values in the text exposition format, for
// node_exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
