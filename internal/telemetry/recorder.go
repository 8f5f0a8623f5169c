// Package telemetry records session counters with Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements the backend and workflow metric hooks on a private
// registry, so a CLI run can dump its counters to a textfile.
type Recorder struct {
	registry        *prometheus.Registry
	submissions     *prometheus.CounterVec
	polls           *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder registers the cloudmigrate metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudmigrate_submissions_total",
				Help: "Migration submissions by job kind",
			},
			[]string{"kind"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudmigrate_polls_total",
				Help: "Job status polls by outcome (ok or transient)",
			},
			[]string{"outcome"},
		),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudmigrate_jobs_finished_total",
				Help: "Migration jobs that stopped being observed, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudmigrate_request_duration_seconds",
				Help:    "Backend request latency by call and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"call", "status"},
		),
	}
	r.registry.MustRegister(r.submissions, r.polls, r.jobsFinished, r.requestDuration)
	return r
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) SubmissionStarted(kind string) {
	r.submissions.WithLabelValues(kind).Inc()
}

func (r *Recorder) PollObserved(transient bool) {
	outcome := "ok"
	if transient {
		outcome = "transient"
	}
	r.polls.WithLabelValues(outcome).Inc()
}

func (r *Recorder) JobFinished(kind, outcome string) {
	r.jobsFinished.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) ObserveRequest(call string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.requestDuration.WithLabelValues(call, status).Observe(duration.Seconds())
}

// WriteTextfile writes the current values in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
