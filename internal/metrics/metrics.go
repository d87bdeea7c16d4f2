package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeFake labels classifier calls that returned a FAKE verdict.
	OutcomeFake = "fake"
	// OutcomeReal labels classifier calls that returned a REAL verdict.
	OutcomeReal = "real"
	// OutcomeError labels classifier calls that failed.
	OutcomeError = "error"
)

const namespace = "deepfake_watch"

var (
	itemsScannedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_scanned_total",
			Help:      "Total number of content items that passed the filter and were examined.",
		},
	)

	fetchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Total number of failed topic fetches.",
		},
	)

	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifier calls, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_created_total",
			Help:      "Incidents created, partitioned by severity.",
		},
		[]string{"severity"},
	)

	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Incident snapshots that could not be archived.",
		},
	)

	cycleFaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycle_faults_total",
			Help:      "Poll cycles aborted by an internal fault.",
		},
	)

	pollCycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_seconds",
			Help:      "Duration of a full pass over a job's topics.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of monitoring jobs currently active.",
		},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		itemsScannedTotal,
		fetchErrorsTotal,
		classificationsTotal,
		incidentsCreatedTotal,
		archiveFailuresTotal,
		cycleFaultsTotal,
		pollCycleSeconds,
		activeJobs,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveItemScanned() { itemsScannedTotal.Inc() }

func ObserveFetchError() { fetchErrorsTotal.Inc() }

// ObserveClassification records a classifier call outcome.
func ObserveClassification(outcome string) {
	switch outcome {
	case OutcomeFake, OutcomeReal:
	default:
		outcome = OutcomeError
	}
	classificationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveIncident(severity string) {
	incidentsCreatedTotal.WithLabelValues(severity).Inc()
}

func ObserveArchiveFailure() { archiveFailuresTotal.Inc() }

func ObserveCycleFault() { cycleFaultsTotal.Inc() }

// ObservePollCycle records how long one pass over a job's topics took.
func ObservePollCycle(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	pollCycleSeconds.Observe(duration.Seconds())
}

// SetActiveJobs reports the current number of active jobs.
func SetActiveJobs(n int) { activeJobs.Set(float64(n)) }
