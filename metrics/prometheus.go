package metrics

import (
	"time"

	"time_horizon/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the breaker's decisions as Prometheus metrics.
type Recorder struct {
	stressLevel       prometheus.Gauge
	interventionLevel prometheus.Gauge
	evaluations       *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	softThrottles     prometheus.Counter
	publications      *prometheus.CounterVec
	indicatorFallback prometheus.Counter
	fetchDuration     *prometheus.HistogramVec
	historyFailures   prometheus.Counter
}

// New registers the metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stressLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "timehorizon_stress_level",
			Help: "Stress level of the most recent evaluation",
		}),
		interventionLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "timehorizon_intervention_level",
			Help: "Active intervention level (1=monitoring .. 5=global speed limit)",
		}),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timehorizon_evaluations_total",
				Help: "Completed evaluation cycles by intervention level",
			},
			[]string{"level"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timehorizon_level_transitions_total",
				Help: "Intervention level changes",
			},
			[]string{"from", "to"},
		),
		softThrottles: f.NewCounter(prometheus.CounterOpts{
			Name: "timehorizon_soft_throttle_activations_total",
			Help: "Soft-throttle cycles that applied a delay",
		}),
		publications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timehorizon_glass_floor_publications_total",
				Help: "Transparency publications by result",
			},
			[]string{"result"},
		),
		indicatorFallback: f.NewCounter(prometheus.CounterOpts{
			Name: "timehorizon_indicator_fallbacks_total",
			Help: "Indicator fetches that fell back to conservative defaults",
		}),
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timehorizon_indicator_fetch_seconds",
				Help:    "Indicator fetch latency including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"attempts"},
		),
		historyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "timehorizon_history_append_failures_total",
			Help: "History appends that failed",
		}),
	}
}

// ObserveOutcome records a completed evaluation.
func (r *Recorder) ObserveOutcome(o market.Outcome) {
	r.stressLevel.Set(o.StressLevel)
	r.interventionLevel.Set(float64(o.Level))
	r.evaluations.WithLabelValues(o.Level.String()).Inc()
}

// ObserveTransition records a level change.
func (r *Recorder) ObserveTransition(from, to market.InterventionLevel) {
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// ObserveSoftThrottle records a soft-throttle cycle that delayed orders.
func (r *Recorder) ObserveSoftThrottle() {
	r.softThrottles.Inc()
}

// ObservePublish implements ledger.PublishObserver.
func (r *Recorder) ObservePublish(result string) {
	r.publications.WithLabelValues(result).Inc()
}

// ObserveFetch implements oracle.FetchObserver.
func (r *Recorder) ObserveFetch(attempts int, fallback bool, elapsed time.Duration) {
	if fallback {
		r.indicatorFallback.Inc()
	}
	r.fetchDuration.WithLabelValues(attemptsLabel(attempts)).Observe(elapsed.Seconds())
}

// ObserveHistoryFailure records a failed history append.
func (r *Recorder) ObserveHistoryFailure() {
	r.historyFailures.Inc()
}

func attemptsLabel(n int) string {
	switch {
	case n <= 1:
		return "1"
	case n == 2:
		return "2"
	default:
		return "3+"
	}
}
