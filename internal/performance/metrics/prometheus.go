package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stressline"

// PrometheusObserver mirrors recorded samples into Prometheus collectors.
type PrometheusObserver struct {
	reqs            prometheus.Counter
	reqFailed       prometheus.Counter
	reqDuration     prometheus.Histogram
	dataReceived    prometheus.Counter
	iterations      prometheus.Counter
	iterationErrors prometheus.Counter
	iterDuration    prometheus.Histogram
	checks          *prometheus.CounterVec
	vus             prometheus.Gauge
}

// NewPrometheusObserver registers the run collectors with reg. Every series
// carries a scenario label set to scenarioName.
func NewPrometheusObserver(reg prometheus.Registerer, scenarioName string) *PrometheusObserver {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"scenario": scenarioName}
	buckets := prometheus.ExponentialBuckets(0.001, 2, 15)

	return &PrometheusObserver{
		reqs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_reqs_total",
			Help:        "Total HTTP requests completed.",
			ConstLabels: labels,
		}),
		reqFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_req_failed_total",
			Help:        "HTTP requests that failed at transport level or returned a status outside 200-399.",
			ConstLabels: labels,
		}),
		reqDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_req_duration_seconds",
			Help:        "HTTP request duration.",
			Buckets:     buckets,
			ConstLabels: labels,
		}),
		dataReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "data_received_bytes_total",
			Help:        "Response body bytes received.",
			ConstLabels: labels,
		}),
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "iterations_total",
			Help:        "Workload iterations finished.",
			ConstLabels: labels,
		}),
		iterationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "iteration_errors_total",
			Help:        "Workload iterations that returned an error.",
			ConstLabels: labels,
		}),
		iterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "iteration_duration_seconds",
			Help:        "Workload iteration duration.",
			Buckets:     buckets,
			ConstLabels: labels,
		}),
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "checks_total",
			Help:        "Check evaluations by check name and result.",
			ConstLabels: labels,
		}, []string{"check", "result"}),
		vus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "vus",
			Help:        "Active virtual users.",
			ConstLabels: labels,
		}),
	}
}

func (p *PrometheusObserver) ObserveRequest(d time.Duration, failed bool, bytes int64) {
	p.reqs.Inc()
	if failed {
		p.reqFailed.Inc()
	}
	p.reqDuration.Observe(d.Seconds())
	p.dataReceived.Add(float64(bytes))
}

func (p *PrometheusObserver) ObserveIteration(d time.Duration, err error) {
	p.iterations.Inc()
	if err != nil {
		p.iterationErrors.Inc()
	}
	p.iterDuration.Observe(d.Seconds())
}

func (p *PrometheusObserver) ObserveCheck(name string, ok bool) {
	result := "pass"
	if !ok {
		result = "fail"
	}
	p.checks.WithLabelValues(name, result).Inc()
}

func (p *PrometheusObserver) ObserveVUs(n int) {
	p.vus.Set(float64(n))
}
