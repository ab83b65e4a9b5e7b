package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the lineup Prometheus collectors.
type Metrics struct {
	ProbesTotal    *prometheus.CounterVec
	ProbeDuration  *prometheus.HistogramVec
	Resolutions    *prometheus.CounterVec
	CloudFetches   *prometheus.CounterVec
	ReportsTotal   *prometheus.CounterVec
	AssetDecrypts  *prometheus.CounterVec
	EndpointsReady prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineup_probes_total",
			Help: "Probes issued, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineup_probe_duration_seconds",
			Help:    "Time from dispatch to completion of a probe.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"kind"}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineup_resolutions_total",
			Help: "Top-level resolution attempts by tier that answered and result.",
		}, []string{"tier", "result"}),

		CloudFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineup_cloud_fetches_total",
			Help: "Cloud host list fetches by source and outcome.",
		}, []string{"source", "outcome"}),

		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineup_failure_reports_total",
			Help: "Failed-domain reports dispatched, by outcome.",
		}, []string{"outcome"}),

		AssetDecrypts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineup_asset_decrypts_total",
			Help: "Advert image decrypt requests, by result.",
		}, []string{"result"}),

		EndpointsReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lineup_api_endpoint_resolved",
			Help: "1 when an API endpoint is currently resolved.",
		}),
	}
}

// NewUnregistered returns collectors bound to a private registry, for tests
// and for components built without the app wiring.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
