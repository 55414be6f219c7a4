// Package metrics records service metrics in a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "folio"

// Recorder implements the observer interfaces of the diagram, pageview and
// pipeline packages. A nil *Recorder records nothing.
type Recorder struct {
	reg              *prom.Registry
	diagramDuration  *prom.HistogramVec
	diagramResults   *prom.CounterVec
	pageviews        *prom.CounterVec
	buildDuration    prom.Histogram
	buildOutcome     *prom.CounterVec
	diagramRetries   prom.Counter
	publishedEntries prom.Gauge
}

// NewRecorder registers metrics on reg, or on a fresh registry when reg is
// nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		diagramDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "diagram_render_duration_seconds",
			Help:      "Duration of diagram engine render calls",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		diagramResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "diagram_renders_total",
			Help:      "Diagram engine render calls by result",
		}, []string{"result"}),
		pageviews: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pageviews_total",
			Help:      "Counted project page views",
		}, []string{"slug"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total site build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Site builds by final status",
		}, []string{"outcome"}),
		diagramRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "diagram_prerender_retries_total",
			Help:      "Retried diagram prerenders after transient engine failures",
		}),
		publishedEntries: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "published_projects",
			Help:      "Published projects in the live site",
		}),
	}
	reg.MustRegister(r.diagramDuration, r.diagramResults, r.pageviews,
		r.buildDuration, r.buildOutcome, r.diagramRetries, r.publishedEntries)
	return r
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (r *Recorder) ObserveDiagramRender(d time.Duration, success bool) {
	if r == nil {
		return
	}
	r.diagramDuration.WithLabelValues(result(success)).Observe(d.Seconds())
	r.diagramResults.WithLabelValues(result(success)).Inc()
}

func (r *Recorder) IncPageview(slug string) {
	if r == nil {
		return
	}
	r.pageviews.WithLabelValues(slug).Inc()
}

func (r *Recorder) ObserveBuild(d time.Duration, outcome string) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(d.Seconds())
	r.buildOutcome.WithLabelValues(outcome).Inc()
}

func (r *Recorder) IncDiagramRetry() {
	if r == nil {
		return
	}
	r.diagramRetries.Inc()
}

func (r *Recorder) SetPublished(n int) {
	if r == nil {
		return
	}
	r.publishedEntries.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
