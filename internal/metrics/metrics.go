// Package metrics expone métricas Prometheus del syncer y las mutaciones.
// El daemon watch las sirve en /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	refreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wactl_refreshes_total",
		Help: "Número total de refreshes por track",
	}, []string{"track", "outcome"})

	refreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wactl_refresh_duration_seconds",
		Help:    "Latencia de los refreshes por track",
		Buckets: prometheus.DefBuckets,
	}, []string{"track"})

	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wactl_mutations_total",
		Help: "Número total de mutaciones por tipo",
	}, []string{"kind", "outcome"})

	registerOnce sync.Once
)

// Register registra los collectors y retorna el handler para /metrics.
// Idempotente. registry nil usa el default.
func Register(registry prometheus.Registerer) http.Handler {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		registry.MustRegister(refreshesTotal, refreshDuration, mutationsTotal)
	})
	return promhttp.Handler()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveRefresh registra el resultado y la duración de un refresh.
func ObserveRefresh(track string, ok bool, dur time.Duration) {
	refreshesTotal.WithLabelValues(track, outcome(ok)).Inc()
	refreshDuration.WithLabelValues(track).Observe(dur.Seconds())
}

// ObserveMutation registra el resultado de una mutación.
func ObserveMutation(kind string, ok bool) {
	mutationsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}
