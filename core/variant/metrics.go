package variant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments variant lifecycle operations. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	clones   *prometheus.CounterVec
	removals prometheus.Counter
	live     prometheus.Gauge
}

// NewMetrics registers the variant metrics with reg. A nil reg falls back to
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		clones: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridvar_variant_clones_total",
			Help: "Total variant clones by whether the target was overwritten",
		}, []string{"mode"}),
		removals: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridvar_variant_removals_total",
			Help: "Total variants removed",
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridvar_variant_live",
			Help: "Number of live variants",
		}),
	}
}

func (m *Metrics) recordClone(overwritten bool) {
	if m == nil {
		return
	}
	mode := "create"
	if overwritten {
		mode = "overwrite"
	}
	m.clones.WithLabelValues(mode).Inc()
}

func (m *Metrics) recordRemoval() {
	if m == nil {
		return
	}
	m.removals.Inc()
}

func (m *Metrics) setLive(n int) {
	if m == nil {
		return
	}
	m.live.Set(float64(n))
}
