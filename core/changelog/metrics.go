package changelog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query paths reported by gridvar_changelog_queries_total.
const (
	pathBase     = "base"
	pathCached   = "cached"
	pathExtended = "extended"
	pathMerged   = "merged"
)

// Metrics instruments a ChangeLog. A nil *Metrics records nothing.
type Metrics struct {
	changes   *prometheus.CounterVec
	ignored   prometheus.Counter
	queries   *prometheus.CounterVec
	overrides prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridvar_changelog_changes_total",
			Help: "Changes recorded by kind and by scope (base or variant)",
		}, []string{"kind", "scope"}),
		ignored: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridvar_changelog_ignored_total",
			Help: "Updates dropped by the ignore policy",
		}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridvar_changelog_queries_total",
			Help: "History queries by resolution path",
		}, []string{"path"}),
		overrides: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridvar_changelog_override_histories",
			Help: "Variants currently holding an override history",
		}),
	}
}

func (m *Metrics) recordChange(kind ChangeKind, scope string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind.String(), scope).Inc()
}

func (m *Metrics) recordIgnored() {
	if m == nil {
		return
	}
	m.ignored.Inc()
}

func (m *Metrics) recordQuery(path string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(path).Inc()
}

func (m *Metrics) setOverrides(n int) {
	if m == nil {
		return
	}
	m.overrides.Set(float64(n))
}
