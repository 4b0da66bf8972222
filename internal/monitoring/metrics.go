package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/pricetrack/internal/model"
)

// Metrics exports batch and catalog gauges to Prometheus. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	price    *prometheus.GaugeVec
	batches  prometheus.Counter
	stale    prometheus.Gauge
	unpriced prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricetrack_supplier_outcomes_total",
				Help: "Supplier outcomes by result and failure kind.",
			},
			[]string{"supplier", "result", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricetrack_supplier_duration_seconds",
				Help:    "Time spent on one supplier in a batch run.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"supplier"},
		),
		price: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricetrack_current_price_dollars",
				Help: "Most recently observed price per supplier.",
			},
			[]string{"supplier", "battery_id"},
		),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricetrack_batches_total",
			Help: "Completed batch runs.",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricetrack_stale_batteries",
			Help: "Priced batteries with no recent update.",
		}),
		unpriced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricetrack_unpriced_batteries",
			Help: "Batteries that have never been priced.",
		}),
	}
	reg.MustRegister(m.outcomes, m.duration, m.price, m.batches, m.stale, m.unpriced)
	return m
}

// ObserveOutcome records one supplier outcome.
func (m *Metrics) ObserveOutcome(o model.SupplierOutcome) {
	if m == nil {
		return
	}
	result := "success"
	if !o.Success {
		result = "failure"
	}
	m.outcomes.WithLabelValues(o.Supplier, result, string(o.Kind)).Inc()
	m.duration.WithLabelValues(o.Supplier).Observe(o.Duration.Seconds())
	if o.Success {
		m.price.WithLabelValues(o.Supplier, o.EntityID).Set(o.NewPrice)
	}
}

// ObserveBatch records a completed batch run.
func (m *Metrics) ObserveBatch(*model.BatchSummary) {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// ObserveSnapshot records catalog freshness.
func (m *Metrics) ObserveSnapshot(snap *MetricsSnapshot) {
	if m == nil || snap == nil {
		return
	}
	m.stale.Set(float64(len(snap.StaleIDs)))
	m.unpriced.Set(float64(snap.Unpriced))
}
