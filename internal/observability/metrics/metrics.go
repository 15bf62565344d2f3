package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	registry *prometheus.Registry

	invoicesGenerated *prometheus.CounterVec
	transmissions     *prometheus.CounterVec
	sefazDuration     *prometheus.HistogramVec
	certificateDays   *prometheus.GaugeVec
}

// New configures the domain instruments on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notazul_invoices_generated_total",
			Help: "Invoices generated, by document model.",
		}, []string{"model"}),
		transmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notazul_sefaz_transmissions_total",
			Help: "SEFAZ operations, by operation and outcome status.",
		}, []string{"operation", "status"}),
		sefazDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notazul_sefaz_duration_seconds",
			Help:    "SEFAZ round trip latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		certificateDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notazul_certificate_days_remaining",
			Help: "Days until the business certificate expires.",
		}, []string{"business_id"}),
	}

	registry.MustRegister(m.invoicesGenerated, m.transmissions, m.sefazDuration, m.certificateDays)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordInvoiceGenerated increments the generated invoice count.
func (m *Metrics) RecordInvoiceGenerated(model string) {
	if m == nil {
		return
	}
	m.invoicesGenerated.WithLabelValues(strings.TrimSpace(model)).Inc()
}

// RecordTransmission records one SEFAZ operation outcome.
func (m *Metrics) RecordTransmission(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.transmissions.WithLabelValues(strings.TrimSpace(operation), strings.TrimSpace(status)).Inc()
	m.sefazDuration.WithLabelValues(strings.TrimSpace(operation)).Observe(seconds)
}

// SetCertificateDaysRemaining reports certificate validity per business.
func (m *Metrics) SetCertificateDaysRemaining(businessID string, days float64) {
	if m == nil {
		return
	}
	m.certificateDays.WithLabelValues(strings.TrimSpace(businessID)).Set(days)
}
