package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики операций песочницы платежей.
type EngineMetrics struct {
	chargesCreated  *prometheus.CounterVec
	chargesCaptured *prometheus.CounterVec
	customers       prometheus.Counter
	tokens          prometheus.Counter
	invalidRequests *prometheus.CounterVec
	eventsEnqueued  *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
}

// NewEngineMetrics регистрирует метрики в DefaultRegisterer.
func NewEngineMetrics() *EngineMetrics {
	return NewEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewEngineMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	return &EngineMetrics{
		chargesCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "chargemock_charges_created_total",
			Help: "Total number of charges created grouped by currency and capture mode.",
		}, []string{"currency", "captured"}),
		chargesCaptured: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "chargemock_charges_captured_total",
			Help: "Total number of captures of previously uncaptured charges grouped by kind.",
		}, []string{"kind"}),
		customers: registerCounter(registerer, prometheus.CounterOpts{
			Name: "chargemock_customers_created_total",
			Help: "Total number of customers created.",
		}),
		tokens: registerCounter(registerer, prometheus.CounterOpts{
			Name: "chargemock_tokens_created_total",
			Help: "Total number of card tokens created.",
		}),
		invalidRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "chargemock_invalid_requests_total",
			Help: "Total number of rejected requests grouped by operation, param and status.",
		}, []string{"operation", "param", "status"}),
		eventsEnqueued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "chargemock_events_enqueued_total",
			Help: "Total number of events written to the outbox grouped by type and result.",
		}, []string{"type", "result"}),
		opDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "chargemock_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
	}
}

// RecordChargeCreated учитывает созданный платёж.
func (m *EngineMetrics) RecordChargeCreated(currency string, captured bool) {
	if m == nil {
		return
	}
	m.chargesCreated.WithLabelValues(currency, boolLabel(captured)).Inc()
}

// RecordChargeCaptured учитывает capture; partial — списана не вся сумма.
func (m *EngineMetrics) RecordChargeCaptured(partial bool) {
	if m == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.chargesCaptured.WithLabelValues(kind).Inc()
}

// RecordCustomerCreated учитывает созданного покупателя.
func (m *EngineMetrics) RecordCustomerCreated() {
	if m == nil {
		return
	}
	m.customers.Inc()
}

// RecordTokenCreated учитывает выпущенный токен.
func (m *EngineMetrics) RecordTokenCreated() {
	if m == nil {
		return
	}
	m.tokens.Inc()
}

// RecordInvalidRequest учитывает отклонённый запрос.
func (m *EngineMetrics) RecordInvalidRequest(operation, param string, status int) {
	if m == nil {
		return
	}
	m.invalidRequests.WithLabelValues(operation, param, statusLabel(status)).Inc()
}

// RecordEventEnqueued учитывает запись события в outbox.
func (m *EngineMetrics) RecordEventEnqueued(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsEnqueued.WithLabelValues(eventType, result).Inc()
}

// ObserveOperation записывает длительность операции.
func (m *EngineMetrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status == 404:
		return "404"
	case status >= 400:
		return "400"
	default:
		return "other"
	}
}
