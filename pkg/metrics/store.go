package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records the storefront's purchase and delivery counters.
type StoreMetrics struct {
	purchasesInitiated *prometheus.CounterVec
	purchasesCompleted *prometheus.CounterVec
	purchasesFailed    prometheus.Counter
	webhookEvents      *prometheus.CounterVec
	signedURLs         *prometheus.CounterVec
}

// NewStoreMetrics registers the storefront metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	purchasesInitiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_initiated_total",
		Help: "Purchases opened with the payment gateway, by item type.",
	}, []string{"item_type"})
	purchasesCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_completed_total",
		Help: "Entitlements transitioned to completed, by confirmation source.",
	}, []string{"source"})
	purchasesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Entitlements transitioned to failed.",
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook deliveries, by event and outcome.",
	}, []string{"event", "outcome"})
	signedURLs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signed_urls_issued_total",
		Help: "Time-limited media URLs issued, by purpose.",
	}, []string{"purpose"})
	reg.MustRegister(purchasesInitiated, purchasesCompleted, purchasesFailed, webhookEvents, signedURLs)
	return &StoreMetrics{
		purchasesInitiated: purchasesInitiated,
		purchasesCompleted: purchasesCompleted,
		purchasesFailed:    purchasesFailed,
		webhookEvents:      webhookEvents,
		signedURLs:         signedURLs,
	}
}

// IncPurchaseInitiated increments the initiated counter for the item type.
func (m *StoreMetrics) IncPurchaseInitiated(itemType string) {
	if m == nil || m.purchasesInitiated == nil {
		return
	}
	m.purchasesInitiated.WithLabelValues(normalizeLabel(itemType)).Inc()
}

// IncPurchaseCompleted increments the completed counter for the given
// confirmation source (webhook or verify).
func (m *StoreMetrics) IncPurchaseCompleted(source string) {
	if m == nil || m.purchasesCompleted == nil {
		return
	}
	m.purchasesCompleted.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncPurchaseFailed increments the failed counter.
func (m *StoreMetrics) IncPurchaseFailed() {
	if m == nil || m.purchasesFailed == nil {
		return
	}
	m.purchasesFailed.Inc()
}

// IncWebhookEvent increments the webhook counter for the event and outcome.
func (m *StoreMetrics) IncWebhookEvent(event, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// IncSignedURL increments the issued URL counter for the purpose (stream or download).
func (m *StoreMetrics) IncSignedURL(purpose string) {
	if m == nil || m.signedURLs == nil {
		return
	}
	m.signedURLs.WithLabelValues(normalizeLabel(purpose)).Inc()
}
