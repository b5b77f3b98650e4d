package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for turn handling and escalation.
type ConversationMetrics struct {
	turnsTotal         *prometheus.CounterVec
	escalationsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	conflictsTotal     *prometheus.CounterVec
	evaluateLatency    *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support_intel",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total ingested conversation turns",
		}, []string{"role", "category"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support_intel",
			Subsystem: "conversation",
			Name:      "escalations_total",
			Help:      "Total committed escalations",
		}, []string{"category", "priority"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support_intel",
			Subsystem: "conversation",
			Name:      "notifications_total",
			Help:      "Escalation notifications by delivery outcome",
		}, []string{"channel", "status"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support_intel",
			Subsystem: "conversation",
			Name:      "store_conflicts_total",
			Help:      "Optimistic concurrency conflicts on conversation writes",
		}, []string{"operation"}),
		evaluateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "support_intel",
			Subsystem: "conversation",
			Name:      "evaluate_latency_seconds",
			Help:      "Latency of escalation evaluation including commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.escalationsTotal, m.notificationsTotal, m.conflictsTotal, m.evaluateLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(role, category string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(role, category).Inc()
}

func (m *ConversationMetrics) ObserveEscalation(category, priority string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(category, priority).Inc()
}

func (m *ConversationMetrics) ObserveNotification(channel string, delivered bool) {
	if m == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "delivered"
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *ConversationMetrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(operation).Inc()
}

func (m *ConversationMetrics) ObserveEvaluateLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluateLatency.WithLabelValues(outcome).Observe(seconds)
}
