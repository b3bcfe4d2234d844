package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics exposes counters/histograms for orchestrated conversation turns.
type TurnMetrics struct {
	turnsTotal             *prometheus.CounterVec
	turnLatency            *prometheus.HistogramVec
	searchesTotal          prometheus.Counter
	classificationFailures prometheus.Counter
	outboundTotal          *prometheus.CounterVec
}

func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinechat",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total orchestrated turns",
		}, []string{"channel", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cinechat",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one orchestrated turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		searchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cinechat",
			Subsystem: "conversation",
			Name:      "searches_total",
			Help:      "Turns in which the dialog triggered a movie search",
		}),
		classificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cinechat",
			Subsystem: "conversation",
			Name:      "classification_failures_total",
			Help:      "Classifier calls that failed or returned no classes",
		}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinechat",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound SMS sends",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.searchesTotal, m.classificationFailures, m.outboundTotal)
	return m
}

func (m *TurnMetrics) ObserveTurn(channel, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *TurnMetrics) ObserveTurnLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *TurnMetrics) ObserveSearch() {
	if m == nil {
		return
	}
	m.searchesTotal.Inc()
}

func (m *TurnMetrics) ObserveClassificationFailure() {
	if m == nil {
		return
	}
	m.classificationFailures.Inc()
}

func (m *TurnMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}
