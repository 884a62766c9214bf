package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the conversation bridge.
type BridgeMetrics struct {
	inboundTotal     *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	exchangeLatency  *prometheus.HistogramVec
	degradedTotal    *prometheus.CounterVec
	eventLatency     *prometheus.HistogramVec
	activeEventGauge prometheus.Gauge
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "bridge",
			Name:      "inbound_events_total",
			Help:      "Total inbound CCaaS webhook events",
		}, []string{"channel", "intent"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "bridge",
			Name:      "outbound_calls_total",
			Help:      "Total outbound Conversations API calls",
		}, []string{"kind", "status"}),
		exchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "assistant",
			Name:      "exchange_latency_seconds",
			Help:      "Latency of assistant message exchanges",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "bridge",
			Name:      "degraded_replies_total",
			Help:      "Replies produced while the assistant was unavailable",
		}, []string{"routed"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "bridge",
			Name:      "event_duration_seconds",
			Help:      "Wall time to process one inbound event including pauses",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		activeEventGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatbot_proxy",
			Subsystem: "bridge",
			Name:      "events_in_flight",
			Help:      "Inbound events currently being processed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.exchangeLatency, m.degradedTotal, m.eventLatency, m.activeEventGauge)
	return m
}

func (m *BridgeMetrics) ObserveInbound(channel, intent string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, intent).Inc()
}

// ObserveOutbound counts one channel call; kind is message, tag or route.
func (m *BridgeMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BridgeMetrics) ObserveExchange(status string, seconds float64) {
	if m == nil {
		return
	}
	m.exchangeLatency.WithLabelValues(status).Observe(seconds)
}

func (m *BridgeMetrics) ObserveDegraded(routed bool) {
	if m == nil {
		return
	}
	label := "false"
	if routed {
		label = "true"
	}
	m.degradedTotal.WithLabelValues(label).Inc()
}

func (m *BridgeMetrics) ObserveEvent(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.eventLatency.WithLabelValues(outcome).Observe(seconds)
}

// EventStarted increments the in-flight gauge and returns the matching decrement.
func (m *BridgeMetrics) EventStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeEventGauge.Inc()
	return m.activeEventGauge.Dec
}
