package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the missed-call
// follow-up pipeline.
type PipelineMetrics struct {
	missedCallsTotal *prometheus.CounterVec
	followUpsTotal   *prometheus.CounterVec
	repliesTotal     *prometheus.CounterVec
	voicemailsTotal  *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		missedCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pguai",
			Subsystem: "calls",
			Name:      "missed_total",
			Help:      "Total calls classified as missed",
		}, []string{"call_status"}),
		followUpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pguai",
			Subsystem: "followup",
			Name:      "sent_total",
			Help:      "Total follow-up text attempts",
		}, []string{"status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pguai",
			Subsystem: "sms",
			Name:      "replies_total",
			Help:      "Total AI replies to inbound texts",
		}, []string{"status"}),
		voicemailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pguai",
			Subsystem: "voicemail",
			Name:      "stored_total",
			Help:      "Total voicemail recordings processed",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pguai",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of Twilio webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"webhook"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.missedCallsTotal, m.followUpsTotal, m.repliesTotal, m.voicemailsTotal, m.webhookLatency)
	return m
}

func (m *PipelineMetrics) ObserveMissedCall(callStatus string) {
	if m == nil {
		return
	}
	m.missedCallsTotal.WithLabelValues(callStatus).Inc()
}

func (m *PipelineMetrics) ObserveFollowUp(status string) {
	if m == nil {
		return
	}
	m.followUpsTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveVoicemail(status string) {
	if m == nil {
		return
	}
	m.voicemailsTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveWebhookLatency(webhook string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(webhook).Observe(seconds)
}
