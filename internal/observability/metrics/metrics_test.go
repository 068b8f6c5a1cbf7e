package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsObserve(t *testing.T) {
	m := NewPipelineMetrics(prometheus.NewRegistry())
	m.ObserveMissedCall("no-answer")
	m.ObserveFollowUp("sent")
	m.ObserveReply("sent")
	m.ObserveVoicemail("stored")
	m.ObserveWebhookLatency("voice", 0.5)
}

func TestPipelineMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.ObserveFollowUp("failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() == "pguai_followup_sent_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected follow-up counter to be registered")
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveMissedCall("busy")
	m.ObserveFollowUp("sent")
	m.ObserveReply("sent")
	m.ObserveVoicemail("stored")
	m.ObserveWebhookLatency("voice", 0.1)
}
