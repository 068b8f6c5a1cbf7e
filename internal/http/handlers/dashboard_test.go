package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pointguardu/pgu-ai/internal/observability/metrics"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

func TestDashboardStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)

	m.ObserveMissedCall("no-answer")
	m.ObserveMissedCall("busy")
	m.ObserveFollowUp("sent")
	m.ObserveFollowUp("sent")
	m.ObserveFollowUp("send_failed")
	m.ObserveReply("sent")
	m.ObserveVoicemail("stored")

	h := NewDashboardHandler(reg, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var stats DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.MissedCalls != 2 {
		t.Errorf("expected 2 missed calls, got %v", stats.MissedCalls)
	}
	if stats.FollowUpsSent != 2 {
		t.Errorf("expected 2 follow-ups sent, got %v", stats.FollowUpsSent)
	}
	if stats.FollowUpsFailed != 1 {
		t.Errorf("expected 1 follow-up failure, got %v", stats.FollowUpsFailed)
	}
	if stats.RepliesSent != 1 {
		t.Errorf("expected 1 reply sent, got %v", stats.RepliesSent)
	}
	if stats.VoicemailsStored != 1 {
		t.Errorf("expected 1 voicemail stored, got %v", stats.VoicemailsStored)
	}
}

func TestDashboardStats_EmptyRegistry(t *testing.T) {
	h := NewDashboardHandler(prometheus.NewRegistry(), logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var stats DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.MissedCalls != 0 || stats.FollowUpsSent != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}
