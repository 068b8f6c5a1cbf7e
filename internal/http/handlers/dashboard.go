package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pointguardu/pgu-ai/pkg/logging"
)

// DashboardHandler serves aggregate pipeline counters for the dashboard.
// The numbers come straight from the process's Prometheus registry, so
// they reset on restart; historical reporting reads the tables instead.
type DashboardHandler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewDashboardHandler creates the dashboard stats handler.
func NewDashboardHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{gatherer: gatherer, logger: logger}
}

// DashboardStats is the response body for GET /api/dashboard/stats.
type DashboardStats struct {
	MissedCalls      float64 `json:"missed_calls"`
	FollowUpsSent    float64 `json:"follow_ups_sent"`
	FollowUpsFailed  float64 `json:"follow_ups_failed"`
	RepliesSent      float64 `json:"replies_sent"`
	VoicemailsStored float64 `json:"voicemails_stored"`
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	families, err := h.gatherer.Gather()
	if err != nil {
		h.logger.Error("failed to gather metrics", "error", err)
		http.Error(w, `{"error": "failed to gather stats"}`, http.StatusInternalServerError)
		return
	}

	var stats DashboardStats
	for _, family := range families {
		switch family.GetName() {
		case "pguai_calls_missed_total":
			stats.MissedCalls = sumCounters(family, "", "")
		case "pguai_followup_sent_total":
			stats.FollowUpsSent = sumCounters(family, "status", "sent")
			stats.FollowUpsFailed = sumCounters(family, "", "") - stats.FollowUpsSent
		case "pguai_sms_replies_total":
			stats.RepliesSent = sumCounters(family, "status", "sent")
		case "pguai_voicemail_stored_total":
			stats.VoicemailsStored = sumCounters(family, "status", "stored")
		}
	}

	respondJSON(w, http.StatusOK, stats)
}

// sumCounters totals the counter samples in a family. When labelName is
// set, only samples whose label matches labelValue count.
func sumCounters(family *dto.MetricFamily, labelName, labelValue string) float64 {
	var total float64
	for _, metric := range family.GetMetric() {
		if labelName != "" && !hasLabel(metric, labelName, labelValue) {
			continue
		}
		if counter := metric.GetCounter(); counter != nil {
			total += counter.GetValue()
		}
	}
	return total
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
