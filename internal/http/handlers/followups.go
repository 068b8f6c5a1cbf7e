package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pointguardu/pgu-ai/internal/followup"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

type followUpSender interface {
	SendFollowUp(ctx context.Context, req followup.FollowUpRequest) error
}

// FollowUpHandler exposes the follow-up pipeline over HTTP. The status
// callback (or an external scheduler) posts here to send the text for a
// recorded missed call.
type FollowUpHandler struct {
	sender followUpSender
	logger *logging.Logger
}

// NewFollowUpHandler creates the follow-up HTTP handler.
func NewFollowUpHandler(sender followUpSender, logger *logging.Logger) *FollowUpHandler {
	if sender == nil {
		panic("handlers: follow-up sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowUpHandler{sender: sender, logger: logger}
}

// Send handles POST /followups/send. The body carries the trigger payload;
// all four fields are required.
func (h *FollowUpHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req followup.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.PatientNumber == "" || req.TwilioPhoneNumber == "" || req.CallSid == "" || req.ClinicName == "" {
		h.logger.Warn("follow-up request missing fields", "call_sid", req.CallSid)
		http.Error(w, `{"error": "patient_number, twilio_phone_number, call_sid and clinic_name are required"}`, http.StatusBadRequest)
		return
	}

	err := h.sender.SendFollowUp(r.Context(), followup.FollowUpRequest{
		CallSid:      req.CallSid,
		CallerNumber: req.PatientNumber,
		BusinessLine: req.TwilioPhoneNumber,
	})
	if err != nil {
		h.logger.Error("follow-up failed", "error", err, "call_sid", req.CallSid)
		http.Error(w, `{"error": "failed to send follow-up"}`, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "call_sid": req.CallSid})
}
