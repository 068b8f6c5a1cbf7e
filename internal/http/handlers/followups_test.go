package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pointguardu/pgu-ai/internal/followup"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

type fakeFollowUpSender struct {
	requests []followup.FollowUpRequest
	err      error
}

func (f *fakeFollowUpSender) SendFollowUp(ctx context.Context, req followup.FollowUpRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func TestFollowUpSend(t *testing.T) {
	sender := &fakeFollowUpSender{}
	h := NewFollowUpHandler(sender, logging.Default())

	body := `{"patient_number": "+15551230001", "twilio_phone_number": "+15559990001", "call_sid": "CA1", "clinic_name": "Point Guard University"}`
	req := httptest.NewRequest(http.MethodPost, "/followups/send", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(sender.requests) != 1 {
		t.Fatalf("expected one follow-up, got %d", len(sender.requests))
	}
	got := sender.requests[0]
	if got.CallSid != "CA1" || got.CallerNumber != "+15551230001" || got.BusinessLine != "+15559990001" {
		t.Errorf("unexpected follow-up request: %+v", got)
	}
}

func TestFollowUpSend_MissingFieldRejected(t *testing.T) {
	cases := map[string]string{
		"no patient_number":      `{"twilio_phone_number": "+15559990001", "call_sid": "CA1", "clinic_name": "PGU"}`,
		"no twilio_phone_number": `{"patient_number": "+15551230001", "call_sid": "CA1", "clinic_name": "PGU"}`,
		"no call_sid":            `{"patient_number": "+15551230001", "twilio_phone_number": "+15559990001", "clinic_name": "PGU"}`,
		"no clinic_name":         `{"patient_number": "+15551230001", "twilio_phone_number": "+15559990001", "call_sid": "CA1"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			sender := &fakeFollowUpSender{}
			h := NewFollowUpHandler(sender, logging.Default())

			req := httptest.NewRequest(http.MethodPost, "/followups/send", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.Send(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if len(sender.requests) != 0 {
				t.Errorf("expected no follow-up attempted")
			}
		})
	}
}

func TestFollowUpSend_InvalidJSON(t *testing.T) {
	h := NewFollowUpHandler(&fakeFollowUpSender{}, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/followups/send", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestFollowUpSend_PipelineFailure(t *testing.T) {
	sender := &fakeFollowUpSender{err: errors.New("sms send failed")}
	h := NewFollowUpHandler(sender, logging.Default())

	body := `{"patient_number": "+15551230001", "twilio_phone_number": "+15559990001", "call_sid": "CA1", "clinic_name": "PGU"}`
	req := httptest.NewRequest(http.MethodPost, "/followups/send", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}
