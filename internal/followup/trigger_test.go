package followup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

func TestHTTPTrigger_PostsPayload(t *testing.T) {
	var got TriggerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	trigger := NewHTTPTrigger(srv.URL, time.Minute, logging.Default())
	err := trigger.TriggerFollowUp(context.Background(), TriggerRequest{
		PatientNumber:     "+15551230001",
		TwilioPhoneNumber: "+15559990001",
		CallSid:           "CA1",
		ClinicName:        "Point Guard University",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PatientNumber != "+15551230001" || got.CallSid != "CA1" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.ClinicName != "Point Guard University" {
		t.Errorf("expected clinic_name carried through, got %q", got.ClinicName)
	}
}

func TestHTTPTrigger_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	trigger := NewHTTPTrigger(srv.URL, time.Minute, logging.Default())
	err := trigger.TriggerFollowUp(context.Background(), TriggerRequest{CallSid: "CA1"})
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHTTPTrigger_TimeoutCoversConfiguredBudget(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	trigger := NewHTTPTrigger(srv.URL, 50*time.Millisecond, logging.Default())
	err := trigger.TriggerFollowUp(context.Background(), TriggerRequest{CallSid: "CA1"})
	if err == nil {
		t.Fatal("expected a timeout error when the endpoint outlives the budget")
	}
}

func TestLocalTrigger_RunsOrchestrator(t *testing.T) {
	store := &fakeCallStore{rec: &calls.MissedCallRecord{CallSid: "CA1"}}
	sender := &fakeSender{sid: "SM1"}
	o := newTestOrchestrator(&fakeDirectory{}, store, &fakeComposer{followUp: "Hey, this is Nick!"}, sender)
	trigger := NewLocalTrigger(o)

	err := trigger.TriggerFollowUp(context.Background(), TriggerRequest{
		PatientNumber:     "+15551230001",
		TwilioPhoneNumber: "+15559990001",
		CallSid:           "CA1",
		ClinicName:        "Point Guard University",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one text sent, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "+15551230001" || sender.sent[0].From != "+15559990001" {
		t.Errorf("unexpected routing: %#v", sender.sent[0])
	}
	if len(store.completed) != 1 || store.completed[0] != "CA1" {
		t.Errorf("expected CA1 marked completed, got %v", store.completed)
	}
}
