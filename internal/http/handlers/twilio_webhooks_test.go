package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/internal/followup"
	"github.com/pointguardu/pgu-ai/internal/messaging"
	"github.com/pointguardu/pgu-ai/internal/notify"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

type fakeDirectory struct {
	client *directory.ClientRecord
	err    error
}

func (f *fakeDirectory) GetByLine(ctx context.Context, line string) (*directory.ClientRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func (f *fakeDirectory) GetByID(ctx context.Context, clientID string) (*directory.ClientRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeCallRecorder struct {
	mu            sync.Mutex
	recorded      []*calls.MissedCallRecord
	recordErr     error
	voicemailSids []string
	voicemailURLs []string
	voicemailErr  error
}

func (f *fakeCallRecorder) RecordMissedCall(ctx context.Context, rec *calls.MissedCallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeCallRecorder) FindByCallSid(ctx context.Context, callSid string) (*calls.MissedCallRecord, error) {
	return nil, calls.ErrCallNotFound
}

func (f *fakeCallRecorder) SetVoicemailURL(ctx context.Context, callSid, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voicemailErr != nil {
		return f.voicemailErr
	}
	f.voicemailSids = append(f.voicemailSids, callSid)
	f.voicemailURLs = append(f.voicemailURLs, url)
	return nil
}

type fakeTrigger struct {
	fired chan followup.TriggerRequest
	err   error
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{fired: make(chan followup.TriggerRequest, 1)}
}

func (f *fakeTrigger) TriggerFollowUp(ctx context.Context, req followup.TriggerRequest) error {
	f.fired <- req
	return f.err
}

type fakeVoicemailStore struct {
	enabled   bool
	storedURL string
	err       error
	callSids  []string
}

func (f *fakeVoicemailStore) Enabled() bool { return f.enabled }

func (f *fakeVoicemailStore) SaveFromTwilio(ctx context.Context, callSid, recordingURL string) (string, error) {
	f.callSids = append(f.callSids, callSid)
	if f.err != nil {
		return "", f.err
	}
	return f.storedURL, nil
}

type fakeInbound struct {
	reply string
	err   error
	seen  []*messaging.InboundSMS
}

func (f *fakeInbound) HandleInboundText(ctx context.Context, sms *messaging.InboundSMS) (string, error) {
	f.seen = append(f.seen, sms)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type captureEmail struct {
	messages []notify.EmailMessage
	err      error
}

func (c *captureEmail) Send(ctx context.Context, msg notify.EmailMessage) error {
	c.messages = append(c.messages, msg)
	return c.err
}

func newTestHandler(dir *fakeDirectory, store *fakeCallRecorder, trigger *fakeTrigger, vmStore *fakeVoicemailStore, inbound *fakeInbound, email *captureEmail) *TwilioWebhookHandler {
	var notifier *notify.VoicemailNotifier
	if email != nil {
		notifier = notify.NewVoicemailNotifier(email, logging.Default())
	}
	return NewTwilioWebhookHandler(
		"", "https://api.pgucamps.com",
		dir, store, trigger, vmStore, notifier, inbound,
		nil, logging.Default(),
	)
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestVoice_ReturnsRecordingTwiML(t *testing.T) {
	h := newTestHandler(&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallSid", "CA100")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("CallStatus", "ringing")

	w := httptest.NewRecorder()
	h.Voice(w, postForm("/webhooks/twilio/voice", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected Content-Type text/xml, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Record") {
		t.Errorf("expected TwiML to record a voicemail, got %s", body)
	}
	if !strings.Contains(body, "https://api.pgucamps.com/webhooks/twilio/recording") {
		t.Errorf("expected recording callback to use the public base url, got %s", body)
	}
}

func TestStatusCallback_MissedCallRecordsAndTriggers(t *testing.T) {
	dir := &fakeDirectory{client: &directory.ClientRecord{
		ClientID:  "pgu-main",
		Name:      "Point Guard University",
		PhoneLine: "+15559990001",
	}}
	store := &fakeCallRecorder{}
	trigger := newFakeTrigger()
	h := newTestHandler(dir, store, trigger, nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallSid", "CA200")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("CallStatus", "no-answer")

	w := httptest.NewRecorder()
	h.StatusCallback(w, postForm("/webhooks/twilio/status", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if missed, _ := resp["missed"].(bool); !missed {
		t.Errorf("expected missed=true, got %v", resp)
	}

	store.mu.Lock()
	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded call, got %d", len(store.recorded))
	}
	rec := store.recorded[0]
	store.mu.Unlock()
	if rec.CallSid != "CA200" || rec.ClientID != "pgu-main" || rec.ClinicName == "" {
		t.Errorf("unexpected record: %+v", rec)
	}

	select {
	case req := <-trigger.fired:
		if req.CallSid != "CA200" || req.PatientNumber != "+15551230001" {
			t.Errorf("unexpected trigger payload: %+v", req)
		}
		if req.ClinicName != "Point Guard University" {
			t.Errorf("expected trigger to carry the business name, got %q", req.ClinicName)
		}
	case <-time.After(time.Second):
		t.Fatal("expected follow-up trigger to fire")
	}
}

func TestStatusCallback_ShortCompletedCallIsMissed(t *testing.T) {
	store := &fakeCallRecorder{}
	trigger := newFakeTrigger()
	h := newTestHandler(&fakeDirectory{}, store, trigger, nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallSid", "CA201")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "12")

	w := httptest.NewRecorder()
	h.StatusCallback(w, postForm("/webhooks/twilio/status", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	select {
	case <-trigger.fired:
	case <-time.After(time.Second):
		t.Fatal("expected short completed call to trigger a follow-up")
	}
}

func TestStatusCallback_AnsweredCallIsIgnored(t *testing.T) {
	store := &fakeCallRecorder{}
	trigger := newFakeTrigger()
	h := newTestHandler(&fakeDirectory{}, store, trigger, nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallSid", "CA202")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "180")

	w := httptest.NewRecorder()
	h.StatusCallback(w, postForm("/webhooks/twilio/status", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if missed, _ := resp["missed"].(bool); missed {
		t.Errorf("expected missed=false for an answered call")
	}
	if len(store.recorded) != 0 {
		t.Errorf("expected no record for an answered call")
	}
	select {
	case <-trigger.fired:
		t.Fatal("expected no trigger for an answered call")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStatusCallback_MissingFields(t *testing.T) {
	h := newTestHandler(&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallStatus", "no-answer")

	w := httptest.NewRecorder()
	h.StatusCallback(w, postForm("/webhooks/twilio/status", form))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestStatusCallback_UnknownLineStillRecords(t *testing.T) {
	dir := &fakeDirectory{err: directory.ErrNotFound}
	store := &fakeCallRecorder{}
	trigger := newFakeTrigger()
	h := newTestHandler(dir, store, trigger, nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("CallSid", "CA203")
	form.Set("From", "+15551230001")
	form.Set("To", "+15550000000")
	form.Set("CallStatus", "busy")

	w := httptest.NewRecorder()
	h.StatusCallback(w, postForm("/webhooks/twilio/status", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown line, got %d", w.Code)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("expected the call recorded without a client id")
	}
	if store.recorded[0].ClientID != "" {
		t.Errorf("expected empty client id, got %q", store.recorded[0].ClientID)
	}

	// The placeholder name keeps the payload valid for /followups/send.
	select {
	case req := <-trigger.fired:
		if req.ClinicName != "Unknown Clinic" {
			t.Errorf("expected placeholder clinic name, got %q", req.ClinicName)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the follow-up trigger to fire for an unknown line")
	}
}

func TestRecording_StoresAndNotifies(t *testing.T) {
	dir := &fakeDirectory{client: &directory.ClientRecord{
		ClientID:    "pgu-main",
		Name:        "Point Guard University",
		PhoneLine:   "+15559990001",
		NotifyEmail: "coach@pgucamps.com",
	}}
	store := &fakeCallRecorder{}
	vmStore := &fakeVoicemailStore{enabled: true, storedURL: "https://recordings.s3.us-east-1.amazonaws.com/voicemails/CA300-abc.wav"}
	email := &captureEmail{}
	h := newTestHandler(dir, store, newFakeTrigger(), vmStore, &fakeInbound{}, email)

	form := url.Values{}
	form.Set("CallSid", "CA300")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("RecordingUrl", "https://api.twilio.com/recordings/RE1")
	form.Set("RecordingSid", "RE1")

	w := httptest.NewRecorder()
	h.Recording(w, postForm("/webhooks/twilio/recording", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(vmStore.callSids) != 1 || vmStore.callSids[0] != "CA300" {
		t.Errorf("expected voicemail archived for CA300, got %v", vmStore.callSids)
	}
	if len(store.voicemailURLs) != 1 || store.voicemailURLs[0] != vmStore.storedURL {
		t.Errorf("expected the stored url attached to the record, got %v", store.voicemailURLs)
	}
	if len(email.messages) != 1 {
		t.Fatalf("expected one voicemail email, got %d", len(email.messages))
	}
	msg := email.messages[0]
	if msg.To != "coach@pgucamps.com" {
		t.Errorf("expected email to the client's notify address, got %s", msg.To)
	}
	if !strings.Contains(msg.Body, vmStore.storedURL) {
		t.Errorf("expected email body to carry the playback link")
	}
}

func TestRecording_ArchiveFailureFallsBackToTwilioURL(t *testing.T) {
	dir := &fakeDirectory{client: &directory.ClientRecord{
		ClientID:    "pgu-main",
		PhoneLine:   "+15559990001",
		NotifyEmail: "coach@pgucamps.com",
	}}
	store := &fakeCallRecorder{}
	vmStore := &fakeVoicemailStore{enabled: true, err: errors.New("s3 unavailable")}
	email := &captureEmail{}
	h := newTestHandler(dir, store, newFakeTrigger(), vmStore, &fakeInbound{}, email)

	form := url.Values{}
	form.Set("CallSid", "CA301")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("RecordingUrl", "https://api.twilio.com/recordings/RE2")

	w := httptest.NewRecorder()
	h.Recording(w, postForm("/webhooks/twilio/recording", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 even when archiving fails, got %d", w.Code)
	}
	if len(store.voicemailURLs) != 1 || store.voicemailURLs[0] != "https://api.twilio.com/recordings/RE2" {
		t.Errorf("expected fallback to the twilio url, got %v", store.voicemailURLs)
	}
	if len(email.messages) != 1 || !strings.Contains(email.messages[0].Body, "https://api.twilio.com/recordings/RE2") {
		t.Errorf("expected email to link the twilio recording")
	}
}

func TestSMS_RunsReplyPipeline(t *testing.T) {
	inbound := &fakeInbound{reply: "Nick here! Camp registration is at www.pgucamps.com."}
	h := newTestHandler(&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, inbound, nil)

	form := url.Values{}
	form.Set("MessageSid", "SM400")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("Body", "How much is the camp?")

	w := httptest.NewRecorder()
	h.SMS(w, postForm("/webhooks/twilio/sms", form))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(inbound.seen) != 1 || inbound.seen[0].Body != "How much is the camp?" {
		t.Errorf("expected inbound text forwarded to the pipeline, got %+v", inbound.seen)
	}
}

func TestSMS_PipelineFailureReturns500(t *testing.T) {
	inbound := &fakeInbound{err: errors.New("llm unavailable")}
	h := newTestHandler(&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, inbound, nil)

	form := url.Values{}
	form.Set("MessageSid", "SM401")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("Body", "Hello?")

	w := httptest.NewRecorder()
	h.SMS(w, postForm("/webhooks/twilio/sms", form))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestSMS_MissingBodyRejected(t *testing.T) {
	h := newTestHandler(&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, &fakeInbound{}, nil)

	form := url.Values{}
	form.Set("MessageSid", "SM402")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")

	w := httptest.NewRecorder()
	h.SMS(w, postForm("/webhooks/twilio/sms", form))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestWebhooks_RejectInvalidSignature(t *testing.T) {
	h := NewTwilioWebhookHandler(
		"auth-token", "https://api.pgucamps.com",
		&fakeDirectory{}, &fakeCallRecorder{}, newFakeTrigger(), nil, nil, &fakeInbound{},
		nil, logging.Default(),
	)

	form := url.Values{}
	form.Set("CallSid", "CA500")
	form.Set("From", "+15551230001")
	form.Set("To", "+15559990001")
	form.Set("CallStatus", "no-answer")

	req := postForm("https://api.pgucamps.com/webhooks/twilio/status", form)
	req.Header.Set("X-Twilio-Signature", "bogus")

	w := httptest.NewRecorder()
	h.StatusCallback(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}
