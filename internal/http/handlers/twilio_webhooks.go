// Package handlers contains the HTTP handlers for webhooks and the
// dashboard API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/internal/followup"
	"github.com/pointguardu/pgu-ai/internal/messaging"
	"github.com/pointguardu/pgu-ai/internal/notify"
	"github.com/pointguardu/pgu-ai/internal/observability/metrics"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

var twilioTracer = otel.Tracer("pguai.internal.http.handlers.twilio")

type callRecorder interface {
	RecordMissedCall(ctx context.Context, rec *calls.MissedCallRecord) error
	FindByCallSid(ctx context.Context, callSid string) (*calls.MissedCallRecord, error)
	SetVoicemailURL(ctx context.Context, callSid, url string) error
}

type voicemailStore interface {
	Enabled() bool
	SaveFromTwilio(ctx context.Context, callSid, recordingURL string) (string, error)
}

type inboundTextHandler interface {
	HandleInboundText(ctx context.Context, sms *messaging.InboundSMS) (string, error)
}

// TwilioWebhookHandler handles the four Twilio webhooks: the answered
// voice call, the call status callback, the voicemail recording callback,
// and inbound SMS.
type TwilioWebhookHandler struct {
	webhookSecret string
	publicBaseURL string
	directory     directory.Directory
	callStore     callRecorder
	trigger       followup.Trigger
	recordings    voicemailStore
	notifier      *notify.VoicemailNotifier
	inbound       inboundTextHandler
	metrics       *metrics.PipelineMetrics
	logger        *logging.Logger
}

// NewTwilioWebhookHandler creates the webhook handler. The webhook secret
// is the Twilio auth token; when empty, signature validation is skipped.
func NewTwilioWebhookHandler(
	webhookSecret, publicBaseURL string,
	dir directory.Directory,
	callStore callRecorder,
	trigger followup.Trigger,
	recordingsStore voicemailStore,
	notifier *notify.VoicemailNotifier,
	inbound inboundTextHandler,
	m *metrics.PipelineMetrics,
	logger *logging.Logger,
) *TwilioWebhookHandler {
	if dir == nil {
		panic("handlers: directory cannot be nil")
	}
	if callStore == nil {
		panic("handlers: call store cannot be nil")
	}
	if trigger == nil {
		panic("handlers: follow-up trigger cannot be nil")
	}
	if inbound == nil {
		panic("handlers: inbound text handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWebhookHandler{
		webhookSecret: webhookSecret,
		publicBaseURL: publicBaseURL,
		directory:     dir,
		callStore:     callStore,
		trigger:       trigger,
		recordings:    recordingsStore,
		notifier:      notifier,
		inbound:       inbound,
		metrics:       m,
		logger:        logger,
	}
}

// Voice handles POST /webhooks/twilio/voice. Twilio hits this when a call
// comes in; the TwiML lets it ring, plays the greeting, and records a
// voicemail.
func (h *TwilioWebhookHandler) Voice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_, span := twilioTracer.Start(r.Context(), "webhooks.twilio.voice")
	defer span.End()
	defer h.observeLatency("voice", start)

	if !h.verifySignature(w, r) {
		return
	}

	ev, err := messaging.ParseVoiceCallEvent(r)
	if err != nil {
		h.logger.Error("failed to parse voice webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("pguai.call_sid", ev.CallSid),
		attribute.String("pguai.to", ev.To),
	)

	twiml, err := messaging.MissedCallTwiML(h.baseURL(r))
	if err != nil {
		h.logger.Error("failed to render voice twiml", "error", err, "call_sid", ev.CallSid)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	h.logger.Info("voice webhook answered", "call_sid", ev.CallSid, "from", ev.From, "to", ev.To)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twiml))
}

// StatusCallback handles POST /webhooks/twilio/status. When the final call
// status classifies as missed, it records the call and fires the follow-up
// trigger without holding the webhook open.
func (h *TwilioWebhookHandler) StatusCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := twilioTracer.Start(r.Context(), "webhooks.twilio.status")
	defer span.End()
	defer h.observeLatency("status", start)

	if !h.verifySignature(w, r) {
		return
	}

	ev, err := messaging.ParseVoiceCallEvent(r)
	if err != nil {
		h.logger.Error("failed to parse status callback", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if ev.CallSid == "" || ev.From == "" || ev.To == "" {
		err := errors.New("missing required status callback fields")
		h.logger.Error("invalid status callback payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("pguai.call_sid", ev.CallSid),
		attribute.String("pguai.call_status", ev.CallStatus),
	)

	if !calls.IsMissed(ev.CallStatus, ev.CallDuration) {
		h.logger.Info("call not missed, nothing to do",
			"call_sid", ev.CallSid, "call_status", ev.CallStatus, "duration", ev.CallDuration)
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "missed": false})
		return
	}
	h.metrics.ObserveMissedCall(ev.CallStatus)

	client, err := h.directory.GetByLine(ctx, ev.To)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		h.logger.Error("failed to resolve client for line", "error", err, "to", ev.To)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	rec := &calls.MissedCallRecord{
		CallSid:      ev.CallSid,
		CallerNumber: ev.From,
		BusinessLine: ev.To,
		CallStatus:   ev.CallStatus,
		Duration:     ev.CallDuration,
	}
	// The trigger payload requires a clinic name; an unregistered line
	// still gets its follow-up under the placeholder.
	clinicName := "Unknown Clinic"
	if client != nil {
		rec.ClientID = client.ClientID
		rec.ClinicName = client.Name
		clinicName = client.Name
	}
	if err := h.callStore.RecordMissedCall(ctx, rec); err != nil {
		h.logger.Error("failed to record missed call", "error", err, "call_sid", ev.CallSid)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	// The trigger runs detached: the composed text and the configured
	// send delay must never hold Twilio's callback open.
	go h.fireTrigger(followup.TriggerRequest{
		PatientNumber:     ev.From,
		TwilioPhoneNumber: ev.To,
		CallSid:           ev.CallSid,
		ClinicName:        clinicName,
	})

	h.logger.Info("missed call recorded",
		"call_sid", ev.CallSid, "call_status", ev.CallStatus, "from", ev.From, "to", ev.To)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "missed": true})
}

// Recording handles POST /webhooks/twilio/recording. The voicemail audio
// is copied to S3 and the client gets an email with the playback link.
func (h *TwilioWebhookHandler) Recording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := twilioTracer.Start(r.Context(), "webhooks.twilio.recording")
	defer span.End()
	defer h.observeLatency("recording", start)

	if !h.verifySignature(w, r) {
		return
	}

	ev, err := messaging.ParseRecordingEvent(r)
	if err != nil {
		h.logger.Error("failed to parse recording callback", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if ev.CallSid == "" || ev.RecordingURL == "" {
		err := errors.New("missing required recording fields")
		h.logger.Error("invalid recording payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("pguai.call_sid", ev.CallSid))

	playbackURL := ev.RecordingURL
	if h.recordings != nil && h.recordings.Enabled() {
		stored, err := h.recordings.SaveFromTwilio(ctx, ev.CallSid, ev.RecordingURL)
		if err != nil {
			h.logger.Error("failed to archive voicemail", "error", err, "call_sid", ev.CallSid)
			h.metrics.ObserveVoicemail("store_failed")
		} else {
			playbackURL = stored
			h.metrics.ObserveVoicemail("stored")
		}
	}

	if err := h.callStore.SetVoicemailURL(ctx, ev.CallSid, playbackURL); err != nil {
		// The record may not exist yet if the status callback lost the
		// race; the email still goes out.
		h.logger.Warn("failed to attach voicemail url", "error", err, "call_sid", ev.CallSid)
	}

	h.notifyVoicemail(ctx, ev, playbackURL)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}

// SMS handles POST /webhooks/twilio/sms. The reply goes out through the
// Twilio REST API rather than TwiML so the exchange is logged with the
// rest of the conversation.
func (h *TwilioWebhookHandler) SMS(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := twilioTracer.Start(r.Context(), "webhooks.twilio.sms")
	defer span.End()
	defer h.observeLatency("sms", start)

	if !h.verifySignature(w, r) {
		return
	}

	sms, err := messaging.ParseInboundSMS(r)
	if err != nil {
		h.logger.Error("failed to parse inbound sms", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if sms.From == "" || sms.To == "" || strings.TrimSpace(sms.Body) == "" {
		err := errors.New("missing required sms fields")
		h.logger.Error("invalid inbound sms payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("pguai.message_sid", sms.MessageSid),
		attribute.String("pguai.from", sms.From),
	)

	reply, err := h.inbound.HandleInboundText(ctx, sms)
	if err != nil {
		h.logger.Error("failed to handle inbound sms", "error", err, "message_sid", sms.MessageSid)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	h.logger.Info("inbound sms answered", "message_sid", sms.MessageSid, "reply_length", len(reply))
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *TwilioWebhookHandler) fireTrigger(req followup.TriggerRequest) {
	// Detached from the webhook request. Each trigger bounds its own
	// run; the pipeline may legitimately wait out a long send delay.
	if err := h.trigger.TriggerFollowUp(context.Background(), req); err != nil {
		h.logger.Error("follow-up trigger failed", "error", err, "call_sid", req.CallSid)
	}
}

func (h *TwilioWebhookHandler) notifyVoicemail(ctx context.Context, ev *messaging.RecordingEvent, playbackURL string) {
	if h.notifier == nil {
		return
	}
	client, err := h.directory.GetByLine(ctx, ev.To)
	if err != nil {
		h.logger.Warn("no client for voicemail notification", "error", err, "to", ev.To)
		h.metrics.ObserveVoicemail("notify_skipped")
		return
	}
	vm := notify.Voicemail{
		CallSid:      ev.CallSid,
		CallerNumber: ev.From,
		BusinessLine: ev.To,
		RecordingURL: playbackURL,
	}
	if err := h.notifier.Notify(ctx, client, vm); err != nil {
		h.logger.Error("failed to send voicemail email", "error", err, "call_sid", ev.CallSid)
		h.metrics.ObserveVoicemail("notify_failed")
		return
	}
	h.metrics.ObserveVoicemail("notified")
}

// verifySignature checks X-Twilio-Signature when a secret is configured.
// It writes the 401 itself and returns false when validation fails.
func (h *TwilioWebhookHandler) verifySignature(w http.ResponseWriter, r *http.Request) bool {
	if h.webhookSecret == "" {
		return true
	}
	if !messaging.ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
		h.logger.Warn("invalid twilio signature", "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *TwilioWebhookHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return strings.TrimSuffix(h.publicBaseURL, "/")
	}
	abs := buildAbsoluteURL(r)
	if idx := strings.Index(abs, r.URL.RequestURI()); idx > 0 {
		return abs[:idx]
	}
	return abs
}

func (h *TwilioWebhookHandler) observeLatency(webhook string, start time.Time) {
	h.metrics.ObserveWebhookLatency(webhook, time.Since(start).Seconds())
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
