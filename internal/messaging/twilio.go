package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Payload: URL + params concatenated in key order.
	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VoiceCallEvent represents a Twilio voice webhook or status callback.
type VoiceCallEvent struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	CallStatus   string
	CallDuration int
}

// ParseVoiceCallEvent parses a voice webhook or status-callback form post.
func ParseVoiceCallEvent(r *http.Request) (*VoiceCallEvent, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	ev := &VoiceCallEvent{
		CallSid:    r.FormValue("CallSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		CallStatus: strings.ToLower(r.FormValue("CallStatus")),
	}
	if raw := r.FormValue("CallDuration"); raw != "" {
		dur, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("bad CallDuration %q: %w", raw, err)
		}
		ev.CallDuration = dur
	}
	return ev, nil
}

// RecordingEvent represents a Twilio recording callback.
type RecordingEvent struct {
	CallSid      string
	From         string
	To           string
	RecordingURL string
	RecordingSid string
	Duration     int
}

// ParseRecordingEvent parses a recording callback form post.
func ParseRecordingEvent(r *http.Request) (*RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	ev := &RecordingEvent{
		CallSid:      r.FormValue("CallSid"),
		From:         r.FormValue("From"),
		To:           r.FormValue("To"),
		RecordingURL: r.FormValue("RecordingUrl"),
		RecordingSid: r.FormValue("RecordingSid"),
	}
	if raw := r.FormValue("RecordingDuration"); raw != "" {
		dur, err := strconv.Atoi(raw)
		if err == nil {
			ev.Duration = dur
		}
	}
	return ev, nil
}

// InboundSMS represents an incoming Twilio SMS webhook.
type InboundSMS struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
}

// ParseInboundSMS parses an SMS webhook form post.
func ParseInboundSMS(r *http.Request) (*InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	return &InboundSMS{
		MessageSid: r.FormValue("MessageSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}, nil
}
