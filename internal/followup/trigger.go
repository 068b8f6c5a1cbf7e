package followup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pointguardu/pgu-ai/pkg/logging"
)

// TriggerRequest is the wire payload that kicks off a follow-up text for a
// missed call. Field names are fixed; external schedulers post the same
// shape to /followups/send.
type TriggerRequest struct {
	PatientNumber     string `json:"patient_number"`
	TwilioPhoneNumber string `json:"twilio_phone_number"`
	CallSid           string `json:"call_sid"`
	ClinicName        string `json:"clinic_name"`
}

// Trigger starts the follow-up pipeline for a missed call.
type Trigger interface {
	TriggerFollowUp(ctx context.Context, req TriggerRequest) error
}

// LocalTrigger runs the orchestrator in-process. Used when no separate
// follow-up endpoint is deployed.
type LocalTrigger struct {
	orchestrator *Orchestrator
}

// NewLocalTrigger wraps an orchestrator as a trigger.
func NewLocalTrigger(o *Orchestrator) *LocalTrigger {
	if o == nil {
		panic("followup: orchestrator cannot be nil")
	}
	return &LocalTrigger{orchestrator: o}
}

var _ Trigger = (*LocalTrigger)(nil)

// TriggerFollowUp runs the follow-up pipeline synchronously, bounded
// by the orchestrator's trigger budget so the run covers the full
// configured send delay without leaking forever on a bad config.
func (t *LocalTrigger) TriggerFollowUp(ctx context.Context, req TriggerRequest) error {
	if budget := t.orchestrator.TriggerBudget(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	return t.orchestrator.SendFollowUp(ctx, FollowUpRequest{
		CallSid:      req.CallSid,
		CallerNumber: req.PatientNumber,
		BusinessLine: req.TwilioPhoneNumber,
	})
}

// HTTPTrigger posts the trigger payload to a remote follow-up endpoint.
// The status callback uses this so the webhook response never waits on
// the composed text or the configured send delay.
type HTTPTrigger struct {
	endpoint string
	client   *http.Client
	logger   *logging.Logger
}

// NewHTTPTrigger builds a trigger that posts to the given endpoint.
// The follow-up endpoint holds the connection through the configured
// send delay, so the timeout must cover the delay cap, not just a
// request round trip.
func NewHTTPTrigger(endpoint string, timeout time.Duration, logger *logging.Logger) *HTTPTrigger {
	if endpoint == "" {
		panic("followup: trigger endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPTrigger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

var _ Trigger = (*HTTPTrigger)(nil)

// TriggerFollowUp posts the request as JSON and checks for a 2xx response.
func (t *HTTPTrigger) TriggerFollowUp(ctx context.Context, req TriggerRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("followup: failed to marshal trigger payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("followup: failed to build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("followup: trigger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("followup: trigger endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	t.logger.Info("follow-up trigger accepted", "call_sid", req.CallSid, "endpoint", t.endpoint)
	return nil
}
