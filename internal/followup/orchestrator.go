// Package followup runs the missed-call pipeline: compose a text,
// send it, and track the call record through its lifecycle.
package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/internal/messaging"
	"github.com/pointguardu/pgu-ai/internal/observability/metrics"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

var followupTracer = otel.Tracer("pguai.internal.followup")

// CallStore is the subset of the calls store the orchestrator needs.
type CallStore interface {
	FindByCallSidWithRetry(ctx context.Context, callSid, caller, line string, attempts int, delay time.Duration) (*calls.MissedCallRecord, error)
	FindLatestByCallerAndLine(ctx context.Context, caller, line string) (*calls.MissedCallRecord, error)
	MarkCompleted(ctx context.Context, callSid, followUpText, messageSid string) error
	MarkFailed(ctx context.Context, callSid, errMsg string) error
	AppendConversationTurn(ctx context.Context, turn *calls.ConversationTurn) error
	LastConversationTurn(ctx context.Context, callSid string) (*calls.ConversationTurn, error)
	ListConversation(ctx context.Context, callSid string) ([]calls.ConversationTurn, error)
}

// Composer generates outbound text bodies.
type Composer interface {
	ComposeFollowUp(ctx context.Context, client *directory.ClientRecord) (string, error)
	ComposeReply(ctx context.Context, client *directory.ClientRecord, history []calls.ConversationTurn, inbound string) (string, error)
}

// Config tunes the pipeline's lookup and delay behavior.
type Config struct {
	LookupRetryAttempts int
	LookupRetryDelay    time.Duration
	LookupSettleDelay   time.Duration
	MaxFollowUpDelay    time.Duration
}

// Orchestrator drives follow-up texts and inbound reply handling.
type Orchestrator struct {
	dir      directory.Directory
	store    CallStore
	composer Composer
	sender   messaging.TextSender
	metrics  *metrics.PipelineMetrics
	cfg      Config
	logger   *logging.Logger
}

func NewOrchestrator(dir directory.Directory, store CallStore, composer Composer, sender messaging.TextSender, m *metrics.PipelineMetrics, cfg Config, logger *logging.Logger) *Orchestrator {
	switch {
	case dir == nil:
		panic("followup: directory cannot be nil")
	case store == nil:
		panic("followup: call store cannot be nil")
	case composer == nil:
		panic("followup: composer cannot be nil")
	case sender == nil:
		panic("followup: text sender cannot be nil")
	}
	if cfg.LookupRetryAttempts < 1 {
		cfg.LookupRetryAttempts = 3
	}
	if cfg.LookupRetryDelay <= 0 {
		cfg.LookupRetryDelay = time.Second
	}
	if cfg.LookupSettleDelay < 0 {
		cfg.LookupSettleDelay = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		dir:      dir,
		store:    store,
		composer: composer,
		sender:   sender,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// TriggerBudget is how long one trigger run may take end to end: the
// capped send delay plus a minute for compose, send, and bookkeeping.
// Zero when no delay cap is configured.
func (o *Orchestrator) TriggerBudget() time.Duration {
	if o.cfg.MaxFollowUpDelay > 0 {
		return o.cfg.MaxFollowUpDelay + time.Minute
	}
	return 0
}

// FollowUpRequest identifies the missed call to follow up on.
type FollowUpRequest struct {
	CallSid      string
	CallerNumber string
	BusinessLine string
}

// SendFollowUp composes and sends the first text after a missed call,
// then marks the call record completed. Generation or send failures
// mark the record failed and propagate.
func (o *Orchestrator) SendFollowUp(ctx context.Context, req FollowUpRequest) error {
	if req.CallSid == "" || req.CallerNumber == "" || req.BusinessLine == "" {
		return errors.New("followup: callSid, callerNumber and businessLine are required")
	}

	ctx, span := followupTracer.Start(ctx, "followup.send")
	defer span.End()
	span.SetAttributes(attribute.String("pguai.call_sid", req.CallSid))

	client, err := o.dir.GetByLine(ctx, req.BusinessLine)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("followup: directory lookup failed: %w", err)
	}
	if client == nil {
		o.logger.Warn("no client registered for line, sending generic follow-up",
			"line", req.BusinessLine)
	}

	text, err := o.composer.ComposeFollowUp(ctx, client)
	if err != nil {
		o.failCall(ctx, req, err)
		o.metrics.ObserveFollowUp("compose_failed")
		return err
	}

	if err := o.waitFollowUpDelay(ctx, client); err != nil {
		o.failCall(ctx, req, err)
		o.metrics.ObserveFollowUp("wait_canceled")
		return fmt.Errorf("followup: delay wait canceled: %w", err)
	}

	messageSid, err := o.sender.SendText(ctx, messaging.OutboundText{
		To:   req.CallerNumber,
		From: req.BusinessLine,
		Body: text,
	})
	if err != nil {
		o.failCall(ctx, req, err)
		o.metrics.ObserveFollowUp("send_failed")
		return fmt.Errorf("followup: send failed: %w", err)
	}

	// The text is out; status bookkeeping must survive cancellation of
	// the triggering request.
	ctx = context.WithoutCancel(ctx)

	// The status callback that created the record may still be in
	// flight; the retry window absorbs that.
	if o.cfg.LookupSettleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.LookupSettleDelay):
		}
	}

	rec, err := o.store.FindByCallSidWithRetry(ctx, req.CallSid, req.CallerNumber, req.BusinessLine,
		o.cfg.LookupRetryAttempts, o.cfg.LookupRetryDelay)
	if errors.Is(err, calls.ErrCallNotFound) {
		// The text already went out. A missing record only loses the
		// status update, not the follow-up.
		o.metrics.ObserveFollowUp("record_missing")
		o.logger.Warn("no missed call record found after send, skipping status update",
			"call_sid", req.CallSid, "to", req.CallerNumber)
		return nil
	}
	if err != nil {
		o.metrics.ObserveFollowUp("record_missing")
		return fmt.Errorf("followup: call lookup failed after send: %w", err)
	}

	if err := o.store.MarkCompleted(ctx, rec.CallSid, text, messageSid); err != nil {
		o.metrics.ObserveFollowUp("update_failed")
		return fmt.Errorf("followup: failed to mark call completed: %w", err)
	}

	// The follow-up opens the text thread.
	if err := o.store.AppendConversationTurn(ctx, &calls.ConversationTurn{
		CallSid:  rec.CallSid,
		Role:     calls.RoleAI,
		Body:     text,
		Sequence: 1,
	}); err != nil {
		o.logger.Error("failed to log follow-up turn", "error", err, "call_sid", rec.CallSid)
	}

	o.metrics.ObserveFollowUp("sent")
	o.logger.Info("follow-up sent",
		"call_sid", rec.CallSid, "to", req.CallerNumber, "message_sid", messageSid)
	return nil
}

// HandleInboundText answers a caller's reply, logs both turns of the
// exchange against the most recent missed call, and returns the reply
// body.
func (o *Orchestrator) HandleInboundText(ctx context.Context, sms *messaging.InboundSMS) (string, error) {
	if sms == nil || sms.From == "" || sms.To == "" {
		return "", errors.New("followup: inbound sms requires from and to")
	}

	ctx, span := followupTracer.Start(ctx, "followup.reply")
	defer span.End()
	span.SetAttributes(attribute.String("pguai.line", sms.To))

	client, err := o.dir.GetByLine(ctx, sms.To)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return "", fmt.Errorf("followup: directory lookup failed: %w", err)
	}

	rec, err := o.store.FindLatestByCallerAndLine(ctx, sms.From, sms.To)
	if err != nil && !errors.Is(err, calls.ErrCallNotFound) {
		return "", fmt.Errorf("followup: call lookup failed: %w", err)
	}

	var history []calls.ConversationTurn
	if rec != nil {
		history, err = o.store.ListConversation(ctx, rec.CallSid)
		if err != nil {
			return "", fmt.Errorf("followup: conversation lookup failed: %w", err)
		}
	}

	reply, err := o.composer.ComposeReply(ctx, client, history, sms.Body)
	if err != nil {
		o.metrics.ObserveReply("compose_failed")
		return "", err
	}

	if _, err := o.sender.SendText(ctx, messaging.OutboundText{
		To:   sms.From,
		From: sms.To,
		Body: reply,
	}); err != nil {
		o.metrics.ObserveReply("send_failed")
		return "", fmt.Errorf("followup: reply send failed: %w", err)
	}

	if rec == nil {
		o.logger.Warn("no missed call found for inbound text, conversation not logged",
			"from", sms.From, "line", sms.To)
	} else if err := o.logExchange(ctx, rec.CallSid, sms.Body, reply); err != nil {
		// The reply already went out; a logging failure should not
		// surface as a webhook error.
		o.logger.Error("failed to log conversation exchange",
			"error", err, "call_sid", rec.CallSid)
	}

	o.metrics.ObserveReply("sent")
	return reply, nil
}

// logExchange appends the user message and the reply as one ordered
// exchange, skipping duplicate webhook deliveries.
func (o *Orchestrator) logExchange(ctx context.Context, callSid, userBody, aiBody string) error {
	last, err := o.store.LastConversationTurn(ctx, callSid)
	if err != nil {
		return err
	}
	if last != nil && last.Body == userBody {
		o.logger.Info("duplicate inbound message, skipping conversation log",
			"call_sid", callSid)
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	userTurn := &calls.ConversationTurn{
		CallSid:   callSid,
		Role:      calls.RoleUser,
		Body:      userBody,
		Timestamp: now,
		Sequence:  1,
	}
	if err := o.store.AppendConversationTurn(ctx, userTurn); err != nil {
		return err
	}
	aiTurn := &calls.ConversationTurn{
		CallSid:   callSid,
		Role:      calls.RoleAI,
		Body:      aiBody,
		Timestamp: now,
		Sequence:  2,
	}
	return o.store.AppendConversationTurn(ctx, aiTurn)
}

// waitFollowUpDelay honors the client's configured follow-up delay,
// capped so a bad config can't park the request forever.
func (o *Orchestrator) waitFollowUpDelay(ctx context.Context, client *directory.ClientRecord) error {
	if client == nil || client.FollowUpDelayMinutes <= 0 {
		return nil
	}
	delay := time.Duration(client.FollowUpDelayMinutes) * time.Minute
	if o.cfg.MaxFollowUpDelay > 0 && delay > o.cfg.MaxFollowUpDelay {
		delay = o.cfg.MaxFollowUpDelay
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// failCall marks the record failed, best effort. It detaches from the
// caller's context so a canceled trigger can still leave the record in
// a terminal state instead of Pending.
func (o *Orchestrator) failCall(ctx context.Context, req FollowUpRequest, cause error) {
	ctx = context.WithoutCancel(ctx)
	rec, err := o.store.FindByCallSidWithRetry(ctx, req.CallSid, req.CallerNumber, req.BusinessLine,
		o.cfg.LookupRetryAttempts, o.cfg.LookupRetryDelay)
	if err != nil {
		o.logger.Warn("could not mark call failed, record missing",
			"call_sid", req.CallSid, "cause", cause)
		return
	}
	if err := o.store.MarkFailed(ctx, rec.CallSid, cause.Error()); err != nil {
		o.logger.Error("failed to mark call failed", "error", err, "call_sid", rec.CallSid)
	}
}
