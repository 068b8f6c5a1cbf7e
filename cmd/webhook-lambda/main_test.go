package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

func proxyEvent(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method,
				Path:   path,
			},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	resp, err := handle(context.Background(), cfg, client, proxyEvent(http.MethodGet, "/health", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	resp, err := handle(context.Background(), cfg, client, proxyEvent(http.MethodGet, "/webhooks/twilio/status", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestHandleRejectsUnknownPath(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	resp, err := handle(context.Background(), cfg, client, proxyEvent(http.MethodPost, "/webhooks/unknown", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHandleInvalidBase64Body(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	evt := proxyEvent(http.MethodPost, "/webhooks/twilio/voice", "not-base64")
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), cfg, client, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleForwardsToUpstream(t *testing.T) {
	var gotPath, gotSignature, gotHost, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSignature = r.Header.Get("X-Twilio-Signature")
		gotHost = r.Header.Get("X-Forwarded-Host")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<Response></Response>"))
	}))
	defer srv.Close()

	cfg := config{upstreamBaseURL: srv.URL, upstreamTimeout: time.Second}
	client := srv.Client()

	form := "CallSid=CA1&CallStatus=no-answer"
	evt := proxyEvent(http.MethodPost, "/webhooks/twilio/status", base64.StdEncoding.EncodeToString([]byte(form)))
	evt.IsBase64Encoded = true
	evt.Headers = map[string]string{
		"content-type":       "application/x-www-form-urlencoded",
		"x-twilio-signature": "sig123",
	}
	evt.RequestContext.DomainName = "hooks.pgucamps.com"

	resp, err := handle(context.Background(), cfg, client, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if gotPath != "/webhooks/twilio/status" {
		t.Errorf("expected path forwarded, got %q", gotPath)
	}
	if gotSignature != "sig123" {
		t.Errorf("expected signature forwarded, got %q", gotSignature)
	}
	if gotHost != "hooks.pgucamps.com" {
		t.Errorf("expected original host forwarded, got %q", gotHost)
	}
	if gotBody != form {
		t.Errorf("expected decoded form body forwarded, got %q", gotBody)
	}
	if ct := resp.Headers["content-type"]; ct != "text/xml" {
		t.Errorf("expected upstream content type preserved, got %q", ct)
	}
}
