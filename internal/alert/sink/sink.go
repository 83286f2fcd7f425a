// Package sink delivers critical alert notifications. Delivery is best-effort:
// callers log failures and never retry inline with the triggering request.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// Sink sends one notification. Failure means logged-and-dropped for the caller.
type Sink interface {
	Send(ctx context.Context, subject, body string, metadata map[string]string) error
}

// WebhookSink posts notifications as JSON to a relay endpoint (email gateway,
// Slack bridge, PagerDuty proxy).
type WebhookSink struct {
	URL        string
	AuthToken  string
	HTTPClient *http.Client
}

// NewWebhookSink returns a sink posting to url with the given Authorization token.
func NewWebhookSink(url, authToken string) *WebhookSink {
	return &WebhookSink{
		URL:        url,
		AuthToken:  authToken,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts the notification. Returns an error on transport failure or non-2xx.
func (s *WebhookSink) Send(ctx context.Context, subject, body string, metadata map[string]string) error {
	if s.URL == "" {
		return fmt.Errorf("sink: webhook URL not configured")
	}
	payload, err := json.Marshal(map[string]any{
		"subject":  subject,
		"body":     body,
		"metadata": metadata,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.AuthToken != "" {
		req.Header.Set("Authorization", s.AuthToken)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sink: webhook returned %s: %s", resp.Status, string(b))
	}
	return nil
}

// Noop discards notifications; used when no webhook is configured.
type Noop struct{}

// Send does nothing.
func (Noop) Send(context.Context, string, string, map[string]string) error { return nil }
