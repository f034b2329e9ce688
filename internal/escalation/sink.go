// Package escalation implements the critical-path hand-off sinks.
//
// The monitor does not know or care what the receiving system does with
// a critical echo report; delivery is fire-and-forget and failures are
// the caller's to count.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
)

// deliverTimeout bounds one webhook delivery attempt.
const deliverTimeout = 10 * time.Second

// For testing: allow overriding the HTTP client.
var httpClient = &http.Client{Timeout: deliverTimeout}

// LogSink writes critical reports to the process log. It is the default
// sink when no escalation URL is configured for forwarding.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// ForwardCritical logs the report's findings.
func (s *LogSink) ForwardCritical(ctx context.Context, r echo.Report) error {
	for _, f := range r.Findings {
		log.Printf("CRITICAL ECHO: depth=%d kind=%s %s", f.Depth, f.Kind, f.Summary)
	}
	return nil
}

// WebhookSink POSTs critical reports as JSON to an external endpoint.
type WebhookSink struct {
	url string
}

// NewWebhookSink creates a WebhookSink for the given URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url}
}

// ForwardCritical delivers the report once. Non-2xx responses are
// errors; the caller logs and counts them without retrying.
func (s *WebhookSink) ForwardCritical(ctx context.Context, r echo.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("escalation: marshal report: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("escalation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("escalation: deliver: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("escalation: endpoint returned %s", resp.Status)
	}
	return nil
}
