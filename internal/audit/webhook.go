package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

// WebhookSink mirrors finalized session records to an HTTP endpoint.
type WebhookSink struct {
	url     string
	headers map[string]string
	retries int
	timeout time.Duration
	client  *http.Client
}

// NewWebhookSink returns a nil Sink when the webhook is disabled, so callers
// can pass the result straight to NewTrail. The interface return matters: a
// typed-nil *WebhookSink would defeat the trail's nil check.
func NewWebhookSink(cfg config.AuditWebhookConfig) Sink {
	if !cfg.Enabled || cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:     cfg.URL,
		headers: cfg.Headers,
		retries: cfg.Retries,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Deliver POSTs the record as JSON. A non-2xx status or network failure is
// returned for logging; the caller treats it as non-fatal.
func (s *WebhookSink) Deliver(ctx context.Context, record types.AuditSession) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			cancel()
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("deliver to %s: %w", s.url, lastErr)
}
