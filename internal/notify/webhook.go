// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/hitl-gateway/internal/signing"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
)

// WebhookNotifier POSTs each change as JSON to a resume endpoint, signed with
// X-Signature when a secret is configured, retrying with exponential backoff.
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
	retryBase  time.Duration
}

func NewWebhookNotifier(url, secret string, httpClient *http.Client, logger *slog.Logger) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:        strings.TrimSpace(url),
		secret:     secret,
		httpClient: httpClient,
		logger:     logger,
		retryBase:  webhookRetryBase,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, change StatusChange) error {
	if w.url == "" {
		return nil
	}

	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	signature := signing.Sign(w.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(signing.Header, signature)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("resume webhook failure",
				"workflow_id", change.WorkflowID,
				"status", change.Status,
				"attempt", attempt,
				"error", err,
			)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				w.logger.Info("resume webhook success",
					"workflow_id", change.WorkflowID,
					"status", change.Status,
					"attempt", attempt,
					"response_status", resp.StatusCode,
				)
				return nil
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			w.logger.Warn("resume webhook failure",
				"workflow_id", change.WorkflowID,
				"status", change.Status,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
		}

		if attempt < webhookRetryAttempts {
			wait := w.retryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("resume webhook canceled after attempt %d: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}
	}

	w.logger.Error("resume webhook retries exhausted",
		"workflow_id", change.WorkflowID,
		"status", change.Status,
		"error", lastErr,
	)
	return fmt.Errorf("resume webhook retries exhausted: %w", lastErr)
}
