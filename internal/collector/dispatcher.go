package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Dispatcher delivers churn alerts out of band. Errors are returned for
// logging only; no implementation may block a scoring response on delivery,
// and failures are never surfaced to scoring callers.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert ChurnAlert) error
}

// LogDispatcher records alerts to the log. It is the fallback when neither
// a webhook nor a Temporal endpoint is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("component", "alerts.log")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, alert ChurnAlert) error {
	d.logger.Warn("churn alert", "account_id", alert.AccountID, "user_id", alert.UserID, "churn_score", alert.Score)
	return nil
}

// WebhookDispatcher POSTs alerts as JSON to a configured endpoint, the
// usual hook for mail/chat relays.
type WebhookDispatcher struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookDispatcher(url string, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "alerts.webhook"),
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, alert ChurnAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook responded with %s", resp.Status)
	}
	d.logger.Info("churn alert delivered", "account_id", alert.AccountID, "user_id", alert.UserID, "churn_score", alert.Score)
	return nil
}
