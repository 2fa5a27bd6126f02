// Package monitoring evaluates the health of a finished run and sends
// webhook alerts when thresholds are breached.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAdapterFailureRate AlertType = "adapter_failure_rate"
	AlertRejectionRate      AlertType = "rejection_rate"
	AlertRetryableRows      AlertType = "retryable_rows"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunHealth is the summary of one run the alerter evaluates.
type RunHealth struct {
	RunID           string `json:"run_id"`
	Rows            int    `json:"rows"`
	ConnectorCalls  int64  `json:"connector_calls"`
	AdapterFailures int64  `json:"adapter_failures"`
	Decisions       int64  `json:"decisions"`
	Rejections      int64  `json:"rejections"`
	RetryableRows   int    `json:"retryable_rows"`
}

// minSample is the smallest denominator a rate alert is raised on.
const minSample = 5

// Alerter evaluates RunHealth against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the run against thresholds and returns any alerts.
func (a *Alerter) Evaluate(h RunHealth) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if h.ConnectorCalls >= minSample && a.cfg.AdapterFailureRateThreshold > 0 {
		rate := float64(h.AdapterFailures) / float64(h.ConnectorCalls)
		if rate > a.cfg.AdapterFailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertAdapterFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Connector failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d calls) in run %s",
					rate*100, a.cfg.AdapterFailureRateThreshold*100, h.AdapterFailures, h.ConnectorCalls, h.RunID,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.AdapterFailureRateThreshold,
					"failed":       h.AdapterFailures,
					"calls":        h.ConnectorCalls,
				},
				Timestamp: now,
			})
		}
	}

	if h.Decisions >= minSample && a.cfg.RejectionRateThreshold > 0 {
		rate := float64(h.Rejections) / float64(h.Decisions)
		if rate > a.cfg.RejectionRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRejectionRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Rejection rate %.1f%% exceeds threshold %.1f%% (%d of %d decisions) in run %s",
					rate*100, a.cfg.RejectionRateThreshold*100, h.Rejections, h.Decisions, h.RunID,
				),
				Details: map[string]any{
					"rejection_rate": rate,
					"threshold":      a.cfg.RejectionRateThreshold,
					"rejections":     h.Rejections,
					"decisions":      h.Decisions,
				},
				Timestamp: now,
			})
		}
	}

	if h.RetryableRows > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRetryableRows,
			Severity: "high",
			Message:  fmt.Sprintf("%d row(s) could not be published to the evidence sink in run %s", h.RetryableRows, h.RunID),
			Details: map[string]any{
				"retryable_rows": h.RetryableRows,
				"rows":           h.Rows,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notify evaluates h and sends the resulting alerts. It returns the alerts
// raised and how many were delivered.
func (a *Alerter) Notify(ctx context.Context, h RunHealth) ([]Alert, int) {
	alerts := a.Evaluate(h)
	return alerts, a.SendAlerts(ctx, alerts)
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
