package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triangulate/internal/config"
)

func newTestAlerter(cfg config.MonitoringConfig) *Alerter {
	a := NewAlerter(cfg)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

var thresholds = config.MonitoringConfig{AdapterFailureRateThreshold: 0.5, RejectionRateThreshold: 0.8}

func TestAlerter_Evaluate_Healthy(t *testing.T) {
	a := newTestAlerter(thresholds)

	alerts := a.Evaluate(RunHealth{RunID: "r", Rows: 10, ConnectorCalls: 30, AdapterFailures: 3, Decisions: 20, Rejections: 10})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_AdapterFailureRate(t *testing.T) {
	a := newTestAlerter(thresholds)

	alerts := a.Evaluate(RunHealth{RunID: "r", ConnectorCalls: 10, AdapterFailures: 8})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertAdapterFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "80.0%")
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), alerts[0].Timestamp)
}

func TestAlerter_Evaluate_SmallSamplesIgnored(t *testing.T) {
	a := newTestAlerter(thresholds)

	alerts := a.Evaluate(RunHealth{ConnectorCalls: 4, AdapterFailures: 4, Decisions: 4, Rejections: 4})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RejectionRateAndRetryable(t *testing.T) {
	a := newTestAlerter(thresholds)

	alerts := a.Evaluate(RunHealth{RunID: "r", Rows: 3, Decisions: 10, Rejections: 9, RetryableRows: 2})
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertRejectionRate, alerts[0].Type)
	assert.Equal(t, AlertRetryableRows, alerts[1].Type)
	assert.Equal(t, 2, alerts[1].Details["retryable_rows"])
}

func TestAlerter_Evaluate_ZeroThresholdDisables(t *testing.T) {
	a := newTestAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(RunHealth{ConnectorCalls: 10, AdapterFailures: 10, Decisions: 10, Rejections: 10})
	assert.Empty(t, alerts)
}

func TestAlerter_Notify_PostsWebhook(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertRetryableRows, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := thresholds
	cfg.WebhookURL = srv.URL
	a := newTestAlerter(cfg)

	alerts, sent := a.Notify(context.Background(), RunHealth{RunID: "r", RetryableRows: 1})
	assert.Len(t, alerts, 1)
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRetryableRows}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := newTestAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRetryableRows}}))
}
