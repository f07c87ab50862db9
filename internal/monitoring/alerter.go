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

	"github.com/sells-group/attribution-cli/internal/config"
	"github.com/sells-group/attribution-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunErrors     AlertType = "batch_run_errors"
	AlertErrorRate     AlertType = "batch_error_rate"
	AlertDLQDepth      AlertType = "dlq_depth"
	AlertRunValidation AlertType = "run_validation"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates runs and snapshots against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyRun evaluates one finished batch run and delivers any resulting
// alerts. It satisfies the batch runner's notifier interface.
func (a *Alerter) NotifyRun(ctx context.Context, run model.BatchRun) {
	a.SendAlerts(ctx, a.EvaluateRun(run))
}

// EvaluateRun checks a finished run for errors worth alerting on.
func (a *Alerter) EvaluateRun(run model.BatchRun) []Alert {
	if run.TotalErrors == 0 {
		return nil
	}

	severity := "medium"
	if run.ErrorRate() > a.cfg.ErrorRateThreshold {
		severity = "high"
	}

	return []Alert{{
		Type:     AlertRunErrors,
		Severity: severity,
		Message: fmt.Sprintf(
			"Batch run %s (%s) finished with %d errors out of %d journeys (%.1f%%)",
			run.ID, run.Model, run.TotalErrors, run.TotalProcessed, run.ErrorRate()*100,
		),
		Details: map[string]any{
			"run_id":          run.ID,
			"model":           string(run.Model),
			"total_processed": run.TotalProcessed,
			"total_errors":    run.TotalErrors,
			"error_rate":      run.ErrorRate(),
			"error_messages":  run.ErrorMessages,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.JourneysProcessed >= 100 && snap.ErrorRate > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Attribution error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d journeys in last %dh)",
				snap.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
				snap.JourneyErrors, snap.JourneysProcessed, snap.LookbackHours,
			),
			Details: map[string]any{
				"error_rate": snap.ErrorRate,
				"threshold":  a.cfg.ErrorRateThreshold,
				"errors":     snap.JourneyErrors,
				"processed":  snap.JourneysProcessed,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DLQDepthThreshold > 0 && snap.DLQDepth >= a.cfg.DLQDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDLQDepth,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d dead-lettered chunk(s) awaiting replay (threshold %d)",
				snap.DLQDepth, a.cfg.DLQDepthThreshold,
			),
			Details: map[string]any{
				"dlq_depth": snap.DLQDepth,
				"threshold": a.cfg.DLQDepthThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
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

// sendWebhook posts a single alert to the webhook URL.
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
