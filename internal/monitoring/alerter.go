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

	"github.com/sells-group/pricetrack/internal/config"
	"github.com/sells-group/pricetrack/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSupplierFailure AlertType = "supplier_failure"
	AlertFailureRate     AlertType = "batch_failure_rate"
	AlertPriceDrop       AlertType = "price_drop"
	AlertHistoryAppend   AlertType = "history_append"
	AlertStalePrices     AlertType = "stale_prices"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates batch summaries and catalog snapshots against
// configured thresholds and sends alerts via webhook.
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
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks one batch run and returns any alerts.
func (a *Alerter) Evaluate(summary *model.BatchSummary) []Alert {
	if summary == nil || summary.Total == 0 {
		return nil
	}
	var alerts []Alert
	now := a.now()

	for _, o := range summary.Outcomes {
		if !o.Success {
			// Transient failures usually clear up on the next run.
			severity := "high"
			if o.Transient {
				severity = "low"
			}
			alerts = append(alerts, Alert{
				Type:     AlertSupplierFailure,
				Severity: severity,
				Message:  fmt.Sprintf("%s: %s", o.Supplier, o.Reason),
				Details: map[string]any{
					"supplier":     o.Supplier,
					"failure_kind": string(o.Kind),
					"transient":    o.Transient,
				},
				Timestamp: now,
			})
			continue
		}

		if o.HistoryError != "" {
			alerts = append(alerts, Alert{
				Type:     AlertHistoryAppend,
				Severity: "medium",
				Message:  fmt.Sprintf("%s: price updated but history append failed: %s", o.Supplier, o.HistoryError),
				Details: map[string]any{
					"supplier":   o.Supplier,
					"battery_id": o.EntityID,
				},
				Timestamp: now,
			})
		}

		if drop, ok := priceDrop(o); ok && a.cfg.PriceDropThreshold > 0 && drop >= a.cfg.PriceDropThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertPriceDrop,
				Severity: "info",
				Message: fmt.Sprintf("%s: price dropped %.1f%% ($%.2f -> $%.2f)",
					o.Supplier, drop*100, *o.OldPrice, o.NewPrice),
				Details: map[string]any{
					"supplier":   o.Supplier,
					"battery_id": o.EntityID,
					"old_price":  *o.OldPrice,
					"new_price":  o.NewPrice,
				},
				Timestamp: now,
			})
		}
	}

	rate := float64(summary.Failed) / float64(summary.Total)
	if summary.Failed > 0 && rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Batch failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d suppliers)",
				rate*100, a.cfg.FailureRateThreshold*100, summary.Failed, summary.Total,
			),
			Details: map[string]any{
				"failure_rate": rate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       summary.Failed,
				"total":        summary.Total,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// EvaluateSnapshot checks a catalog snapshot for stale prices.
func (a *Alerter) EvaluateSnapshot(snap *MetricsSnapshot) []Alert {
	if snap == nil || len(snap.StaleIDs) == 0 {
		return nil
	}
	return []Alert{{
		Type:     AlertStalePrices,
		Severity: "medium",
		Message: fmt.Sprintf("%d of %d batteries have no price update in the last %dh",
			len(snap.StaleIDs), snap.Batteries, snap.StaleAfterHours),
		Details: map[string]any{
			"battery_ids": snap.StaleIDs,
			"unpriced":    snap.Unpriced,
		},
		Timestamp: a.now(),
	}}
}

// priceDrop returns the fractional decrease from OldPrice to NewPrice.
func priceDrop(o model.SupplierOutcome) (float64, bool) {
	if o.OldPrice == nil || *o.OldPrice <= 0 || o.NewPrice >= *o.OldPrice {
		return 0, false
	}
	return (*o.OldPrice - o.NewPrice) / *o.OldPrice, true
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
