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

	"github.com/sells-group/pricetrack/internal/config"
	"github.com/sells-group/pricetrack/internal/model"
)

func summaryOf(outcomes ...model.SupplierOutcome) *model.BatchSummary {
	return model.NewBatchSummary(outcomes, time.Now(), time.Second)
}

func alertTypes(alerts []Alert) []AlertType {
	var out []AlertType
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.5,
		PriceDropThreshold:   0.10,
	})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Growatt", Success: true, OldPrice: model.Float64Ptr(1200), NewPrice: 1299},
		model.SupplierOutcome{Supplier: "EcoFlow", Success: true, NewPrice: 999},
	))
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_NilAndEmpty(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Nil(t, a.Evaluate(nil))
	assert.Nil(t, a.Evaluate(summaryOf()))
}

func TestAlerter_Evaluate_SupplierFailureSeverity(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Growatt", Reason: "price not found with any selector", Kind: model.FailureExtraction},
		model.SupplierOutcome{Supplier: "Anker", Reason: "unexpected status 503", Kind: model.FailureNetwork, Transient: true},
	))
	require.Len(t, alerts, 2)

	assert.Equal(t, AlertSupplierFailure, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, "Growatt: price not found with any selector", alerts[0].Message)
	assert.Equal(t, "extraction", alerts[0].Details["failure_kind"])

	assert.Equal(t, "low", alerts[1].Severity)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Growatt", Reason: "x"},
		model.SupplierOutcome{Supplier: "EcoFlow", Reason: "y"},
		model.SupplierOutcome{Supplier: "Anker", Success: true, NewPrice: 1},
	))
	assert.Equal(t, []AlertType{AlertSupplierFailure, AlertSupplierFailure, AlertFailureRate}, alertTypes(alerts))
	assert.Contains(t, alerts[2].Message, "66.7%")
	assert.Contains(t, alerts[2].Message, "2 failed / 3 suppliers")
}

func TestAlerter_Evaluate_FailureRateAtThresholdDoesNotFire(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Growatt", Reason: "x"},
		model.SupplierOutcome{Supplier: "Anker", Success: true, NewPrice: 1},
	))
	assert.Equal(t, []AlertType{AlertSupplierFailure}, alertTypes(alerts))
}

func TestAlerter_Evaluate_PriceDrop(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, PriceDropThreshold: 0.10})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Anker", Success: true, EntityID: "anker", OldPrice: model.Float64Ptr(1599), NewPrice: 1299},
		model.SupplierOutcome{Supplier: "EcoFlow", Success: true, OldPrice: model.Float64Ptr(1000), NewPrice: 950},
	))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPriceDrop, alerts[0].Type)
	assert.Equal(t, "Anker: price dropped 18.8% ($1599.00 -> $1299.00)", alerts[0].Message)
}

func TestAlerter_Evaluate_PriceDropDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "Anker", Success: true, OldPrice: model.Float64Ptr(1599), NewPrice: 10},
	))
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_HistoryAppendFailure(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	alerts := a.Evaluate(summaryOf(
		model.SupplierOutcome{Supplier: "EcoFlow", Success: true, EntityID: "delta3", NewPrice: 999, HistoryError: "disk full"},
	))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertHistoryAppend, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "disk full")
}

func TestAlerter_EvaluateSnapshot(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	assert.Nil(t, a.EvaluateSnapshot(nil))
	assert.Nil(t, a.EvaluateSnapshot(&MetricsSnapshot{Batteries: 3}))

	alerts := a.EvaluateSnapshot(&MetricsSnapshot{Batteries: 3, StaleIDs: []string{"a", "b"}, StaleAfterHours: 48})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalePrices, alerts[0].Type)
	assert.Equal(t, "2 of 3 batteries have no price update in the last 48h", alerts[0].Message)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSupplierFailure, Severity: "high", Message: "test alert 1"},
		{Type: AlertFailureRate, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertSupplierFailure, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertSupplierFailure, Message: "test"}})
	assert.Equal(t, 0, sent)
}
