package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricetrack/internal/model"
)

func newTestRouter(t *testing.T) (http.Handler, *pipelineEnv) {
	t.Helper()
	setupTestConfig(t)
	env := newTestEnv(t)
	return buildRouter(context.Background(), env), env
}

func doRequest(h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBatteriesEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodGet, "/api/batteries", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.CatalogEntity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 3)
	for _, b := range got {
		require.NotNil(t, b.Class, "battery %s should carry class info", b.ID)
	}
}

func TestClassesEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodGet, "/api/classes", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.BatteryClass
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestPriceHistoryEndpoint_MissingBatteryID(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodGet, "/api/price-history", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "batteryId is required")
}

func TestPriceHistoryEndpoint_BadLimit(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodGet, "/api/price-history?batteryId=anker-solix-f2000&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPriceHistoryEndpoint_NewestFirst(t *testing.T) {
	h, env := newTestRouter(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []float64{1599, 1499, 1399} {
		require.NoError(t, env.Store.AppendHistory(ctx, "anker-solix-f2000", p, base.Add(time.Duration(i)*time.Hour)))
	}

	rr := doRequest(h, http.MethodGet, "/api/price-history?batteryId=anker-solix-f2000&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.PriceHistoryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.InDelta(t, 1399.0, got[0].Price, 1e-9)
	assert.InDelta(t, 1499.0, got[1].Price, 1e-9)
}

func TestWebhookBatch_RunsAndInvalidatesCache(t *testing.T) {
	h, _ := newTestRouter(t)

	// Prime the cache with unpriced batteries.
	rr := doRequest(h, http.MethodGet, "/api/batteries", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(h, http.MethodPost, "/webhook/batch", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var summary model.BatchSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)

	rr = doRequest(h, http.MethodGet, "/api/batteries", nil)
	var got []model.CatalogEntity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	prices := map[string]*float64{}
	for _, b := range got {
		prices[b.ID] = b.CurrentPrice
	}
	require.NotNil(t, prices["anker-solix-f2000"])
	assert.InDelta(t, 1199.0, *prices["anker-solix-f2000"], 1e-9)
	assert.Nil(t, prices["ecoflow-delta-3"])
}

func TestWebhookBatch_RequiresToken(t *testing.T) {
	h, _ := newTestRouter(t)
	cfg.Server.WebhookToken = "s3cret"

	rr := doRequest(h, http.MethodPost, "/webhook/batch", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(h, http.MethodPost, "/webhook/batch", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(h, http.MethodPost, "/webhook/batch", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodPost, "/webhook/batch", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pricetrack_batches_total 1")
	assert.Contains(t, string(body), `pricetrack_supplier_outcomes_total{kind="extraction",result="failure",supplier="EcoFlow"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doRequest(h, http.MethodOptions, "/api/batteries", map[string]string{
		"Origin":                        "https://dashboard.example.com",
		"Access-Control-Request-Method": http.MethodGet,
	})
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	n, err = parseLimit("20")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = parseLimit("10000")
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	_, err = parseLimit("0")
	assert.Error(t, err)
	_, err = parseLimit("-3")
	assert.Error(t, err)
}

func TestAuthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/batch", nil)
	assert.True(t, authorized(req, ""))
	assert.False(t, authorized(req, "tok"))

	req.Header.Set("Authorization", "Bearer tok")
	assert.True(t, authorized(req, "tok"))

	req.Header.Set("Authorization", "tok")
	assert.False(t, authorized(req, "tok"))
}
