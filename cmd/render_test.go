package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricetrack/internal/model"
)

func TestFormatOutcome(t *testing.T) {
	tests := []struct {
		name string
		o    model.SupplierOutcome
		want string
	}{
		{"increase", model.SupplierOutcome{Supplier: "Growatt", Success: true, NewPrice: 1299, Delta: model.Float64Ptr(100)}, "✓ Growatt: $1299.00 (+$100.00)"},
		{"decrease", model.SupplierOutcome{Supplier: "Anker", Success: true, NewPrice: 1299, Delta: model.Float64Ptr(-300)}, "✓ Anker: $1299.00 (-$300.00)"},
		{"unchanged", model.SupplierOutcome{Supplier: "Anker", Success: true, NewPrice: 1299, Delta: model.Float64Ptr(0)}, "✓ Anker: $1299.00"},
		{"first price", model.SupplierOutcome{Supplier: "Growatt", Success: true, NewPrice: 999.5}, "✓ Growatt: $999.50"},
		{"failure", model.SupplierOutcome{Supplier: "EcoFlow", Reason: "price not found with any selector"}, "✗ EcoFlow: price not found with any selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatOutcome(tt.o))
		})
	}
}

func TestRenderSummary_SuccessesThenFailures(t *testing.T) {
	s := model.NewBatchSummary([]model.SupplierOutcome{
		{Supplier: "Growatt", Success: true, NewPrice: 1299, Delta: model.Float64Ptr(100)},
		{Supplier: "EcoFlow", Reason: "price not found with any selector"},
		{Supplier: "Anker", Success: true, NewPrice: 1199, HistoryError: "disk full"},
	}, time.Now(), 1500*time.Millisecond)

	var buf bytes.Buffer
	renderSummary(&buf, s)
	out := buf.String()

	growatt := strings.Index(out, "✓ Growatt: $1299.00 (+$100.00)")
	anker := strings.Index(out, "✓ Anker: $1199.00")
	ecoflow := strings.Index(out, "✗ EcoFlow: price not found with any selector")
	require.NotEqual(t, -1, growatt)
	require.NotEqual(t, -1, anker)
	require.NotEqual(t, -1, ecoflow)
	assert.Less(t, growatt, anker)
	assert.Less(t, anker, ecoflow)

	assert.Contains(t, out, "history not recorded: disk full")
	assert.Contains(t, out, "Success: 2/3")
}

func TestWriteSummaryJSON(t *testing.T) {
	s := model.NewBatchSummary([]model.SupplierOutcome{
		{Supplier: "Anker", Success: true, EntityID: "anker-solix-f2000", NewPrice: 1199, OldPrice: model.Float64Ptr(1599), Delta: model.Float64Ptr(-400)},
		{Supplier: "EcoFlow", Reason: "target variant not found", Kind: model.FailureExtraction},
	}, time.Now(), time.Second)

	var buf bytes.Buffer
	require.NoError(t, writeSummaryJSON(&buf, s))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 2, got["total"])
	assert.EqualValues(t, 1, got["successful"])
	assert.EqualValues(t, 1, got["failed"])

	results, ok := got["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "Anker", first["supplier"])
	assert.EqualValues(t, -400, first["price_change"])
	second := results[1].(map[string]any)
	assert.Equal(t, "target variant not found", second["error"])
}
