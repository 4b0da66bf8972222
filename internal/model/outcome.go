package model

import "time"

// FailureKind classifies why a supplier failed in a batch run.
type FailureKind string

const (
	FailureNetwork     FailureKind = "network"
	FailureExtraction  FailureKind = "extraction"
	FailureMatch       FailureKind = "match"
	FailurePersistence FailureKind = "persistence"
	FailureInternal    FailureKind = "internal"
)

// Extraction is a successfully extracted price.
type Extraction struct {
	Price      float64   `json:"price"`
	Strategy   string    `json:"strategy"`
	ObservedAt time.Time `json:"observed_at"`
	SourceURL  string    `json:"source_url"`
}

// SupplierOutcome is the result of one supplier in one batch run. It is
// never persisted.
type SupplierOutcome struct {
	Supplier   string        `json:"supplier"`
	Success    bool          `json:"success"`
	EntityID   string        `json:"battery_id,omitempty"`
	EntityName string        `json:"battery_name,omitempty"`
	OldPrice   *float64      `json:"old_price,omitempty"`
	NewPrice   float64       `json:"new_price,omitempty"`
	Delta      *float64      `json:"price_change,omitempty"`
	Strategy   string        `json:"strategy,omitempty"`
	Reason     string        `json:"error,omitempty"`
	Kind       FailureKind   `json:"failure_kind,omitempty"`
	Transient  bool          `json:"transient,omitempty"`
	Duration   time.Duration `json:"duration_ns"`

	// HistoryError is set when the price update committed but the history
	// append did not. The outcome is still a success.
	HistoryError   string `json:"history_error,omitempty"`
	HistorySkipped bool   `json:"history_skipped,omitempty"`
}

// BatchSummary aggregates the outcomes of one batch run.
type BatchSummary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"successful"`
	Failed    int               `json:"failed"`
	Outcomes  []SupplierOutcome `json:"results"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration_ns"`
}

// Successes returns the successful outcomes in order.
func (s *BatchSummary) Successes() []SupplierOutcome {
	var out []SupplierOutcome
	for _, o := range s.Outcomes {
		if o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Failures returns the failed outcomes in order.
func (s *BatchSummary) Failures() []SupplierOutcome {
	var out []SupplierOutcome
	for _, o := range s.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// NewBatchSummary computes the counts for a set of outcomes.
func NewBatchSummary(outcomes []SupplierOutcome, startedAt time.Time, d time.Duration) *BatchSummary {
	s := &BatchSummary{
		Total:     len(outcomes),
		Outcomes:  outcomes,
		StartedAt: startedAt,
		Duration:  d,
	}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
