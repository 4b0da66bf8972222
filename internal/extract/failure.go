package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricetrack/internal/model"
	"github.com/sells-group/pricetrack/internal/resilience"
)

// Canonical one-line failure reasons.
const (
	ReasonNoData          = "no data in response"
	ReasonVariantNotFound = "target variant not found"
	ReasonNoValidPrice    = "no valid price"
	ReasonNoSelectorMatch = "price not found with any selector"
	ReasonInvalidJSON     = "invalid json in response"
	ReasonInvalidHTML     = "invalid html in response"
	ReasonTimeout         = "request timed out"
)

// Failure is a structured per-supplier failure. Every failure that reaches
// a batch outcome is a *Failure.
type Failure struct {
	Kind   model.FailureKind
	Reason string
	// Detail carries diagnostic context such as the selectors tried or the
	// field names inspected.
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	msg := f.Reason
	if f.Detail != "" {
		msg += " (" + f.Detail + ")"
	}
	if f.Err != nil && !strings.Contains(f.Err.Error(), f.Reason) {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transient reports whether the failure was caused by a transient network
// condition.
func (f *Failure) Transient() bool {
	return f.Kind == model.FailureNetwork && resilience.IsTransient(f.Err)
}

// Failf builds a failure of the given kind.
func Failf(kind model.FailureKind, reason, detailFormat string, args ...any) *Failure {
	f := &Failure{Kind: kind, Reason: reason}
	if detailFormat != "" {
		f.Detail = fmt.Sprintf(detailFormat, args...)
	}
	return f
}

// NetworkFailure converts a fetch error into a failure with an operator
// readable reason.
func NetworkFailure(err error) *Failure {
	f := &Failure{Kind: model.FailureNetwork, Err: err}
	var se *resilience.StatusError
	switch {
	case resilience.IsTimeout(err):
		f.Reason = ReasonTimeout
	case errors.As(err, &se):
		f.Reason = se.Error()
	default:
		f.Reason = "request failed: " + eris.Cause(err).Error()
	}
	return f
}

// AsFailure returns err as a *Failure, wrapping anything else as an
// internal failure. Returns nil for a nil error.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: model.FailureInternal, Reason: err.Error(), Err: err}
}
