package extraction

import "time"

// ErrorKind classifies a failed extraction.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalid_input"
	KindBackendTimeout   ErrorKind = "backend_timeout"
	KindBackendExecution ErrorKind = "backend_execution"
	KindConfiguration    ErrorKind = "configuration"
	KindCanceled         ErrorKind = "canceled"
	KindInternal         ErrorKind = "internal"
	KindRateLimited      ErrorKind = "rate_limited"
)

// Success is the payload of a successful extraction.
type Success struct {
	Fields     Fields
	Confidence float64
	Backend    BackendKind
	Elapsed    time.Duration
}

// Failure is the payload of a failed extraction. Message is for logs only.
type Failure struct {
	Kind    ErrorKind
	Reason  string
	Message string
}

// Attempt records one backend invocation.
type Attempt struct {
	Backend BackendKind
	Result  string
	Elapsed time.Duration
}

// Outcome is either a Success or a Failure, never both.
// Build it with Succeeded or Failed.
type Outcome struct {
	success *Success
	failure *Failure

	DocumentID     string
	DocumentType   string
	ProcessingTime time.Duration
	Attempts       []Attempt
}

// Succeeded wraps a Success. Confidence is clamped into [0,1].
func Succeeded(s Success) Outcome {
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	return Outcome{success: &s}
}

// Failed wraps a Failure.
func Failed(f Failure) Outcome {
	if f.Kind == "" {
		f.Kind = KindInternal
	}
	return Outcome{failure: &f}
}

// Success returns the success payload.
func (o Outcome) Success() (Success, bool) {
	if o.success == nil {
		return Success{}, false
	}
	return *o.success, true
}

// Failure returns the failure payload. The zero Outcome reports an internal failure.
func (o Outcome) Failure() (Failure, bool) {
	if o.failure != nil {
		return *o.failure, true
	}
	if o.success == nil {
		return Failure{Kind: KindInternal, Message: "empty outcome"}, true
	}
	return Failure{}, false
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.success != nil
}
