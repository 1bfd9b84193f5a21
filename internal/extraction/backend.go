package extraction

import (
	"context"
	"fmt"
	"math"

	"catastro-backend/internal/documents"
)

// BackendKind names a backend variant.
type BackendKind string

const (
	BackendPrimary   BackendKind = "primary"
	BackendSecondary BackendKind = "secondary"
)

// UncalibratedConfidence is returned by a backend that cannot measure its
// own accuracy. It ranks below every real score, never passes the threshold
// and is reported as 0.
const UncalibratedConfidence = -1.0

// Backend turns a stored document into structured fields.
// Implementations must return promptly once ctx is done.
type Backend interface {
	Kind() BackendKind
	Model() string
	Extract(ctx context.Context, doc *documents.Document) (Result, error)
}

// Result is the raw output of one backend call.
type Result struct {
	Fields     Fields
	Confidence float64
}

// Calibrated reports whether the result carries a real confidence score.
func (r Result) Calibrated() bool {
	return r.Confidence != UncalibratedConfidence
}

// ReportedConfidence is the score exposed to callers.
func (r Result) ReportedConfidence() float64 {
	if !r.Calibrated() {
		return 0
	}
	return r.Confidence
}

func (r Result) validate() error {
	if !r.Calibrated() {
		return nil
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	return nil
}

// rank orders results for selection; uncalibrated results sort last.
func (r Result) rank() float64 {
	if !r.Calibrated() {
		return -1
	}
	return r.Confidence
}
