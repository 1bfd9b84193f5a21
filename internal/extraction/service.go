package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/history"
	"catastro-backend/internal/shared/metrics"
	"catastro-backend/internal/shared/telemetry"
	"catastro-backend/internal/shared/util"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultThreshold = 0.5

	historyWriteTimeout = 3 * time.Second
)

// Request states, as logged in status_transition.
const (
	stateReceived            = "received"
	stateIntakeOK            = "intake_ok"
	stateExtractingPrimary   = "extracting(primary)"
	stateRetryingSecondary   = "retrying(secondary)"
	stateExtractingSecondary = "extracting(secondary)"
	stateSucceeded           = "succeeded"
	stateFailed              = "failed"
)

// Attempt results, as counted in metrics.
const (
	attemptOK            = "ok"
	attemptLowConfidence = "low_confidence"
	attemptTimeout       = "timeout"
	attemptError         = "error"
	attemptCanceled      = "canceled"
)

// Service drives one upload through intake, the primary backend and, when
// needed, the secondary backend. Each backend runs at most once per request.
type Service struct {
	Intake    *documents.Service
	Primary   Backend
	Secondary Backend
	// Timeout bounds each backend call. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Threshold is the minimum primary confidence accepted without fallback.
	// Any value in [0,1] is honored, zero included; values outside that
	// range use DefaultThreshold. Callers set the default explicitly.
	Threshold float64
	History   history.Repo
	// ConfigErr, when set, makes every request fail with KindConfiguration.
	ConfigErr error
}

// Process validates the upload and runs the extraction. The temporary file
// created by intake is gone when Process returns.
func (s *Service) Process(ctx context.Context, up documents.Upload, pref Preference) Outcome {
	run := newRun(up)
	if s.ConfigErr != nil {
		return s.finish(ctx, Failed(Failure{Kind: KindConfiguration, Message: s.ConfigErr.Error()}), run)
	}
	if s.Intake == nil {
		return s.finish(ctx, Failed(Failure{Kind: KindConfiguration, Message: "intake not configured"}), run)
	}

	doc, err := s.Intake.Accept(ctx, up)
	if err != nil {
		return s.finish(ctx, intakeFailure(ctx, err), run)
	}
	return s.run(ctx, Request{Document: doc, Preference: pref}, run)
}

// Reject records an upload refused before it reached intake, such as a body
// cut off by the transport size limit.
func (s *Service) Reject(ctx context.Context, up documents.Upload, err error) Outcome {
	return s.finish(ctx, intakeFailure(ctx, err), newRun(up))
}

// Run extracts an already accepted document and releases it.
func (s *Service) Run(ctx context.Context, req Request) Outcome {
	return s.run(ctx, req, newRun(documents.Upload{}))
}

func (s *Service) run(ctx context.Context, req Request, r *runState) Outcome {
	doc := req.Document
	if doc == nil {
		return s.finish(ctx, Failed(Failure{Kind: KindInternal, Message: "request has no document"}), r)
	}
	defer doc.Release()
	r.attach(doc)
	r.to(stateIntakeOK, nil)

	out := s.extract(ctx, req, r)
	if err := doc.Release(); err != nil {
		telemetry.Warn("extraction.release_failed", map[string]any{"document_id": doc.ID, "error": err})
	}
	return s.finish(ctx, out, r)
}

func (s *Service) extract(ctx context.Context, req Request, r *runState) Outcome {
	if s.Primary == nil {
		return Failed(Failure{Kind: KindConfiguration, Message: "primary backend not configured"})
	}

	r.to(stateExtractingPrimary, map[string]any{"model": s.Primary.Model()})
	primary, primaryErr := s.attempt(ctx, s.Primary, req.Document, r)
	if ctx.Err() != nil {
		return Failed(Failure{Kind: KindCanceled, Message: ctx.Err().Error()})
	}
	if primaryErr == nil && s.accepts(primary) {
		return s.succeed(primary, BackendPrimary, r)
	}

	if req.Preference == PreferencePrimaryOnly || s.Secondary == nil {
		switch {
		case primaryErr != nil:
			return Failed(Failure{Kind: classify(ctx, primaryErr), Message: primaryErr.Error()})
		case !primary.Calibrated():
			return Failed(Failure{Kind: KindBackendExecution, Message: "primary backend returned no calibrated confidence"})
		default:
			return s.succeed(primary, BackendPrimary, r)
		}
	}

	var carried *Result
	reason := attemptLowConfidence
	if primaryErr == nil {
		carried = &primary
	} else {
		reason = string(classify(ctx, primaryErr))
	}
	r.to(stateRetryingSecondary, map[string]any{"reason": reason})
	r.to(stateExtractingSecondary, map[string]any{"model": s.Secondary.Model()})

	secondary, secondaryErr := s.attempt(ctx, s.Secondary, req.Document, r)
	if ctx.Err() != nil {
		return Failed(Failure{Kind: KindCanceled, Message: ctx.Err().Error()})
	}
	if secondaryErr != nil {
		return Failed(Failure{Kind: classify(ctx, secondaryErr), Message: secondaryErr.Error()})
	}
	best, kind := secondary, BackendSecondary
	if carried != nil && carried.rank() >= secondary.rank() {
		best, kind = *carried, BackendPrimary
	}
	if !best.Calibrated() {
		return Failed(Failure{Kind: KindBackendExecution, Message: "no backend returned a calibrated confidence"})
	}
	return s.succeed(best, kind, r)
}

type callResult struct {
	res Result
	err error
}

// attempt runs one backend under its own deadline and records the result.
func (s *Service) attempt(ctx context.Context, b Backend, doc *documents.Document, r *runState) (Result, error) {
	began := time.Now()
	res, err := s.invoke(ctx, b, doc)
	if err == nil {
		if verr := res.validate(); verr != nil {
			err = fmt.Errorf("%s backend: %w", b.Kind(), verr)
		}
	}
	elapsed := time.Since(began)

	label := attemptOK
	switch {
	case err != nil && ctx.Err() != nil:
		label = attemptCanceled
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		label = attemptTimeout
	case err != nil:
		label = attemptError
	case !s.accepts(res):
		label = attemptLowConfidence
	}
	r.attempts = append(r.attempts, Attempt{Backend: b.Kind(), Result: label, Elapsed: elapsed})
	metrics.IncBackendAttempt(string(b.Kind()), label)

	fields := map[string]any{
		"document_id": r.documentID,
		"backend":     string(b.Kind()),
		"model":       b.Model(),
		"result":      label,
		"elapsed_ms":  elapsed.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err
	} else {
		fields["confidence"] = res.ReportedConfidence()
		fields["calibrated"] = res.Calibrated()
	}
	telemetry.Info("extraction.attempt", fields)
	return res, err
}

// invoke abandons the backend call once its deadline passes; a late result
// is dropped into a buffered channel nobody reads.
func (s *Service) invoke(ctx context.Context, b Backend, doc *documents.Document) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- callResult{err: fmt.Errorf("%s backend panic: %v", b.Kind(), rec)}
			}
		}()
		res, err := b.Extract(callCtx, doc)
		done <- callResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if callCtx.Err() != nil && !errors.Is(out.err, callCtx.Err()) {
				return Result{}, fmt.Errorf("%s backend: %w: %v", b.Kind(), callCtx.Err(), out.err)
			}
			return Result{}, fmt.Errorf("%s backend: %w", b.Kind(), out.err)
		}
		return out.res, nil
	case <-callCtx.Done():
		return Result{}, fmt.Errorf("%s backend: %w", b.Kind(), callCtx.Err())
	}
}

func (s *Service) succeed(res Result, kind BackendKind, r *runState) Outcome {
	var elapsed time.Duration
	for _, a := range r.attempts {
		if a.Backend == kind {
			elapsed = a.Elapsed
		}
	}
	return Succeeded(Success{
		Fields:     res.Fields,
		Confidence: res.ReportedConfidence(),
		Backend:    kind,
		Elapsed:    elapsed,
	})
}

func (s *Service) accepts(res Result) bool {
	return res.Calibrated() && res.Confidence >= s.threshold()
}

func (s *Service) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

func (s *Service) threshold() float64 {
	if s.Threshold >= 0 && s.Threshold <= 1 {
		return s.Threshold
	}
	return DefaultThreshold
}

// finish stamps request metadata on the terminal outcome, then logs,
// counts and records it.
func (s *Service) finish(ctx context.Context, out Outcome, r *runState) Outcome {
	out.DocumentID = r.documentID
	out.DocumentType = r.documentType
	out.ProcessingTime = time.Since(r.start)
	out.Attempts = r.attempts

	status, kind := stateSucceeded, ""
	fields := map[string]any{"attempts": len(r.attempts), "processing_ms": out.ProcessingTime.Milliseconds()}
	if succ, ok := out.Success(); ok {
		kind = string(succ.Backend)
		fields["backend_used"] = kind
		fields["confidence"] = succ.Confidence
	} else {
		fail, _ := out.Failure()
		status, kind = stateFailed, string(fail.Kind)
		fields["error_kind"] = kind
		if fail.Reason != "" {
			fields["reason"] = fail.Reason
		}
		if fail.Message != "" {
			fields["error"] = fail.Message
		}
	}
	r.to(status, fields)
	metrics.IncExtraction(status, kind)
	metrics.ObserveExtractionDuration(out.ProcessingTime)
	s.record(ctx, out, r)
	return out
}

func (s *Service) record(ctx context.Context, out Outcome, r *runState) {
	if s.History == nil {
		return
	}
	rec := history.Record{
		ID:             uuid.NewString(),
		DocumentID:     r.documentID,
		DocumentType:   r.documentType,
		FileName:       r.fileName,
		SizeBytes:      r.sizeBytes,
		Checksum:       r.checksum,
		Attempts:       len(r.attempts),
		ProcessingTime: out.ProcessingTime,
		CreatedAt:      time.Now().UTC(),
	}
	if succ, ok := out.Success(); ok {
		conf := succ.Confidence
		rec.Status = history.StatusSucceeded
		rec.BackendUsed = string(succ.Backend)
		rec.Confidence = &conf
	} else {
		fail, _ := out.Failure()
		rec.Status = history.StatusFailed
		rec.ErrorKind = string(fail.Kind)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := s.History.Append(writeCtx, rec); err != nil {
		telemetry.Warn("extraction.history_failed", map[string]any{"document_id": r.documentID, "error": err})
	}
}

func intakeFailure(ctx context.Context, err error) Outcome {
	var inputErr *documents.InvalidInputError
	switch {
	case errors.As(err, &inputErr):
		return Failed(Failure{Kind: KindInvalidInput, Reason: inputErr.Reason, Message: err.Error()})
	case ctx.Err() != nil:
		return Failed(Failure{Kind: KindCanceled, Message: err.Error()})
	default:
		return Failed(Failure{Kind: KindInternal, Message: err.Error()})
	}
}

// classify maps a backend error to the kind surfaced when no fallback remains.
func classify(ctx context.Context, err error) ErrorKind {
	switch {
	case ctx.Err() != nil:
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindBackendTimeout
	default:
		return KindBackendExecution
	}
}

// runState is the per-request bookkeeping of one Process or Run call.
type runState struct {
	start        time.Time
	state        string
	documentID   string
	documentType string
	fileName     string
	sizeBytes    int64
	checksum     string
	attempts     []Attempt
}

func newRun(up documents.Upload) *runState {
	r := &runState{start: time.Now(), state: stateReceived}
	if name, err := util.SanitizeFileName(up.Filename); err == nil {
		r.fileName = name
	}
	if t, err := documents.ParseType(up.DeclaredType); err == nil {
		r.documentType = string(t)
	}
	return r
}

func (r *runState) attach(doc *documents.Document) {
	r.documentID = doc.ID
	r.documentType = string(doc.Type)
	r.fileName = doc.OriginalName
	r.sizeBytes = doc.SizeBytes
	r.checksum = doc.Checksum
}

func (r *runState) to(next string, extra map[string]any) {
	fields := map[string]any{
		"document_id":       r.documentID,
		"document_type":     r.documentType,
		"status":            next,
		"status_transition": r.state + "->" + next,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("extraction.status", fields)
	r.state = next
}
