package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/history"
	"catastro-backend/internal/shared/storage/scratch"
)

type fakeBackend struct {
	kind  BackendKind
	calls atomic.Int32
	fn    func(ctx context.Context, doc *documents.Document) (Result, error)
}

func (f *fakeBackend) Kind() BackendKind { return f.kind }
func (f *fakeBackend) Model() string     { return "fake-" + string(f.kind) }

func (f *fakeBackend) Extract(ctx context.Context, doc *documents.Document) (Result, error) {
	f.calls.Add(1)
	return f.fn(ctx, doc)
}

func returns(kind BackendKind, conf float64, fields Fields) *fakeBackend {
	return &fakeBackend{kind: kind, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
		return Result{Fields: fields, Confidence: conf}, nil
	}}
}

func fails(kind BackendKind, err error) *fakeBackend {
	return &fakeBackend{kind: kind, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
		return Result{}, err
	}}
}

func blocks(kind BackendKind) *fakeBackend {
	return &fakeBackend{kind: kind, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
}

func propertyFields() Fields {
	var f Fields
	f.Set("folio", "12345-2024")
	f.Set("propietario", "María González Rodríguez")
	return f
}

func newTestService(t *testing.T, primary, secondary Backend) (*Service, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	return &Service{
		Intake:    &documents.Service{Store: scratch.New(dir, "upload", ".pdf"), MaxBytes: 1024},
		Primary:   primary,
		Secondary: secondary,
		Timeout:   time.Second,
		Threshold: 0.5,
		History:   history.NewMemoryRepo(100),
	}, dir
}

func pdfUpload(docType string) documents.Upload {
	return documents.Upload{Filename: "test.pdf", DeclaredType: docType, Body: strings.NewReader("%PDF-")}
}

func assertNoTempFiles(t *testing.T, svc *Service, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no temp files, found %d", len(entries))
	}
	if svc.Intake.Store.Active() != 0 {
		t.Fatalf("expected no active scratch files, got %d", svc.Intake.Store.Active())
	}
}

func TestPrimarySuccessAboveThreshold(t *testing.T) {
	primary := returns(BackendPrimary, 0.92, propertyFields())
	secondary := returns(BackendSecondary, 0.99, nil)
	svc, dir := newTestService(t, primary, secondary)

	out := svc.Process(context.Background(), pdfUpload("propiedad"), PreferenceAuto)
	succ, ok := out.Success()
	if !ok {
		t.Fatalf("expected success, got %+v", out)
	}
	if succ.Backend != BackendPrimary || succ.Confidence != 0.92 {
		t.Fatalf("unexpected success: %+v", succ)
	}
	if v, _ := succ.Fields.Get("folio"); v != "12345-2024" {
		t.Fatalf("expected folio field, got %q", v)
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary must not run when primary clears the threshold")
	}
	if out.DocumentID == "" || out.DocumentType != "property" {
		t.Fatalf("expected document metadata on outcome: %+v", out)
	}
	assertNoTempFiles(t, svc, dir)
}

func TestInvalidInputNeverReachesBackends(t *testing.T) {
	primary := returns(BackendPrimary, 0.92, nil)
	secondary := returns(BackendSecondary, 0.92, nil)
	svc, dir := newTestService(t, primary, secondary)

	out := svc.Process(context.Background(), documents.Upload{
		Filename: "test.txt",
		Body:     strings.NewReader("hello"),
	}, PreferenceAuto)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindInvalidInput || fail.Reason != documents.ReasonUnsupportedFormat {
		t.Fatalf("expected unsupported_format failure, got %+v", fail)
	}
	if _, ok := out.Success(); ok {
		t.Fatalf("failure outcome must not carry a success payload")
	}
	if primary.calls.Load()+secondary.calls.Load() != 0 {
		t.Fatalf("no backend may run for invalid input")
	}
	assertNoTempFiles(t, svc, dir)
}

func TestPrimaryTimeoutFallsBackToSecondary(t *testing.T) {
	primary := blocks(BackendPrimary)
	secondary := returns(BackendSecondary, 0.6, propertyFields())
	svc, dir := newTestService(t, primary, secondary)
	svc.Timeout = 30 * time.Millisecond

	out := svc.Process(context.Background(), pdfUpload("propiedad"), PreferenceAuto)
	succ, ok := out.Success()
	if !ok {
		t.Fatalf("expected success, got %+v", out)
	}
	if succ.Backend != BackendSecondary || succ.Confidence != 0.6 {
		t.Fatalf("unexpected success: %+v", succ)
	}
	if len(out.Attempts) != 2 || out.Attempts[0].Result != attemptTimeout {
		t.Fatalf("expected primary timeout then secondary, got %+v", out.Attempts)
	}
	assertNoTempFiles(t, svc, dir)
}

func TestBothBackendsFail(t *testing.T) {
	primary := fails(BackendPrimary, errors.New("model quota exceeded"))
	secondary := fails(BackendSecondary, errors.New("panic: runtime error at extractor.go:42"))
	svc, dir := newTestService(t, primary, secondary)

	out := svc.Process(context.Background(), pdfUpload("gravamen"), PreferenceAuto)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindBackendExecution {
		t.Fatalf("expected backend_execution failure, got %+v", out)
	}
	if primary.calls.Load() != 1 || secondary.calls.Load() != 1 {
		t.Fatalf("expected exactly one call per backend")
	}
	assertNoTempFiles(t, svc, dir)
}

func TestFallbackSelection(t *testing.T) {
	tests := []struct {
		name        string
		primary     *fakeBackend
		secondary   *fakeBackend
		wantBackend BackendKind
		wantConf    float64
	}{
		{
			name:        "secondary wins on higher confidence",
			primary:     returns(BackendPrimary, 0.3, nil),
			secondary:   returns(BackendSecondary, 0.6, nil),
			wantBackend: BackendSecondary,
			wantConf:    0.6,
		},
		{
			name:        "carried primary wins on higher confidence",
			primary:     returns(BackendPrimary, 0.4, nil),
			secondary:   returns(BackendSecondary, 0.2, nil),
			wantBackend: BackendPrimary,
			wantConf:    0.4,
		},
		{
			name:        "tie goes to primary",
			primary:     returns(BackendPrimary, 0.4, nil),
			secondary:   returns(BackendSecondary, 0.4, nil),
			wantBackend: BackendPrimary,
			wantConf:    0.4,
		},
		{
			name:        "uncalibrated primary ranks below any real score",
			primary:     returns(BackendPrimary, UncalibratedConfidence, nil),
			secondary:   returns(BackendSecondary, 0.1, nil),
			wantBackend: BackendSecondary,
			wantConf:    0.1,
		},
		{
			name:        "out of range confidence is a backend error",
			primary:     returns(BackendPrimary, 1.5, nil),
			secondary:   returns(BackendSecondary, 0.7, nil),
			wantBackend: BackendSecondary,
			wantConf:    0.7,
		},
		{
			name: "primary panic is recovered",
			primary: &fakeBackend{kind: BackendPrimary, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
				panic("boom")
			}},
			secondary:   returns(BackendSecondary, 0.8, nil),
			wantBackend: BackendSecondary,
			wantConf:    0.8,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, dir := newTestService(t, tt.primary, tt.secondary)
			out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
			succ, ok := out.Success()
			if !ok {
				t.Fatalf("expected success, got %+v", out)
			}
			if succ.Backend != tt.wantBackend || succ.Confidence != tt.wantConf {
				t.Fatalf("got %s/%v, want %s/%v", succ.Backend, succ.Confidence, tt.wantBackend, tt.wantConf)
			}
			if succ.Confidence < 0 || succ.Confidence > 1 {
				t.Fatalf("confidence out of bounds: %v", succ.Confidence)
			}
			if tt.primary.calls.Load() != 1 || tt.secondary.calls.Load() != 1 {
				t.Fatalf("expected one call per backend")
			}
			assertNoTempFiles(t, svc, dir)
		})
	}
}

func TestSecondaryFailureFailsRequest(t *testing.T) {
	tests := []struct {
		name      string
		primary   *fakeBackend
		secondary *fakeBackend
		wantKind  ErrorKind
	}{
		{
			name:      "under-confident primary is not returned",
			primary:   returns(BackendPrimary, 0.1, nil),
			secondary: fails(BackendSecondary, errors.New("no text")),
			wantKind:  KindBackendExecution,
		},
		{
			name:      "uncalibrated primary is not returned",
			primary:   returns(BackendPrimary, UncalibratedConfidence, nil),
			secondary: fails(BackendSecondary, errors.New("no text")),
			wantKind:  KindBackendExecution,
		},
		{
			name:      "both uncalibrated",
			primary:   returns(BackendPrimary, UncalibratedConfidence, nil),
			secondary: returns(BackendSecondary, UncalibratedConfidence, nil),
			wantKind:  KindBackendExecution,
		},
		{
			name:      "secondary timeout surfaces as the last error",
			primary:   returns(BackendPrimary, 0.3, nil),
			secondary: blocks(BackendSecondary),
			wantKind:  KindBackendTimeout,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, dir := newTestService(t, tt.primary, tt.secondary)
			svc.Timeout = 50 * time.Millisecond
			out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
			fail, ok := out.Failure()
			if !ok {
				t.Fatalf("expected failure, got %+v", out)
			}
			if fail.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, fail.Kind)
			}
			if out.OK() {
				t.Fatalf("failure outcome must not report ok")
			}
			if tt.primary.calls.Load() != 1 || tt.secondary.calls.Load() != 1 {
				t.Fatalf("expected one call per backend")
			}
			assertNoTempFiles(t, svc, dir)
		})
	}
}

func TestPrimaryOnlyNeverFallsBack(t *testing.T) {
	primary := fails(BackendPrimary, errors.New("unavailable"))
	secondary := returns(BackendSecondary, 0.9, nil)
	svc, _ := newTestService(t, primary, secondary)

	out := svc.Process(context.Background(), pdfUpload(""), PreferencePrimaryOnly)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindBackendExecution {
		t.Fatalf("expected backend_execution failure, got %+v", out)
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary must not run with primary_only")
	}

	low := returns(BackendPrimary, 0.2, nil)
	svc.Primary = low
	out = svc.Process(context.Background(), pdfUpload(""), PreferencePrimaryOnly)
	if succ, ok := out.Success(); !ok || succ.Backend != BackendPrimary {
		t.Fatalf("expected low-confidence primary result, got %+v", out)
	}

	svc.Primary = returns(BackendPrimary, UncalibratedConfidence, nil)
	out = svc.Process(context.Background(), pdfUpload(""), PreferencePrimaryOnly)
	if fail, ok := out.Failure(); !ok || fail.Kind != KindBackendExecution {
		t.Fatalf("uncalibrated primary must not succeed, got %+v", out)
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary must not run with primary_only")
	}
}

func TestPrimaryTimeoutOnlyFailsWithTimeoutKind(t *testing.T) {
	svc, _ := newTestService(t, blocks(BackendPrimary), blocks(BackendSecondary))
	svc.Timeout = 20 * time.Millisecond

	out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindBackendTimeout {
		t.Fatalf("expected backend_timeout, got %+v", out)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(out.Attempts))
	}
}

func TestParentCancellationStopsSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeBackend{kind: BackendPrimary, fn: func(c context.Context, doc *documents.Document) (Result, error) {
		cancel()
		<-c.Done()
		return Result{}, c.Err()
	}}
	secondary := returns(BackendSecondary, 0.9, nil)
	svc, dir := newTestService(t, primary, secondary)

	out := svc.Process(ctx, pdfUpload(""), PreferenceAuto)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindCanceled {
		t.Fatalf("expected canceled, got %+v", out)
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary must not run after cancellation")
	}
	assertNoTempFiles(t, svc, dir)
}

func TestTempFileLivesUntilTerminalState(t *testing.T) {
	var seenPath string
	primary := &fakeBackend{kind: BackendPrimary, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
		seenPath = doc.Path()
		if _, err := os.Stat(doc.Path()); err != nil {
			return Result{}, fmt.Errorf("temp file missing during extraction: %w", err)
		}
		return Result{Confidence: 0.9}, nil
	}}
	svc, dir := newTestService(t, primary, nil)

	out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	if !out.OK() {
		t.Fatalf("expected success, got %+v", out)
	}
	if _, err := os.Stat(seenPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file removed after response, stat err=%v", err)
	}
	assertNoTempFiles(t, svc, dir)
}

func TestConcurrentIdenticalUploadsAreIndependent(t *testing.T) {
	var paths sync.Map
	primary := &fakeBackend{kind: BackendPrimary, fn: func(ctx context.Context, doc *documents.Document) (Result, error) {
		if _, loaded := paths.LoadOrStore(doc.Path(), true); loaded {
			return Result{}, errors.New("temp path reused")
		}
		time.Sleep(5 * time.Millisecond)
		return Result{Fields: propertyFields(), Confidence: 0.8}, nil
	}}
	svc, dir := newTestService(t, primary, returns(BackendSecondary, 0.1, nil))

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := svc.Process(context.Background(), pdfUpload("propiedad"), PreferenceAuto)
			if !out.OK() {
				t.Errorf("expected success, got %+v", out)
				return
			}
			ids <- out.DocumentID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate document id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d outcomes, got %d", n, len(seen))
	}
	assertNoTempFiles(t, svc, dir)
}

func TestConfigurationErrorShortCircuits(t *testing.T) {
	primary := returns(BackendPrimary, 0.9, nil)
	svc, _ := newTestService(t, primary, nil)
	svc.ConfigErr = errors.New("missing GOOGLE_CLOUD_PROJECT")

	out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindConfiguration {
		t.Fatalf("expected configuration failure, got %+v", out)
	}
	if primary.calls.Load() != 0 {
		t.Fatalf("backend must not run without valid configuration")
	}
}

func TestOutcomesAreRecordedInHistory(t *testing.T) {
	svc, _ := newTestService(t, returns(BackendPrimary, 0.92, propertyFields()), nil)
	repo := svc.History.(*history.MemoryRepo)

	svc.Process(context.Background(), pdfUpload("gravamen"), PreferenceAuto)
	svc.Process(context.Background(), documents.Upload{Filename: "x.txt", Body: strings.NewReader("x")}, PreferenceAuto)

	recs, err := repo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(recs))
	}
	if recs[0].Status != history.StatusFailed || recs[0].ErrorKind != string(KindInvalidInput) || recs[0].Confidence != nil {
		t.Fatalf("unexpected failure record: %+v", recs[0])
	}
	if recs[1].Status != history.StatusSucceeded || recs[1].DocumentType != "lien" || recs[1].Checksum == "" {
		t.Fatalf("unexpected success record: %+v", recs[1])
	}
}

func TestZeroOutcomeIsInternalFailure(t *testing.T) {
	var out Outcome
	fail, ok := out.Failure()
	if !ok || fail.Kind != KindInternal {
		t.Fatalf("expected internal failure for zero outcome")
	}
	if _, ok := out.Success(); ok {
		t.Fatalf("zero outcome must not be a success")
	}
	if s, _ := Succeeded(Success{Confidence: 3}).Success(); s.Confidence != 1 {
		t.Fatalf("expected clamped confidence, got %v", s.Confidence)
	}
}

func TestThresholdZeroAcceptsAnyCalibratedPrimary(t *testing.T) {
	primary := returns(BackendPrimary, 0.2, nil)
	secondary := returns(BackendSecondary, 0.9, nil)
	svc, _ := newTestService(t, primary, secondary)
	svc.Threshold = 0

	out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	succ, ok := out.Success()
	if !ok || succ.Backend != BackendPrimary || succ.Confidence != 0.2 {
		t.Fatalf("expected primary result at threshold 0, got %+v", out)
	}
	if len(out.Attempts) != 1 || secondary.calls.Load() != 0 {
		t.Fatalf("secondary must not run at threshold 0, attempts=%d", len(out.Attempts))
	}

	svc.Primary = returns(BackendPrimary, UncalibratedConfidence, nil)
	out = svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	if succ, ok := out.Success(); !ok || succ.Backend != BackendSecondary {
		t.Fatalf("uncalibrated primary must still fall back at threshold 0, got %+v", out)
	}
}

func TestThresholdOutOfRangeUsesDefault(t *testing.T) {
	primary := returns(BackendPrimary, 0.4, nil)
	secondary := returns(BackendSecondary, 0.9, nil)
	svc, _ := newTestService(t, primary, secondary)
	svc.Threshold = 1.5

	out := svc.Process(context.Background(), pdfUpload(""), PreferenceAuto)
	if succ, ok := out.Success(); !ok || succ.Backend != BackendSecondary {
		t.Fatalf("expected fallback under the default threshold, got %+v", out)
	}
}
