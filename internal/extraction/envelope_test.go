package extraction

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"catastro-backend/internal/documents"
)

func TestSuccessEnvelope(t *testing.T) {
	out := Succeeded(Success{Fields: propertyFields(), Confidence: 0.92, Backend: BackendPrimary})
	out.DocumentID = "doc-1"
	out.DocumentType = string(documents.TypeProperty)
	out.ProcessingTime = 1234567 * time.Microsecond

	env := NewEnvelope(out, language.Spanish)
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`"success":true`,
		`"data":{"folio":"12345-2024","propietario":"María González Rodríguez"}`,
		`"confidence":0.92`,
		`"backend_used":"primary"`,
		`"processing_time":1.235`,
		`"message":"Documento de propiedad procesado exitosamente"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Fatalf("success envelope must not carry error: %s", body)
	}
	if HTTPStatus(out) != http.StatusOK {
		t.Fatalf("expected 200")
	}
}

func TestFailureEnvelopeHidesInternals(t *testing.T) {
	out := Failed(Failure{Kind: KindBackendExecution, Message: "goroutine 1 [running]: main.go:42 secret-token"})
	env := NewEnvelope(out, language.English)
	raw, _ := json.Marshal(env)
	body := string(raw)

	if strings.Contains(body, "goroutine") || strings.Contains(body, "secret-token") {
		t.Fatalf("internal error text leaked: %s", body)
	}
	if strings.Contains(body, `"confidence"`) || strings.Contains(body, `"data"`) {
		t.Fatalf("failure envelope must not carry confidence or data: %s", body)
	}
	if !strings.Contains(body, `"processing_time":0`) {
		t.Fatalf("processing_time must always be present: %s", body)
	}
	if env.Message != "The document information could not be extracted" || env.Error != "backend_execution" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if HTTPStatus(out) != http.StatusOK {
		t.Fatalf("backend exhaustion is reported with 200")
	}
}

func TestHTTPStatusByKind(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
		{KindBackendTimeout, http.StatusOK},
		{KindCanceled, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := HTTPStatus(Failed(Failure{Kind: tt.kind})); got != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.Spanish},
		{"en-US,en;q=0.9", language.English},
		{"es-MX", language.Spanish},
		{"fr-FR", language.Spanish},
		{"fr;q=0.9, en;q=0.5", language.English},
		{"%%%", language.Spanish},
	}
	for _, tt := range tests {
		if got := MatchLanguage(tt.header); got != tt.want {
			t.Fatalf("MatchLanguage(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestInvalidInputMessages(t *testing.T) {
	out := Failed(Failure{Kind: KindInvalidInput, Reason: documents.ReasonUnsupportedFormat})
	if msg := NewEnvelope(out, language.Spanish).Message; !strings.Contains(msg, "PDF") {
		t.Fatalf("expected format message, got %q", msg)
	}
	out = Failed(Failure{Kind: KindInvalidInput, Reason: "something_new"})
	if msg := NewEnvelope(out, language.English).Message; msg != "Invalid request" {
		t.Fatalf("expected generic message, got %q", msg)
	}
}
