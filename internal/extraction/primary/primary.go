// Package primary implements the model-backed extraction backend. It sends
// the PDF text to an OpenAI-compatible chat-completions endpoint (Vertex AI
// or the Gemini API) and validates the JSON reply against the field catalog.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/extraction"
	"catastro-backend/internal/extraction/catalog"
	"catastro-backend/internal/pdftext"
	"catastro-backend/internal/shared/telemetry"
)

// Config configures the primary backend.
type Config struct {
	Endpoint string
	Model    string
	// APIKey is sent as a bearer token. When empty, TokenSource is used, or
	// application-default credentials when TokenSource is nil.
	APIKey      string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
}

// Backend extracts fields with a remote language model.
type Backend struct {
	catalog *catalog.Catalog
	client  *chatClient
	schemas map[documents.Type]*jsonschema.Schema

	// Text extracts plain text from PDF bytes.
	Text func(ctx context.Context, data []byte) (string, error)
}

// New constructs the backend and compiles one reply schema per document type.
func New(cat *catalog.Catalog, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("primary endpoint is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("primary model is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	schemas := make(map[documents.Type]*jsonschema.Schema, 2)
	for _, t := range []documents.Type{documents.TypeProperty, documents.TypeLien} {
		schema, err := compileSchema(string(t), responseSchema(cat.Fields(t)))
		if err != nil {
			return nil, fmt.Errorf("%s reply schema: %w", t, err)
		}
		schemas[t] = schema
	}

	return &Backend{
		catalog: cat,
		client: &chatClient{
			endpoint:    cfg.Endpoint,
			model:       cfg.Model,
			apiKey:      strings.TrimSpace(cfg.APIKey),
			httpClient:  httpClient,
			tokenSource: cfg.TokenSource,
		},
		schemas: schemas,
		Text:    pdftext.Extract,
	}, nil
}

func (b *Backend) Kind() extraction.BackendKind { return extraction.BackendPrimary }

func (b *Backend) Model() string { return b.client.model }

// Extract sends the document text to the model. The confidence is the
// model's own estimate scaled by the share of catalog fields it filled;
// without an estimate the result is uncalibrated.
func (b *Backend) Extract(ctx context.Context, doc *documents.Document) (extraction.Result, error) {
	data, err := doc.ReadAll(ctx)
	if err != nil {
		return extraction.Result{}, fmt.Errorf("read document: %w", err)
	}
	text, err := b.Text(ctx, data)
	if err != nil {
		return extraction.Result{}, fmt.Errorf("pdf text: %w", err)
	}

	defs := b.catalog.Fields(doc.Type)
	if len(defs) == 0 {
		return extraction.Result{}, fmt.Errorf("no catalog fields for %s", doc.Type)
	}
	messages := buildMessages(doc.Type, defs, text)

	start := time.Now()
	content, err := b.client.complete(ctx, messages)
	if err != nil {
		return extraction.Result{}, err
	}
	telemetry.Info("primary.reply", map[string]any{
		"document_id": doc.ID,
		"model":       b.client.model,
		"prompt_hash": promptHash(messages),
		"reply_bytes": len(content),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	if err := validateReply(b.schemas[doc.Type], content); err != nil {
		return extraction.Result{}, err
	}
	return parseReply(content, defs), nil
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(url)
}

func validateReply(schema *jsonschema.Schema, content []byte) error {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return fmt.Errorf("model reply is not json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("model reply does not match schema: %w", err)
	}
	return nil
}

// parseReply reads the fields in catalog order, dropping nulls and blanks.
func parseReply(content []byte, defs []catalog.Field) extraction.Result {
	values := make(map[string]string)
	gjson.GetBytes(content, "fields").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			values[key.String()] = strings.TrimSpace(value.String())
		}
		return true
	})
	var fields extraction.Fields
	for _, def := range defs {
		if s := values[def.Name]; s != "" {
			fields.Set(def.Name, s)
		}
	}

	conf := gjson.GetBytes(content, "confidence")
	if conf.Type != gjson.Number {
		return extraction.Result{Fields: fields, Confidence: extraction.UncalibratedConfidence}
	}
	coverage := float64(len(fields)) / float64(len(defs))
	return extraction.Result{Fields: fields, Confidence: conf.Float() * coverage}
}

var _ extraction.Backend = (*Backend)(nil)
