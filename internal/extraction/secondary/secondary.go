// Package secondary implements the fallback backend: catalog patterns
// matched against the PDF text layer.
package secondary

import (
	"context"
	"errors"
	"fmt"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/extraction"
	"catastro-backend/internal/extraction/catalog"
	"catastro-backend/internal/pdftext"
)

// ErrNoFields is returned when no catalog field matches the document text.
var ErrNoFields = errors.New("secondary: no catalog field found in document text")

// TextFunc extracts plain text from PDF bytes.
type TextFunc func(ctx context.Context, data []byte) (string, error)

// Backend extracts fields with the catalog's regular expressions.
type Backend struct {
	Catalog *catalog.Catalog
	Name    string
	Text    TextFunc
}

// New constructs a pattern backend.
func New(cat *catalog.Catalog, model string) *Backend {
	return &Backend{Catalog: cat, Name: model, Text: pdftext.Extract}
}

func (b *Backend) Kind() extraction.BackendKind { return extraction.BackendSecondary }

func (b *Backend) Model() string { return b.Name }

// Extract reads the document text and matches every catalog field.
// Confidence is the share of catalog fields found.
func (b *Backend) Extract(ctx context.Context, doc *documents.Document) (extraction.Result, error) {
	data, err := doc.ReadAll(ctx)
	if err != nil {
		return extraction.Result{}, fmt.Errorf("read document: %w", err)
	}
	text, err := b.Text(ctx, data)
	if err != nil {
		return extraction.Result{}, fmt.Errorf("pdf text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return extraction.Result{}, err
	}

	defs := b.Catalog.Fields(doc.Type)
	if len(defs) == 0 {
		return extraction.Result{}, fmt.Errorf("no catalog fields for %s", doc.Type)
	}
	var fields extraction.Fields
	for _, def := range defs {
		if value, ok := def.Match(text); ok {
			fields.Set(def.Name, value)
		}
	}
	if len(fields) == 0 {
		return extraction.Result{}, ErrNoFields
	}
	return extraction.Result{
		Fields:     fields,
		Confidence: float64(len(fields)) / float64(len(defs)),
	}, nil
}

var _ extraction.Backend = (*Backend)(nil)
