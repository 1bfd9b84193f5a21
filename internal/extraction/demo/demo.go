// Package demo provides a backend that returns fixed registry records after
// a configurable delay. It lets the service run without model credentials.
package demo

import (
	"context"
	"time"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/extraction"
)

const (
	DefaultDelay = 2 * time.Second
	Confidence   = 0.92
)

// Backend is a fixed-output extraction backend.
type Backend struct {
	Variant extraction.BackendKind
	Name    string
	Delay   time.Duration
}

// New constructs a demo backend of the given kind.
func New(kind extraction.BackendKind, model string, delay time.Duration) *Backend {
	return &Backend{Variant: kind, Name: model, Delay: delay}
}

func (b *Backend) Kind() extraction.BackendKind { return b.Variant }

func (b *Backend) Model() string { return b.Name }

// Extract waits for Delay and returns the record for the document type.
func (b *Backend) Extract(ctx context.Context, doc *documents.Document) (extraction.Result, error) {
	if b.Delay > 0 {
		timer := time.NewTimer(b.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return extraction.Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return extraction.Result{}, err
	}
	return extraction.Result{Fields: Record(doc.Type), Confidence: Confidence}, nil
}

// Record returns the sample record for a document type.
func Record(t documents.Type) extraction.Fields {
	var f extraction.Fields
	if t == documents.TypeLien {
		f.Set("folio_gravamen", "GRV-78901-2024")
		f.Set("tipo_gravamen", "Hipoteca")
		f.Set("monto", "$1,500,000 MXN")
		f.Set("acreedor", "Banco Nacional de México")
		f.Set("deudor", "Juan Pérez López")
		f.Set("fecha_constitucion", "2024-08-15")
		f.Set("plazo", "20 años")
		f.Set("tasa_interes", "8.5% anual")
		return f
	}
	f.Set("folio", "12345-2024")
	f.Set("propietario", "María González Rodríguez")
	f.Set("direccion", "Av. Reforma 123, Col. Centro, CDMX")
	f.Set("superficie", "250.5 m²")
	f.Set("valor_catastral", "$2,450,000 MXN")
	f.Set("clave_catastral", "015-234-567")
	f.Set("uso_suelo", "Habitacional")
	f.Set("fecha_registro", "2024-08-15")
	return f
}

var _ extraction.Backend = (*Backend)(nil)
