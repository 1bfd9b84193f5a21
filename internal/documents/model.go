package documents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"catastro-backend/internal/shared/storage/scratch"
)

// Type identifies the kind of registry document being extracted.
type Type string

const (
	TypeProperty Type = "property"
	TypeLien     Type = "lien"
)

// ParseType maps the wire selector to a Type. An empty selector means a
// property record, matching the historical default of the upload form.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "propiedad", "property", "property-record", "property_record":
		return TypeProperty, nil
	case "gravamen", "lien", "lien-record", "lien_record":
		return TypeLien, nil
	default:
		return "", &InvalidInputError{Reason: ReasonUnsupportedDocumentType}
	}
}

// Label returns the Spanish registry name of the type.
func (t Type) Label() string {
	switch t {
	case TypeLien:
		return "gravamen"
	default:
		return "propiedad"
	}
}

// Document is an accepted upload backed by a scoped temporary file.
// It is owned by one request and must be released exactly once.
type Document struct {
	ID           string
	OriginalName string
	Type         Type
	SizeBytes    int64
	Checksum     string
	ReceivedAt   time.Time

	file *scratch.File
}

// Path returns the location of the temporary file.
func (d *Document) Path() string {
	if d == nil || d.file == nil {
		return ""
	}
	return d.file.Path()
}

// ReadAll returns the document content.
func (d *Document) ReadAll(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d == nil || d.file == nil {
		return nil, fmt.Errorf("document has no content")
	}
	rc, err := d.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", d.ID, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Release deletes the temporary file. Safe to call repeatedly.
func (d *Document) Release() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Release()
}
