package extraction

import (
	"strings"

	"catastro-backend/internal/documents"
)

// Preference selects which backends a request may use.
type Preference string

const (
	PreferenceAuto        Preference = "auto"
	PreferencePrimaryOnly Preference = "primary_only"
)

// ParsePreference maps the wire value to a Preference; empty means auto.
func ParsePreference(raw string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return PreferenceAuto, nil
	case "primary_only", "primary-only", "primary":
		return PreferencePrimaryOnly, nil
	default:
		return "", &documents.InvalidInputError{Reason: documents.ReasonUnsupportedPreference}
	}
}

// Request is one accepted document queued for extraction. The document
// type is read from Document.Type.
type Request struct {
	Document   *documents.Document
	Preference Preference
}
