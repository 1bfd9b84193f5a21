package documents

import "fmt"

// Reasons reported by InvalidInputError.
const (
	ReasonMissingFile             = "missing_file"
	ReasonUnsupportedFormat       = "unsupported_format"
	ReasonSizeLimit               = "size_limit"
	ReasonUnsupportedDocumentType = "unsupported_document_type"
	ReasonUnsupportedPreference   = "unsupported_backend_preference"
)

// InvalidInputError is a client fault detected during intake. It is never retried.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}
