package history

import "time"

// Status is the terminal state of one extraction request.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record is the audit trail of one extraction. Extracted field values are
// never stored; only metadata about the request and its outcome.
type Record struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	DocumentType   string        `json:"document_type"`
	FileName       string        `json:"file_name"`
	SizeBytes      int64         `json:"size_bytes"`
	Checksum       string        `json:"checksum"`
	Status         Status        `json:"status"`
	BackendUsed    string        `json:"backend_used,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Confidence     *float64      `json:"confidence,omitempty"`
	Attempts       int           `json:"attempts"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	CreatedAt      time.Time     `json:"created_at"`
}
