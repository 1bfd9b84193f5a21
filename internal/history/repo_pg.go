package history

import (
	"context"
	"database/sql"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Append inserts a record.
func (r *PGRepo) Append(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO extraction_history (
    id,
    document_id,
    document_type,
    file_name,
    size_bytes,
    checksum,
    status,
    backend_used,
    error_kind,
    confidence,
    attempts,
    processing_ms,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.DocumentID,
		rec.DocumentType,
		rec.FileName,
		rec.SizeBytes,
		rec.Checksum,
		string(rec.Status),
		nullString(rec.BackendUsed),
		nullString(rec.ErrorKind),
		confidence,
		rec.Attempts,
		rec.ProcessingTime.Milliseconds(),
		rec.CreatedAt,
	)
	return err
}

// ListRecent returns up to limit records, newest first.
func (r *PGRepo) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	const query = `
SELECT id, document_id, document_type, file_name, size_bytes, checksum, status, backend_used, error_kind, confidence, attempts, processing_ms, created_at
FROM extraction_history
ORDER BY created_at DESC
LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		var status string
		var backendUsed sql.NullString
		var errorKind sql.NullString
		var confidence sql.NullFloat64
		var processingMS int64
		if err := rows.Scan(
			&rec.ID,
			&rec.DocumentID,
			&rec.DocumentType,
			&rec.FileName,
			&rec.SizeBytes,
			&rec.Checksum,
			&status,
			&backendUsed,
			&errorKind,
			&confidence,
			&rec.Attempts,
			&processingMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		if backendUsed.Valid {
			rec.BackendUsed = backendUsed.String
		}
		if errorKind.Valid {
			rec.ErrorKind = errorKind.String
		}
		if confidence.Valid {
			c := confidence.Float64
			rec.Confidence = &c
		}
		rec.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
