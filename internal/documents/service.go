package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"catastro-backend/internal/shared/storage/scratch"
	"catastro-backend/internal/shared/util"
)

// DefaultMaxBytes is the upload ceiling when none is configured.
const DefaultMaxBytes int64 = 25 << 20

var pdfSignature = []byte("%PDF-")

// Upload is a raw file handed over by the transport layer.
type Upload struct {
	Filename     string
	DeclaredType string
	Body         io.Reader
}

// Service validates uploads and stores them in scoped temporary files.
type Service struct {
	Store    *scratch.Store
	MaxBytes int64
	Now      func() time.Time
}

// Accept validates the upload and persists it to a fresh temporary file.
// Validation failures are *InvalidInputError; in that case nothing is left on disk.
func (s *Service) Accept(ctx context.Context, up Upload) (*Document, error) {
	if s.Store == nil {
		return nil, errors.New("documents: scratch store not configured")
	}
	if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
		return nil, &InvalidInputError{Reason: ReasonMissingFile}
	}
	docType, err := ParseType(up.DeclaredType)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(strings.TrimSpace(up.Filename)), ".pdf") {
		return nil, &InvalidInputError{Reason: ReasonUnsupportedFormat}
	}

	var sniff [5]byte
	n, readErr := io.ReadFull(up.Body, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read sniff: %w", readErr)
	}
	if n == 0 {
		return nil, &InvalidInputError{Reason: ReasonSizeLimit}
	}
	if !bytes.Equal(sniff[:n], pdfSignature) {
		return nil, &InvalidInputError{Reason: ReasonUnsupportedFormat}
	}

	maxBytes := s.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	sum := util.NewChecksumWriter()
	body := io.TeeReader(io.MultiReader(bytes.NewReader(sniff[:n]), up.Body), sum)
	file, err := s.Store.Acquire(ctx, body, maxBytes)
	if err != nil {
		if errors.Is(err, scratch.ErrLimitExceeded) {
			return nil, &InvalidInputError{Reason: ReasonSizeLimit}
		}
		return nil, fmt.Errorf("store upload: %w", err)
	}

	displayName, err := util.SanitizeFileName(up.Filename)
	if err != nil {
		displayName = "document.pdf"
	}

	return &Document{
		ID:           uuid.NewString(),
		OriginalName: displayName,
		Type:         docType,
		SizeBytes:    file.Size(),
		Checksum:     sum.Sum(),
		ReceivedAt:   s.now(),
		file:         file,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
