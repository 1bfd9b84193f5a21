package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	w := NewChecksumWriter()
	_, _ = w.Write(data)
	return w.Sum()
}

// ChecksumWriter accumulates a SHA-256 over everything written to it.
type ChecksumWriter struct {
	h hash.Hash
}

// NewChecksumWriter returns an empty ChecksumWriter.
func NewChecksumWriter() *ChecksumWriter {
	return &ChecksumWriter{h: sha256.New()}
}

func (w *ChecksumWriter) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the hex-encoded digest of the bytes written so far.
func (w *ChecksumWriter) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}
