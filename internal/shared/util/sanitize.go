package util

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

const maxDisplayNameLen = 200

// SanitizeFileName reduces a client-supplied name to a display-safe base name.
// The result is only used for logs and history, never as a storage path.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	if s == "." || s == "/" || s == ".." || s == "" {
		return "", errors.New("invalid file name")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", errors.New("invalid file name")
	}
	if len(s) > maxDisplayNameLen {
		s = s[len(s)-maxDisplayNameLen:]
	}
	return s, nil
}
