package primary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/extraction/catalog"
)

// maxDocumentChars bounds the document text sent to the model.
const maxDocumentChars = 60000

const systemPrompt = "You extract fields from Mexican public registry documents. " +
	"Respond with JSON only, no markdown. Use null for any field that is not present in the text; never guess. " +
	"Copy values exactly as written in the document."

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessages(docType documents.Type, fields []catalog.Field, text string) []message {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s (%s)\n\n", docType.Label(), docType)
	b.WriteString("Return an object with two keys:\n")
	b.WriteString("- \"fields\": an object with exactly these keys, in this order:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "  - %s: %s\n", f.Name, f.Description)
	}
	b.WriteString("- \"confidence\": a number between 0 and 1 estimating how reliable the extracted values are.\n\n")
	b.WriteString("Document text:\n<<<\n")
	b.WriteString(truncate(text, maxDocumentChars))
	b.WriteString("\n>>>")

	return []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// responseSchema describes the reply the model must produce for fields.
func responseSchema(fields []catalog.Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = map[string]any{"type": []any{"string", "null"}}
	}
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":       "object",
				"properties": props,
			},
			"confidence": map[string]any{
				"type":    []any{"number", "null"},
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required": []any{"fields"},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func promptHash(messages []message) string {
	h := sha256.New()
	for i, m := range messages {
		if i > 0 {
			h.Write([]byte("\n\n"))
		}
		h.Write([]byte(m.Role))
		h.Write([]byte(": "))
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
