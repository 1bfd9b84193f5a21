package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"catastro-backend/internal/documents"
)

//go:embed fields.yaml
var defaultFields []byte

// Field describes one value extracted from a registry document.
type Field struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Patterns    []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Match returns the first pattern capture found in text.
func (f Field) Match(text string) (string, bool) {
	for _, re := range f.compiled {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Catalog holds the ordered field list for every document type.
type Catalog struct {
	types map[documents.Type][]Field
}

type fileFormat struct {
	Types map[string][]Field `yaml:"types"`
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultFields
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read field catalog: %w", err)
		}
		raw = data
	}
	return Parse(raw)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultFields)
	if err != nil {
		panic(fmt.Sprintf("embedded field catalog: %v", err))
	}
	return c
}

// Parse decodes and compiles a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("decode field catalog: %w", err)
	}
	c := &Catalog{types: make(map[documents.Type][]Field, len(ff.Types))}
	for rawType, fields := range ff.Types {
		docType, err := documents.ParseType(rawType)
		if err != nil {
			return nil, fmt.Errorf("field catalog: unknown document type %q", rawType)
		}
		seen := make(map[string]bool, len(fields))
		for i := range fields {
			name := strings.TrimSpace(fields[i].Name)
			if name == "" {
				return nil, fmt.Errorf("field catalog: %s field %d has no name", docType, i)
			}
			if seen[name] {
				return nil, fmt.Errorf("field catalog: duplicate field %s.%s", docType, name)
			}
			seen[name] = true
			fields[i].Name = name
			for _, p := range fields[i].Patterns {
				re, err := regexp.Compile(p)
				if err != nil {
					return nil, fmt.Errorf("field catalog: %s.%s: %w", docType, name, err)
				}
				fields[i].compiled = append(fields[i].compiled, re)
			}
		}
		c.types[docType] = fields
	}
	for _, t := range []documents.Type{documents.TypeProperty, documents.TypeLien} {
		if len(c.types[t]) == 0 {
			return nil, fmt.Errorf("field catalog: no fields for %s", t)
		}
	}
	return c, nil
}

// Fields returns the ordered fields for a document type.
func (c *Catalog) Fields(t documents.Type) []Field {
	return c.types[t]
}

// Names returns the ordered field names for a document type.
func (c *Catalog) Names(t documents.Type) []string {
	fields := c.types[t]
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
