package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the résumé as an opaque JSON object. The original bytes are
// kept so key order survives into the prompt.
type Document struct {
	raw  json.RawMessage
	keys int
}

var errNotObject = errors.New("profile document must be a JSON object")

// ParseDocument validates data as a JSON object and wraps it.
func ParseDocument(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Document{}, errNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Document{}, fmt.Errorf("parsing profile JSON: %w", err)
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Document{raw: raw, keys: len(fields)}, nil
}

// Empty reports whether the document has no top-level keys.
func (d Document) Empty() bool { return d.keys == 0 }

// Len returns the number of top-level keys.
func (d Document) Len() int { return d.keys }

// Indented renders the document with two-space indentation.
func (d Document) Indented() string {
	if len(d.raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.raw, "", "  "); err != nil {
		// raw was validated by ParseDocument
		return string(d.raw)
	}
	return buf.String()
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d.raw) == 0 {
		return []byte("{}"), nil
	}
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out, nil
}

// Equal reports whether two documents hold the same bytes.
func (d Document) Equal(other Document) bool {
	return bytes.Equal(d.raw, other.raw)
}
