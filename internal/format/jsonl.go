package format

import (
	"encoding/json"
	"io"
)

// JSONLFormatter renders an Envelope as a single line of JSON, for machine
// consumption or for appending to a log file.
type JSONLFormatter struct {
	// Pretty enables indented JSON (not recommended for JSONL).
	Pretty bool
}

// NewJSONLFormatter creates a new JSONL formatter.
func NewJSONLFormatter() *JSONLFormatter {
	return &JSONLFormatter{Pretty: false}
}

// Format writes env as one JSON line.
func (jf *JSONLFormatter) Format(w io.Writer, env Envelope) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if jf.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(env)
}

// Extension returns the file extension for JSONL.
func (jf *JSONLFormatter) Extension() string {
	return ".jsonl"
}
