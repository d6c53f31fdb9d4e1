package ports

import "github.com/bft-labs/bulkship/internal/domain"

// Encoder turns one log call into a transport-ready bulk record.
type Encoder interface {
	Encode(level, message string, fields map[string]any) (domain.Record, error)
}

// Sanitizer rewrites a document before it is encoded, e.g. to rename
// reserved keys or cap oversized fields. It may modify doc in place.
type Sanitizer interface {
	Sanitize(doc map[string]any) map[string]any
}

// SanitizerFunc adapts a function to the Sanitizer interface.
type SanitizerFunc func(doc map[string]any) map[string]any

// Sanitize calls f(doc).
func (f SanitizerFunc) Sanitize(doc map[string]any) map[string]any {
	return f(doc)
}
