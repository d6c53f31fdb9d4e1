package encoder

import (
	"unicode/utf8"

	"github.com/bft-labs/bulkship/internal/ports"
)

// Chain applies sanitizers in order.
func Chain(s ...ports.Sanitizer) ports.Sanitizer {
	return ports.SanitizerFunc(func(doc map[string]any) map[string]any {
		for _, san := range s {
			doc = san.Sanitize(doc)
		}
		return doc
	})
}

// DropFields removes the given keys.
func DropFields(keys ...string) ports.Sanitizer {
	return ports.SanitizerFunc(func(doc map[string]any) map[string]any {
		for _, k := range keys {
			delete(doc, k)
		}
		return doc
	})
}

// TruncateField caps a string field at max bytes without splitting a rune.
func TruncateField(key string, max int) ports.Sanitizer {
	return ports.SanitizerFunc(func(doc map[string]any) map[string]any {
		s, ok := doc[key].(string)
		if !ok || len(s) <= max {
			return doc
		}
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		doc[key] = s[:cut]
		return doc
	})
}
