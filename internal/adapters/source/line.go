package source

import (
	"strings"

	json "github.com/goccy/go-json"
)

// DefaultLevel is used for lines that do not carry a level.
const DefaultLevel = "info"

// ParseLine turns one input line into a log call. A JSON object becomes
// fields, with "level" and "message" (or "msg") lifted out; anything else
// is the message itself.
func ParseLine(line string) (level, message string, fields map[string]any) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return DefaultLevel, line, nil
	}

	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return DefaultLevel, line, nil
	}

	level = DefaultLevel
	if v, ok := fields["level"].(string); ok && v != "" {
		level = v
		delete(fields, "level")
	}
	for _, key := range []string{"message", "msg"} {
		if v, ok := fields[key].(string); ok {
			message = v
			delete(fields, key)
			break
		}
	}
	return level, message, fields
}
