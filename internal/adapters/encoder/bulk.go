package encoder

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

// DefaultType is the document type used when none is configured.
const DefaultType = "log"

// Reserved fields steer the action line and are removed from the document.
const (
	fieldIndex = "_index"
	fieldType  = "_type"
	fieldID    = "_id"
)

// Config configures a Bulk encoder. Zero values are filled from the
// environment: the hostname, the first non-loopback IPv4 address and the
// executable name.
type Config struct {
	Index     string
	Type      string
	Host      string
	IP        string
	Source    string
	Sanitizer ports.Sanitizer
}

// Bulk encodes log calls as bulk API index entries.
type Bulk struct {
	cfg Config
	now func() time.Time
}

// NewBulk creates a bulk encoder.
func NewBulk(cfg Config) *Bulk {
	if cfg.Type == "" {
		cfg.Type = DefaultType
	}
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	if cfg.IP == "" {
		cfg.IP = localIP()
	}
	if cfg.Source == "" && len(os.Args) > 0 {
		cfg.Source = filepath.Base(os.Args[0])
	}
	return &Bulk{cfg: cfg, now: time.Now}
}

type actionMeta struct {
	Index string `json:"_index"`
	Type  string `json:"_type,omitempty"`
	ID    string `json:"_id,omitempty"`
}

type action struct {
	Index actionMeta `json:"index"`
}

// Encode builds the action and document lines for one log call. Caller
// fields override the defaults.
func (b *Bulk) Encode(level, message string, fields map[string]any) (domain.Record, error) {
	doc := map[string]any{
		"@timestamp": b.now().UTC().Format(time.RFC3339Nano),
		"level":      level,
		"severity":   level,
		"host":       b.cfg.Host,
		"ip":         b.cfg.IP,
		"message":    message,
	}
	if b.cfg.Source != "" {
		doc["@source"] = b.cfg.Source
	}
	for k, v := range fields {
		doc[k] = v
	}

	meta := actionMeta{
		Index: b.cfg.Index,
		Type:  b.cfg.Type,
	}
	if v, ok := take(doc, fieldIndex); ok {
		meta.Index = v
	}
	if v, ok := take(doc, fieldType); ok {
		meta.Type = v
	}
	if v, ok := take(doc, fieldID); ok {
		meta.ID = v
	}

	if b.cfg.Sanitizer != nil {
		doc = b.cfg.Sanitizer.Sanitize(doc)
	}

	actionLine, err := json.Marshal(action{Index: meta})
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode action: %w", err)
	}
	docLine, err := json.Marshal(doc)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode document: %w", err)
	}
	return domain.NewRecord(actionLine, docLine), nil
}

// take removes key from doc and returns it as a string. Empty values are
// removed but not reported.
func take(doc map[string]any, key string) (string, bool) {
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	delete(doc, key)
	if v == nil {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
