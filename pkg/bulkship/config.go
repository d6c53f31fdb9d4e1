package bulkship

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/bulkship/internal/app"
	"github.com/bft-labs/bulkship/internal/diskqueue"
	"github.com/bft-labs/bulkship/internal/domain"
)

// DefaultURL is the bulk receiver used when no URL is configured.
const DefaultURL = "https://logsene-receiver.sematext.com/_bulk"

// DefaultHTTPTimeout bounds a single bulk request.
const DefaultHTTPTimeout = 30 * time.Second

const bulkPath = "/_bulk"

// Config holds the configuration of a Shipper.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Token identifies the destination index. Required.
	Token string
	// Type is the default document type.
	Type string
	// URL of the receiver. A URL without the bulk path gets "/_bulk".
	URL string
	// UseIndexInBulkURL posts to "/{token}/_bulk" instead of "/_bulk".
	UseIndexInBulkURL bool

	// StorageDir is the parent of the disk buffer. Each URL and token pair
	// gets its own subdirectory.
	StorageDir string

	BulkSize           int
	MaxBatchBytes      int
	FlushInterval      time.Duration
	RetransmitInterval time.Duration
	MaxStoredRequests  int

	HTTPTimeout time.Duration
	Gzip        bool
	// Headers are added to every bulk request.
	Headers map[string]string
}

// DefaultConfig returns a Config with default values. Token must still be set.
func DefaultConfig() Config {
	return Config{
		URL:                DefaultURL,
		StorageDir:         filepath.Join(os.TempDir(), "bulkship"),
		BulkSize:           app.DefaultBulkSize,
		MaxBatchBytes:      app.DefaultMaxBatchBytes,
		FlushInterval:      app.DefaultFlushInterval,
		RetransmitInterval: diskqueue.DefaultRetransmitInterval,
		MaxStoredRequests:  diskqueue.DefaultMaxStoredRequests,
		HTTPTimeout:        DefaultHTTPTimeout,
	}
}

// SetDefaults fills zero values and clamps numeric settings into range.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(os.TempDir(), "bulkship")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}

	bc := c.batcherConfig()
	bc.SetDefaults()
	c.BulkSize, c.MaxBatchBytes, c.FlushInterval = bc.BulkSize, bc.MaxBatchBytes, bc.FlushInterval

	qc := diskqueue.Config{
		MaxStoredRequests:  c.MaxStoredRequests,
		RetransmitInterval: c.RetransmitInterval,
	}
	qc.SetDefaults()
	c.MaxStoredRequests, c.RetransmitInterval = qc.MaxStoredRequests, qc.RetransmitInterval
}

// Validate checks the configuration. A missing token fails with
// ErrMissingToken.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return domain.ErrMissingToken
	}
	if _, err := c.BulkURL(); err != nil {
		return err
	}
	return nil
}

// BulkURL returns the normalized bulk endpoint.
func (c *Config) BulkURL() (string, error) {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		raw = DefaultURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: url %q", domain.ErrInvalidConfig, c.URL)
	}

	p := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(p, bulkPath) {
		p += bulkPath
	}
	if c.UseIndexInBulkURL {
		base := strings.TrimSuffix(p, bulkPath)
		p = base + "/" + url.PathEscape(c.Token) + bulkPath
	}
	u.Path = p
	return u.String(), nil
}

// QueueDir returns the disk buffer directory for this destination.
func (c *Config) QueueDir() string {
	bulk, err := c.BulkURL()
	if err != nil {
		bulk = c.URL
	}
	sum := sha1.Sum([]byte(bulk + "\x00" + c.Token))
	return filepath.Join(c.StorageDir, hex.EncodeToString(sum[:8]))
}

func (c *Config) batcherConfig() app.BatcherConfig {
	return app.BatcherConfig{
		BulkSize:      c.BulkSize,
		MaxBatchBytes: c.MaxBatchBytes,
		FlushInterval: c.FlushInterval,
	}
}
