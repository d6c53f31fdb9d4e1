package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bft-labs/bulkship/pkg/bulkship"
)

// Config holds CLI configuration for bulkship.
type Config struct {
	Token             string
	URL               string
	Type              string
	UseIndexInBulkURL bool

	StorageDir string
	StateDir   string

	BulkSize           int
	MaxBatchBytes      int
	FlushInterval      time.Duration
	RetransmitInterval time.Duration
	MaxStoredRequests  int
	HTTPTimeout        time.Duration
	Gzip               bool

	// File is followed instead of reading stdin when set.
	File string

	LogLevel string
	Debug    bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	lib := bulkship.DefaultConfig()
	return Config{
		URL:                lib.URL,
		StorageDir:         lib.StorageDir,
		BulkSize:           lib.BulkSize,
		MaxBatchBytes:      lib.MaxBatchBytes,
		FlushInterval:      lib.FlushInterval,
		RetransmitInterval: lib.RetransmitInterval,
		MaxStoredRequests:  lib.MaxStoredRequests,
		HTTPTimeout:        lib.HTTPTimeout,
		LogLevel:           "info",
	}
}

// Validate checks the configuration, clamps numeric settings and sets
// derived defaults.
func (c *Config) Validate() error {
	lib := c.Library()
	lib.SetDefaults()
	if err := lib.Validate(); err != nil {
		return err
	}

	c.URL = lib.URL
	c.StorageDir = lib.StorageDir
	c.BulkSize = lib.BulkSize
	c.MaxBatchBytes = lib.MaxBatchBytes
	c.FlushInterval = lib.FlushInterval
	c.RetransmitInterval = lib.RetransmitInterval
	c.MaxStoredRequests = lib.MaxStoredRequests
	c.HTTPTimeout = lib.HTTPTimeout

	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.StorageDir, "state")
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
	return nil
}

// Library converts the CLI configuration to the library configuration.
func (c *Config) Library() bulkship.Config {
	return bulkship.Config{
		Token:              c.Token,
		Type:               c.Type,
		URL:                c.URL,
		UseIndexInBulkURL:  c.UseIndexInBulkURL,
		StorageDir:         c.StorageDir,
		BulkSize:           c.BulkSize,
		MaxBatchBytes:      c.MaxBatchBytes,
		FlushInterval:      c.FlushInterval,
		RetransmitInterval: c.RetransmitInterval,
		MaxStoredRequests:  c.MaxStoredRequests,
		HTTPTimeout:        c.HTTPTimeout,
		Gzip:               c.Gzip,
	}
}

// ParseSize parses a byte size such as "10MB", "512KiB" or "1048576".
func ParseSize(s string) (int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > uint64(^uint(0)>>1) {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int(n), nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setMillis accepts a duration string or a bare number of milliseconds.
func (s *configSetter) setMillis(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
		return nil
	}
	return s.setDuration(flag, value, dst)
}

// setSize parses a human-readable byte size.
func (s *configSetter) setSize(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	n, err := ParseSize(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if n > 0 {
		*dst = n
	}
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if positive.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// firstEnv returns the first non-empty environment variable of names.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
