package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly strings for durations and
// byte sizes.
type FileConfig struct {
	Token              string `toml:"token"`
	URL                string `toml:"url"`
	Type               string `toml:"type"`
	UseIndexInBulkURL  *bool  `toml:"use_index_in_bulk_url"`
	StorageDir         string `toml:"storage_dir"`
	StateDir           string `toml:"state_dir"`
	BulkSize           int    `toml:"bulk_size"`
	MaxBatchBytes      string `toml:"max_batch_bytes"`
	FlushInterval      string `toml:"flush_interval"`
	RetransmitInterval string `toml:"retransmit_interval"`
	MaxStoredRequests  int    `toml:"max_stored_requests"`
	HTTPTimeout        string `toml:"http_timeout"`
	Gzip               *bool  `toml:"gzip"`
	File               string `toml:"file"`
	LogLevel           string `toml:"log_level"`
	Debug              *bool  `toml:"debug"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.bulkship/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bulkship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("token", fc.Token, &cfg.Token)
	s.setString("url", fc.URL, &cfg.URL)
	s.setString("type", fc.Type, &cfg.Type)
	s.setString("storage-dir", fc.StorageDir, &cfg.StorageDir)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("file", fc.File, &cfg.File)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("bulk-size", fc.BulkSize, &cfg.BulkSize)
	s.setInt("max-stored-requests", fc.MaxStoredRequests, &cfg.MaxStoredRequests)

	if err := s.setSize("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes); err != nil {
		return err
	}
	if err := s.setDuration("flush-interval", fc.FlushInterval, &cfg.FlushInterval); err != nil {
		return err
	}
	if err := s.setDuration("retransmit-interval", fc.RetransmitInterval, &cfg.RetransmitInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setBool("use-index-in-url", fc.UseIndexInBulkURL, &cfg.UseIndexInBulkURL)
	s.setBool("gzip", fc.Gzip, &cfg.Gzip)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
