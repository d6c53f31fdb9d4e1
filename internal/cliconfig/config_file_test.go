package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Token:              "file-token",
				URL:                "http://es:9200",
				BulkSize:           200,
				MaxBatchBytes:      "2MiB",
				FlushInterval:      "5s",
				RetransmitInterval: "1m",
				MaxStoredRequests:  50,
				Gzip:               &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Token:              "file-token",
				URL:                "http://es:9200",
				BulkSize:           200,
				MaxBatchBytes:      2 << 20,
				FlushInterval:      5 * time.Second,
				RetransmitInterval: time.Minute,
				MaxStoredRequests:  50,
				Gzip:               true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Token:    "file-token",
				BulkSize: 200,
			},
			changed: map[string]bool{"token": true},
			initial: Config{Token: "flag-token"},
			expected: Config{
				Token:    "flag-token",
				BulkSize: 200,
			},
		},
		{
			name:       "ignores zero values",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{Token: "keep", BulkSize: 7},
			expected:   Config{Token: "keep", BulkSize: 7},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{FlushInterval: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name:       "invalid size",
			fileConfig: FileConfig{MaxBatchBytes: "huge"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
token = "abc"
url = "localhost:9200"
bulk_size = 500
max_batch_bytes = "4MB"
flush_interval = "2s"
gzip = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	if fc.Token != "abc" || fc.URL != "localhost:9200" || fc.BulkSize != 500 {
		t.Errorf("LoadFileConfig() = %+v", fc)
	}
	if fc.MaxBatchBytes != "4MB" || fc.FlushInterval != "2s" {
		t.Errorf("LoadFileConfig() = %+v", fc)
	}
	if fc.Gzip == nil || !*fc.Gzip {
		t.Errorf("Gzip = %v, want true", fc.Gzip)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("token = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p == "" {
		t.Skip("no home directory")
	}
	if !strings.HasSuffix(p, filepath.Join(".bulkship", "config.toml")) {
		t.Errorf("DefaultConfigPath() = %v", p)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if FileExists(path) {
		t.Error("FileExists() = true before creation")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("FileExists() = false after creation")
	}
}
