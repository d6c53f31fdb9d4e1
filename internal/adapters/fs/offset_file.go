package fs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// offsetRecord is the persisted read position of a followed file.
type offsetRecord struct {
	Path      string    `json:"path"`
	Offset    int64     `json:"offset"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OffsetFile persists the read offset of one followed file as JSON.
type OffsetFile struct {
	dir    string
	target string
}

// NewOffsetFile creates an offset store in dir for the file at target.
func NewOffsetFile(dir, target string) *OffsetFile {
	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}
	return &OffsetFile{dir: dir, target: target}
}

// Path returns the location of the offset file.
func (o *OffsetFile) Path() string {
	sum := sha1.Sum([]byte(o.target))
	name := fmt.Sprintf("follow-%s-%s.json", filepath.Base(o.target), hex.EncodeToString(sum[:4]))
	return filepath.Join(o.dir, name)
}

// Load returns the saved offset, or 0 when nothing was saved for target.
func (o *OffsetFile) Load(ctx context.Context) (int64, error) {
	data, err := os.ReadFile(o.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var rec offsetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("decode offset file: %w", err)
	}
	if rec.Path != o.target || rec.Offset < 0 {
		return 0, nil
	}
	return rec.Offset, nil
}

// Save persists offset atomically.
func (o *OffsetFile) Save(ctx context.Context, offset int64) error {
	if err := os.MkdirAll(o.dir, 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(offsetRecord{
		Path:      o.target,
		Offset:    offset,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	path := o.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
