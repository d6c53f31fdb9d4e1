package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	o := NewOffsetFile(dir, filepath.Join(dir, "app.log"))

	off, err := o.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, off)

	require.NoError(t, o.Save(context.Background(), 1234))
	off, err = o.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1234, off)
	assert.NoFileExists(t, o.Path()+".tmp")
}

func TestOffsetFile_PerTarget(t *testing.T) {
	dir := t.TempDir()
	a := NewOffsetFile(dir, "/var/log/a/app.log")
	b := NewOffsetFile(dir, "/var/log/b/app.log")
	assert.NotEqual(t, a.Path(), b.Path())

	require.NoError(t, a.Save(context.Background(), 10))
	off, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, off)
}

func TestOffsetFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	o := NewOffsetFile(dir, "/var/log/app.log")
	require.NoError(t, os.WriteFile(o.Path(), []byte("{"), 0o600))

	_, err := o.Load(context.Background())
	assert.Error(t, err)
}
