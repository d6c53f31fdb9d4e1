package diskqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/bulkship/internal/domain"
)

func TestRenameLocker(t *testing.T) {
	dir := t.TempDir()
	path := writeStored(t, dir, "0_1.bulk")
	var l RenameLocker

	h, err := l.TryAcquire(path)
	require.NoError(t, err)
	assert.Equal(t, path+LockSuffix, h.LockedPath)
	assert.NoFileExists(t, path)

	_, err = l.TryAcquire(path)
	assert.ErrorIs(t, err, domain.ErrGone)

	require.NoError(t, l.Release(h))
	assert.FileExists(t, path)
	require.NoError(t, l.Release(h), "release is idempotent")

	h, err = l.TryAcquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Remove(h))
	require.NoError(t, l.Remove(h), "remove is idempotent")
	assert.Empty(t, dirNames(t, dir))
}

func TestFlockLocker(t *testing.T) {
	dir := t.TempDir()
	path := writeStored(t, dir, "0_1.bulk")
	var l FlockLocker

	h, err := l.TryAcquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, h.LockedPath)
	assert.FileExists(t, path)

	_, err = l.TryAcquire(path)
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, l.Release(h))
	h, err = l.TryAcquire(path)
	require.NoError(t, err)

	require.NoError(t, l.Remove(h))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+flockSuffix)

	_, err = l.TryAcquire(filepath.Join(dir, "missing.bulk"))
	assert.ErrorIs(t, err, domain.ErrGone)
}

func TestQueue_WithFlockLocker(t *testing.T) {
	q := New(t.TempDir(), Config{Locker: FlockLocker{}})
	require.NoError(t, q.Sync())

	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	assert.Equal(t, path, rt.Handle.LockedPath)
	q.Complete(rt.Handle, domain.OutcomeRetry)
	assert.FileExists(t, path)

	rt = takeNext(t, q)
	q.Complete(rt.Handle, domain.OutcomeSuccess)
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, q.Files())
}

func TestDecodeRequest_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"garbage", "not json"},
		{"wrong version", `{"v":9,"request":{"url":"http://x","count":1}}`},
		{"missing url", `{"v":1,"request":{"count":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRequest([]byte(tt.data))
			assert.ErrorIs(t, err, domain.ErrMalformedRequest)
		})
	}
}
