package diskqueue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/bulkship/internal/domain"
)

// recordingEvents captures queue events for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	stored    []string
	removed   []string
	evicted   []string
	reclaimed []string
	storeErrs []error
	rtErrs    []error
}

func (r *recordingEvents) OnStored(path string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, path)
}

func (r *recordingEvents) OnRemoved(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *recordingEvents) OnEvicted(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, path)
}

func (r *recordingEvents) OnStoreError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrs = append(r.storeErrs, err)
}

func (r *recordingEvents) OnRetransmitError(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtErrs = append(r.rtErrs, err)
}

func (r *recordingEvents) OnReclaimed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reclaimed = append(r.reclaimed, path)
}

func newTestQueue(t *testing.T, maxStored int) (*Queue, *recordingEvents) {
	t.Helper()
	ev := &recordingEvents{}
	q := New(t.TempDir(), Config{
		MaxStoredRequests:  maxStored,
		RetransmitInterval: 100 * time.Millisecond,
		SyncInterval:       time.Hour,
		Events:             ev,
	})
	require.NoError(t, q.Sync())
	return q, ev
}

func testRequest(body string) domain.Request {
	return domain.Request{
		URL:       "http://127.0.0.1:9200/_bulk",
		Method:    "POST",
		Headers:   map[string]string{"Content-Type": "application/x-ndjson"},
		Body:      []byte(body),
		Count:     1,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// takeNext runs one cycle and returns the offered retransmission.
func takeNext(t *testing.T, q *Queue) Retransmission {
	t.Helper()
	require.True(t, q.RetransmitNext(context.Background()), "expected a retransmission")
	select {
	case rt := <-q.Retransmissions():
		return rt
	default:
		t.Fatal("retransmission not delivered")
		return Retransmission{}
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStore_RoundTrip(t *testing.T) {
	q, ev := newTestQueue(t, 10)
	req := testRequest("{\"index\":{}}\n{\"message\":\"hello\"}\n")
	req.Count = 7

	path, err := q.Store(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, BulkSuffix))
	assert.Equal(t, []string{path}, ev.stored)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := decodeRequest(data)
	require.NoError(t, err)

	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("stored request mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_FileNaming(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	q.now = func() time.Time { return time.UnixMilli(1700000000123) }

	p0, err := q.Store(context.Background(), testRequest("a"))
	require.NoError(t, err)
	p1, err := q.Store(context.Background(), testRequest("b"))
	require.NoError(t, err)

	assert.Equal(t, "0_1700000000123.bulk", filepath.Base(p0))
	assert.Equal(t, "1_1700000000123.bulk", filepath.Base(p1))

	for _, name := range dirNames(t, q.Dir()) {
		assert.False(t, strings.HasSuffix(name, tmpSuffix), "temporary file left behind: %s", name)
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	q, ev := newTestQueue(t, 3)
	ctx := context.Background()

	var paths []string
	for _, body := range []string{"A", "B", "C", "D"} {
		p, err := q.Store(ctx, testRequest(body))
		require.NoError(t, err)
		paths = append(paths, p)
	}

	assert.Equal(t, paths[1:], q.Files())
	assert.Equal(t, []string{paths[0]}, ev.evicted)
	assert.NoFileExists(t, paths[0])
	assert.Len(t, dirNames(t, q.Dir()), 3)
	assert.Equal(t, 3, q.Stats().StoredRequestCount)
}

func TestStore_NeverExceedsCap(t *testing.T) {
	q, _ := newTestQueue(t, 5)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := q.Store(ctx, testRequest("x"))
		require.NoError(t, err)
		assert.LessOrEqual(t, q.Len(), 5)
	}
	assert.Equal(t, 5, q.Len())
	assert.Len(t, dirNames(t, q.Dir()), 5)
}

func TestStore_WriteFailureReported(t *testing.T) {
	q, ev := newTestQueue(t, 10)
	q.dir = filepath.Join(q.dir, "missing")

	_, err := q.Store(context.Background(), testRequest("x"))
	require.Error(t, err)
	assert.Len(t, ev.storeErrs, 1)
	assert.Equal(t, 0, q.Len())
}

func TestRetransmitNext_EmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t, 10)

	assert.NotPanics(t, func() {
		assert.False(t, q.RetransmitNext(context.Background()))
	})
	assert.Equal(t, 0, q.Stats().RetransmitIndex)
}

func TestRetransmit_SuccessRemovesFile(t *testing.T) {
	q, ev := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	assert.Equal(t, path, rt.Handle.Path)
	assert.FileExists(t, path+LockSuffix)
	assert.NoFileExists(t, path)
	assert.Equal(t, []byte("x"), rt.Request.Body)

	q.Complete(rt.Handle, domain.OutcomeSuccess)

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+LockSuffix)
	assert.Empty(t, q.Files())
	assert.Equal(t, []string{path}, ev.removed)
	assert.False(t, q.RetransmitNext(context.Background()))
}

func TestRetransmit_FailureRestoresFile(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	q.Complete(rt.Handle, domain.OutcomeRetry)

	assert.FileExists(t, path)
	assert.NoFileExists(t, path+LockSuffix)
	assert.Equal(t, []string{path}, q.Files())
}

func TestRetransmit_RepeatedFailuresDoNotDuplicate(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rt := takeNext(t, q)
		q.Complete(rt.Handle, domain.OutcomeRetry)
	}

	assert.Equal(t, []string{path}, q.Files())
	assert.Equal(t, []string{filepath.Base(path)}, dirNames(t, q.Dir()))
}

func TestRetransmit_PermanentDropsFile(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	q.Complete(rt.Handle, domain.OutcomePermanent)

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+LockSuffix)
	assert.Empty(t, q.Files())
}

func TestRetransmit_AbandonUnlocks(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	q.Complete(rt.Handle, domain.OutcomeAbandon)

	assert.FileExists(t, path)
	assert.Equal(t, 0, q.Stats().InFlight)
}

func TestRetransmit_RoundRobin(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	var paths []string
	for _, body := range []string{"A", "B", "C"} {
		p, err := q.Store(ctx, testRequest(body))
		require.NoError(t, err)
		paths = append(paths, p)
	}

	var order []string
	for i := 0; i < 6; i++ {
		rt := takeNext(t, q)
		order = append(order, rt.Handle.Path)
		q.Complete(rt.Handle, domain.OutcomeRetry)
	}

	assert.Equal(t, append(append([]string{}, paths...), paths...), order)
}

func TestRetransmit_CursorSurvivesRemoval(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	var paths []string
	for _, body := range []string{"A", "B", "C"} {
		p, err := q.Store(ctx, testRequest(body))
		require.NoError(t, err)
		paths = append(paths, p)
	}

	rt := takeNext(t, q)
	require.Equal(t, paths[0], rt.Handle.Path)
	q.Complete(rt.Handle, domain.OutcomeSuccess)

	rt = takeNext(t, q)
	assert.Equal(t, paths[1], rt.Handle.Path)
}

func TestRetransmit_InFlightSkipped(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	_, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	assert.False(t, q.RetransmitNext(context.Background()))
	q.Complete(rt.Handle, domain.OutcomeRetry)
	assert.True(t, q.RetransmitNext(context.Background()))
}

func TestRetransmit_NoConsumerReleasesLock(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	_, err := q.Store(ctx, testRequest("A"))
	require.NoError(t, err)
	second, err := q.Store(ctx, testRequest("B"))
	require.NoError(t, err)

	require.True(t, q.RetransmitNext(ctx))
	assert.False(t, q.RetransmitNext(ctx), "hand-off buffer is full")

	assert.FileExists(t, second)
	assert.Equal(t, 1, q.Stats().InFlight)
}

func TestRetransmit_VanishedFileSkipped(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	first, err := q.Store(ctx, testRequest("A"))
	require.NoError(t, err)
	second, err := q.Store(ctx, testRequest("B"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(first))

	assert.False(t, q.RetransmitNext(ctx))
	assert.Equal(t, []string{second}, q.Files())

	rt := takeNext(t, q)
	assert.Equal(t, second, rt.Handle.Path)
}

func TestRetransmit_MalformedFileDropped(t *testing.T) {
	q, ev := newTestQueue(t, 10)
	path := filepath.Join(q.Dir(), "3_1700000000000.bulk")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	require.NoError(t, q.Sync())

	assert.False(t, q.RetransmitNext(context.Background()))

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+LockSuffix)
	assert.Empty(t, q.Files())
	require.Len(t, ev.rtErrs, 1)
	assert.ErrorIs(t, ev.rtErrs[0], domain.ErrMalformedRequest)
}

func TestComplete_AfterEvictionDeletesLock(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	first, err := q.Store(ctx, testRequest("A"))
	require.NoError(t, err)
	rt := takeNext(t, q)

	second, err := q.Store(ctx, testRequest("B"))
	require.NoError(t, err)
	assert.NoFileExists(t, first+LockSuffix)

	q.Complete(rt.Handle, domain.OutcomeRetry)

	assert.NoFileExists(t, first)
	assert.NoFileExists(t, first+LockSuffix)
	assert.Equal(t, []string{second}, q.Files())
}

func TestRemoveFile_Idempotent(t *testing.T) {
	q, ev := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	assert.True(t, q.RemoveFile(path))
	assert.False(t, q.RemoveFile(path))
	assert.False(t, q.RemoveFile(path+LockSuffix))

	assert.NoFileExists(t, path)
	assert.Equal(t, 0, q.Stats().StoredRequestCount)
	assert.Equal(t, []string{path}, ev.removed)
}

func TestRemoveFile_LockedName(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	rt := takeNext(t, q)
	assert.True(t, q.RemoveFile(rt.Handle.LockedPath))

	assert.NoFileExists(t, path+LockSuffix)
	assert.Equal(t, 0, q.Stats().InFlight)
	assert.Empty(t, q.Files())
}

func TestRun_RetransmitsOnTick(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	path, err := q.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	select {
	case rt := <-q.Retransmissions():
		assert.Equal(t, path, rt.Handle.Path)
		q.Complete(rt.Handle, domain.OutcomeSuccess)
	case <-time.After(5 * time.Second):
		t.Fatal("no retransmission within 5s")
	}

	cancel()
	require.NoError(t, <-done)
	assert.NoFileExists(t, path)
}

func TestRun_OnlyOnce(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool { return q.running.Load() }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, q.Run(ctx), domain.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_WatchPicksUpForeignBatch(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	q.cfg.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	require.Eventually(t, func() bool { return q.running.Load() }, time.Second, 10*time.Millisecond)
	// Give Run time to register the watch.
	time.Sleep(200 * time.Millisecond)

	other := New(q.Dir(), Config{})
	other.fileID = 100
	path, err := other.Store(context.Background(), testRequest("x"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, p := range q.Files() {
			if p == path {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
