package diskqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

// Retransmission is a stored batch that has been locked and decoded and is
// ready to be sent. The receiver must report the verdict with Queue.Complete.
type Retransmission struct {
	Handle  Handle
	Request domain.Request
}

// Stats is a snapshot of the queue state.
type Stats struct {
	Dir                string
	StoredFiles        int
	StoredRequestCount int
	InFlight           int
	RetransmitIndex    int
	NextFileID         uint64
}

// Queue is the durable retry queue for one storage directory.
//
// All fields below mu are only touched with mu held. File writes, reads
// and sends happen outside the lock; renames and deletes that decide the
// state of an entry happen under it.
type Queue struct {
	dir    string
	cfg    Config
	locker Locker
	logger ports.Logger
	events EventHandler
	now    func() time.Time

	ready   chan Retransmission
	running atomic.Bool

	mu                 sync.Mutex
	storedFiles        []string
	storedRequestCount int
	retransmitIndex    int
	fileID             uint64
	inflight           map[string]Handle
}

// New creates a queue for dir. The directory must exist. Most callers
// should use Registry.GetOrCreate instead.
func New(dir string, cfg Config) *Queue {
	cfg.SetDefaults()
	return &Queue{
		dir:      dir,
		cfg:      cfg,
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		events:   cfg.Events,
		now:      time.Now,
		ready:    make(chan Retransmission, 1),
		inflight: make(map[string]Handle),
	}
}

// Dir returns the storage directory.
func (q *Queue) Dir() string {
	return q.dir
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Retransmissions delivers locked batches to the sender. Only one consumer
// should read from it.
func (q *Queue) Retransmissions() <-chan Retransmission {
	return q.ready
}

// Store writes req to a new file and adds it to the queue, evicting the
// oldest batches if the queue is full. A write failure is reported as an
// event and returned; there is no more durable fallback.
func (q *Queue) Store(ctx context.Context, req domain.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := encodeRequest(req)
	if err != nil {
		err = fmt.Errorf("encode batch: %w", err)
		q.events.OnStoreError(err)
		return "", err
	}

	q.mu.Lock()
	id := q.fileID
	q.fileID++
	q.mu.Unlock()

	path := filepath.Join(q.dir, fileName(id, q.now()))
	if err := writeFileAtomic(path, data); err != nil {
		err = fmt.Errorf("store batch: %w", err)
		q.logger.Error("disk buffer write failed", ports.String("file", path), ports.Err(err))
		q.events.OnStoreError(err)
		return "", err
	}

	q.mu.Lock()
	var evicted []eviction
	if q.indexLocked(path) >= 0 {
		// A concurrent Sync listed the file between the write and here.
		evicted = q.evictLocked(q.cfg.MaxStoredRequests)
	} else {
		evicted = q.evictLocked(q.cfg.MaxStoredRequests - 1)
		q.storedFiles = append(q.storedFiles, path)
	}
	q.storedRequestCount = len(q.storedFiles)
	q.mu.Unlock()

	q.finishEvictions(evicted)

	q.logger.Debug("stored batch",
		ports.String("file", path),
		ports.Int("records", req.Count),
		ports.Int("bytes", len(req.Body)),
	)
	q.events.OnStored(path, req.Count)
	return path, nil
}

// eviction is a batch dropped from the list that still has to be deleted.
type eviction struct {
	path     string
	handle   Handle
	inflight bool
}

// evictLocked drops the oldest entries until at most keep remain.
func (q *Queue) evictLocked(keep int) []eviction {
	if keep < 0 {
		keep = 0
	}
	var out []eviction
	for len(q.storedFiles) > keep {
		path := q.storedFiles[0]
		ev := eviction{path: path}
		if h, ok := q.inflight[path]; ok {
			ev.handle = h
			ev.inflight = true
			delete(q.inflight, path)
		}
		q.removeAtLocked(0)
		out = append(out, ev)
	}
	return out
}

func (q *Queue) finishEvictions(evicted []eviction) {
	for _, ev := range evicted {
		var err error
		if ev.inflight {
			err = q.locker.Remove(ev.handle)
		} else {
			err = removeIfExists(ev.path)
		}
		if err != nil {
			q.logger.Warn("evict stored batch", ports.String("file", ev.path), ports.Err(err))
		}
		q.logger.Warn("disk buffer limit reached, dropped oldest batch",
			ports.String("file", ev.path),
			ports.Int("max_stored_requests", q.cfg.MaxStoredRequests),
		)
		q.events.OnEvicted(ev.path)
	}
}

// removeAtLocked removes the entry at i and keeps the cursor pointing at
// the same next candidate.
func (q *Queue) removeAtLocked(i int) {
	q.storedFiles = append(q.storedFiles[:i], q.storedFiles[i+1:]...)
	if i < q.retransmitIndex {
		q.retransmitIndex--
	}
	if q.retransmitIndex > len(q.storedFiles) {
		q.retransmitIndex = 0
	}
	q.storedRequestCount = len(q.storedFiles)
}

func (q *Queue) indexLocked(path string) int {
	for i, p := range q.storedFiles {
		if p == path {
			return i
		}
	}
	return -1
}

// RetransmitNext runs one retransmit cycle: it advances the cursor, locks
// the batch under it, reads it and offers it on Retransmissions. It reports
// whether a batch was handed off. An empty queue is a no-op.
func (q *Queue) RetransmitNext(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	q.mu.Lock()
	n := len(q.storedFiles)
	if n == 0 {
		q.retransmitIndex = 0
		q.mu.Unlock()
		return false
	}
	if q.retransmitIndex >= n {
		q.retransmitIndex = 0
	}
	idx := q.retransmitIndex
	path := q.storedFiles[idx]
	q.retransmitIndex++

	if _, busy := q.inflight[path]; busy {
		q.mu.Unlock()
		return false
	}

	h, err := q.locker.TryAcquire(path)
	switch {
	case errors.Is(err, domain.ErrGone):
		q.removeAtLocked(idx)
		q.mu.Unlock()
		q.logger.Debug("stored batch vanished", ports.String("file", path))
		return false
	case errors.Is(err, domain.ErrBusy):
		q.mu.Unlock()
		return false
	case err != nil:
		q.mu.Unlock()
		q.logger.Error("lock stored batch", ports.String("file", path), ports.Err(err))
		q.events.OnRetransmitError(path, err)
		return false
	}
	q.inflight[path] = h
	q.mu.Unlock()

	data, err := os.ReadFile(h.LockedPath)
	if err != nil {
		q.logger.Error("read stored batch", ports.String("file", h.LockedPath), ports.Err(err))
		q.events.OnRetransmitError(path, err)
		q.Unlock(h)
		return false
	}

	req, err := decodeRequest(data)
	if err != nil {
		// It will never parse; drop it to reclaim the space.
		q.logger.Error("abandon malformed stored batch", ports.String("file", path), ports.Err(err))
		q.events.OnRetransmitError(path, err)
		q.remove(h)
		return false
	}

	select {
	case q.ready <- Retransmission{Handle: h, Request: req}:
		q.logger.Debug("retransmit stored batch",
			ports.String("file", path),
			ports.Int("index", idx),
			ports.Int("stored_files", n),
		)
		return true
	default:
		q.Unlock(h)
		return false
	}
}

// Complete applies the verdict of a retransmission.
func (q *Queue) Complete(h Handle, outcome domain.Outcome) {
	switch outcome {
	case domain.OutcomeSuccess, domain.OutcomePermanent:
		q.remove(h)
	default:
		q.Unlock(h)
	}
}

// Unlock returns a locked batch to the stored state without deleting it.
// If the batch was evicted while it was locked, it is deleted instead.
func (q *Queue) Unlock(h Handle) {
	q.mu.Lock()
	delete(q.inflight, h.Path)
	listed := q.indexLocked(h.Path) >= 0
	var err error
	if listed {
		err = q.locker.Release(h)
	} else {
		err = q.locker.Remove(h)
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("unlock stored batch", ports.String("file", h.Path), ports.Err(err))
	}
}

// remove deletes a locked batch and drops it from the list. A batch that
// a stale-lock sweep returned to its stored name while it was in flight is
// deleted under that name too.
func (q *Queue) remove(h Handle) {
	q.mu.Lock()
	_, held := q.inflight[h.Path]
	delete(q.inflight, h.Path)
	err := q.locker.Remove(h)
	if !held {
		if rerr := removeIfExists(h.Path); err == nil {
			err = rerr
		}
	}
	if i := q.indexLocked(h.Path); i >= 0 {
		q.removeAtLocked(i)
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("remove stored batch", ports.String("file", h.Path), ports.Err(err))
		return
	}
	q.logger.Debug("removed stored batch", ports.String("file", h.Path))
	q.events.OnRemoved(h.Path)
}

// RemoveFile deletes a stored batch given its stored or locked name. It is
// idempotent and reports whether the batch was still listed.
func (q *Queue) RemoveFile(path string) bool {
	path = storedPath(path)

	q.mu.Lock()
	h, inflight := q.inflight[path]
	if inflight {
		q.mu.Unlock()
		q.remove(h)
		return true
	}

	i := q.indexLocked(path)
	if i >= 0 {
		q.removeAtLocked(i)
	}
	q.storedRequestCount = len(q.storedFiles)
	q.mu.Unlock()

	err := removeIfExists(path)
	if lerr := removeIfExists(lockedPath(path)); err == nil {
		err = lerr
	}
	if err != nil {
		q.logger.Warn("rm stored batch", ports.String("file", path), ports.Err(err))
	}
	if i >= 0 {
		q.events.OnRemoved(path)
	}
	return i >= 0
}

// Files returns a copy of the stored file list in queue order.
func (q *Queue) Files() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.storedFiles...)
}

// Len returns the number of stored batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.storedFiles)
}

// Stats returns a snapshot of the queue state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Dir:                q.dir,
		StoredFiles:        len(q.storedFiles),
		StoredRequestCount: q.storedRequestCount,
		InFlight:           len(q.inflight),
		RetransmitIndex:    q.retransmitIndex,
		NextFileID:         q.fileID,
	}
}

// writeFileAtomic writes data to path via a temporary file so a crash never
// leaves a partial .bulk file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
