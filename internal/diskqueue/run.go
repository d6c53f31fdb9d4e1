package diskqueue

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

// Run drives the queue until ctx is cancelled: one RetransmitNext per
// RetransmitInterval, a full Sync per SyncInterval, and, when Watch is
// set, a debounced Sync whenever another writer adds a batch.
// Only one Run may be active per queue.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}
	defer q.running.Store(false)

	retransmit := time.NewTicker(q.cfg.RetransmitInterval)
	defer retransmit.Stop()

	resync := time.NewTicker(q.cfg.SyncInterval)
	defer resync.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if q.cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			q.logger.Warn("disk buffer watch unavailable", ports.Err(err))
		} else {
			defer watcher.Close()
			if err := watcher.Add(q.dir); err != nil {
				q.logger.Warn("disk buffer watch unavailable", ports.String("dir", q.dir), ports.Err(err))
			} else {
				events = watcher.Events
				errs = watcher.Errors
			}
		}
	}

	// debounce is armed by watch events and fires one Sync.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	armed := false

	q.logger.Info("disk buffer started",
		ports.String("dir", q.dir),
		ports.Int("stored_files", q.Len()),
		ports.Duration("interval", q.cfg.RetransmitInterval),
	)

	for {
		select {
		case <-ctx.Done():
			if armed {
				debounce.Stop()
			}
			return nil

		case <-retransmit.C:
			q.RetransmitNext(ctx)

		case <-resync.C:
			_ = q.Sync()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !q.isForeignBatch(ev) || armed {
				continue
			}
			debounce.Reset(watchDebounceDelay)
			armed = true

		case <-debounce.C:
			armed = false
			_ = q.Sync()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			q.logger.Warn("disk buffer watch error", ports.Err(err))
		}
	}
}

// isForeignBatch reports whether ev announces a batch this queue does not
// know about yet.
func (q *Queue) isForeignBatch(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	if !strings.HasSuffix(ev.Name, BulkSuffix) {
		return false
	}
	path := filepath.Join(q.dir, filepath.Base(ev.Name))

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[path]; ok {
		return false
	}
	return q.indexLocked(path) < 0
}
