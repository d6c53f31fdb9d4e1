package diskqueue

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bft-labs/bulkship/internal/ports"
)

// Sync rebuilds the stored file list from the directory. It picks up
// batches written by other instances, returns stale lock files to the
// stored state and keeps the batches this queue currently has in flight.
// It is also the crash-recovery path on startup.
func (q *Queue) Sync() error {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		q.logger.Error("sync disk buffer", ports.String("dir", q.dir), ports.Err(err))
		q.mu.Lock()
		q.storedFiles = q.storedFiles[:0]
		for path := range q.inflight {
			q.storedFiles = append(q.storedFiles, path)
		}
		q.storedRequestCount = len(q.storedFiles)
		q.retransmitIndex = 0
		q.mu.Unlock()
		return err
	}

	now := q.now()
	var found []storedName
	var reclaimed []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(q.dir, name)

		switch {
		case strings.HasSuffix(name, BulkSuffix):
			found = append(found, parseStoredName(path))

		case strings.HasSuffix(name, BulkSuffix+LockSuffix):
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= StaleLockWindow {
				continue
			}
			base := storedPath(path)
			if err := os.Rename(path, base); err != nil {
				q.logger.Debug("reclaim stale lock", ports.String("file", path), ports.Err(err))
				continue
			}
			q.logger.Info("reclaimed stale lock file", ports.String("file", base))
			found = append(found, parseStoredName(base))
			reclaimed = append(reclaimed, base)

		case strings.HasSuffix(name, BulkSuffix+tmpSuffix):
			// Leftover of a write interrupted by a crash.
			if info, err := e.Info(); err == nil && now.Sub(info.ModTime()) > StaleLockWindow {
				_ = removeIfExists(path)
			}
		}
	}

	q.mu.Lock()
	seen := make(map[string]bool, len(found))
	for _, n := range found {
		seen[n.path] = true
	}
	for _, path := range reclaimed {
		delete(q.inflight, path)
	}
	for path := range q.inflight {
		if !seen[path] {
			found = append(found, parseStoredName(path))
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].less(found[j]) })

	files := make([]string, 0, len(found))
	for _, n := range found {
		files = append(files, n.path)
		if n.id >= q.fileID {
			q.fileID = n.id + 1
		}
	}
	q.storedFiles = files
	q.storedRequestCount = len(files)
	if q.retransmitIndex >= len(files) {
		q.retransmitIndex = 0
	}
	evicted := q.evictLocked(q.cfg.MaxStoredRequests)
	count := len(q.storedFiles)
	q.mu.Unlock()

	q.finishEvictions(evicted)
	for _, path := range reclaimed {
		q.events.OnReclaimed(path)
	}

	q.logger.Debug("synced disk buffer",
		ports.String("dir", q.dir),
		ports.Int("stored_files", count),
	)
	return nil
}
