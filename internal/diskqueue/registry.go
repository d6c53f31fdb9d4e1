package diskqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registry maps storage directories to their shared Queue so that several
// shippers pointed at one directory do not duplicate retransmission work.
// Construct one per process and pass it to every shipper.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// GetOrCreate returns the queue for dir. The second result is true when the
// queue already existed; the caller that gets false is the primary and is
// expected to run the queue and consume its retransmissions.
//
// A new queue gets its directory created and its file list synced from disk
// before it is returned. cfg is ignored on a cache hit.
func (r *Registry) GetOrCreate(dir string, cfg Config) (*Queue, bool, error) {
	key, err := filepath.Abs(dir)
	if err != nil {
		return nil, false, fmt.Errorf("resolve disk buffer dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[key]; ok {
		return q, true, nil
	}

	if err := os.MkdirAll(key, 0o755); err != nil {
		return nil, false, fmt.Errorf("create disk buffer dir: %w", err)
	}

	q := New(key, cfg)
	if err := q.Sync(); err != nil {
		return nil, false, fmt.Errorf("sync disk buffer: %w", err)
	}
	r.queues[key] = q
	return q, false, nil
}

// Lookup returns the queue for dir, if one has been created.
func (r *Registry) Lookup(dir string) (*Queue, bool) {
	key, err := filepath.Abs(dir)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[key]
	return q, ok
}

// Len returns the number of registered queues.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
