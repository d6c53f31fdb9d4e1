package bulkship

import (
	"github.com/bft-labs/bulkship/internal/diskqueue"
	"github.com/bft-labs/bulkship/internal/ports"
	"github.com/bft-labs/bulkship/pkg/log"
)

// Re-exported collaborator types.
type (
	// HTTPClient is satisfied by *http.Client.
	HTTPClient = ports.HTTPClient

	// Sanitizer rewrites a document before it is encoded.
	Sanitizer = ports.Sanitizer
	// SanitizerFunc adapts a function to Sanitizer.
	SanitizerFunc = ports.SanitizerFunc

	// Registry maps storage directories to shared disk buffers.
	Registry = diskqueue.Registry
	// Locker claims stored batches for retransmission.
	Locker = diskqueue.Locker
	// RenameLocker claims a batch by renaming it to ".bulk.lock".
	RenameLocker = diskqueue.RenameLocker
	// FlockLocker claims a batch with an advisory file lock.
	FlockLocker = diskqueue.FlockLocker

	// QueueEventHandler receives disk buffer events.
	QueueEventHandler = diskqueue.EventHandler
	// QueueStats is a snapshot of a disk buffer.
	QueueStats = diskqueue.Stats
)

// NewRegistry creates an empty disk buffer registry.
func NewRegistry() *Registry {
	return diskqueue.NewRegistry()
}

// defaultRegistry is shared by shippers created without WithRegistry.
var defaultRegistry = diskqueue.NewRegistry()

// Option configures optional behavior of a Shipper.
type Option func(*options)

type options struct {
	httpClient   HTTPClient
	logger       log.Logger
	eventHandler EventHandler
	registry     *Registry
	locker       Locker
	sanitizer    Sanitizer
	queueEvents  QueueEventHandler
	watch        bool
}

func defaultOptions() options {
	return options{
		logger:   log.NewNoopLogger(),
		registry: defaultRegistry,
		watch:    true,
	}
}

// WithHTTPClient sets the client used for bulk requests. The default is
// an *http.Client with Config.HTTPTimeout.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler sets a handler for shipper events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithRegistry uses r instead of the process-wide default registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLocker sets the locking primitive of a newly created disk buffer.
// It has no effect when the buffer already exists in the registry.
func WithLocker(l Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithSanitizer rewrites every document before it is encoded.
func WithSanitizer(s Sanitizer) Option {
	return func(o *options) {
		o.sanitizer = s
	}
}

// WithQueueEventHandler receives events of a newly created disk buffer.
// It has no effect when the buffer already exists in the registry.
func WithQueueEventHandler(h QueueEventHandler) Option {
	return func(o *options) {
		o.queueEvents = h
	}
}

// WithDirectoryWatch toggles the filesystem watch that picks up batches
// written by other processes sharing the storage directory.
func WithDirectoryWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}
