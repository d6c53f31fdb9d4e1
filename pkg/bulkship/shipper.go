package bulkship

import (
	"context"
	"net/http"
	"sync"

	"github.com/bft-labs/bulkship/internal/adapters/encoder"
	httpAdapter "github.com/bft-labs/bulkship/internal/adapters/http"
	"github.com/bft-labs/bulkship/internal/app"
	"github.com/bft-labs/bulkship/internal/diskqueue"
	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
	"github.com/bft-labs/bulkship/pkg/log"
)

// Errors returned by the public API; check them with errors.Is.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrMissingToken    = domain.ErrMissingToken
)

// Shipper batches log records and delivers them to a bulk endpoint,
// buffering failed batches on disk.
type Shipper struct {
	config    Config
	logger    log.Logger
	lifecycle *app.Lifecycle
	shipper   *app.Shipper
	queue     *diskqueue.Queue

	mu sync.Mutex
}

// New creates a Shipper in StateStopped. Records logged before Start are
// kept in memory and shipped once it runs.
func New(cfg Config, opts ...Option) (*Shipper, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bulkURL, err := cfg.BulkURL()
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	queue, hit, err := o.registry.GetOrCreate(cfg.QueueDir(), diskqueue.Config{
		MaxStoredRequests:  cfg.MaxStoredRequests,
		RetransmitInterval: cfg.RetransmitInterval,
		Watch:              o.watch,
		Locker:             o.locker,
		Logger:             o.logger,
		Events:             o.queueEvents,
	})
	if err != nil {
		return nil, err
	}

	enc := encoder.NewBulk(encoder.Config{
		Index:     cfg.Token,
		Type:      cfg.Type,
		Sanitizer: o.sanitizer,
	})
	tr := httpAdapter.NewTransmitter(o.httpClient, o.logger, httpAdapter.WithGzip(cfg.Gzip))

	headers := map[string]string{
		"User-Agent":   "bulkship",
		"Content-Type": "application/json",
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	shipper := app.NewShipper(app.ShipperConfig{
		URL:     bulkURL,
		Headers: headers,
		Batcher: cfg.batcherConfig(),
	}, enc, tr, queue, !hit, o.logger, emitter)

	o.logger.Debug("shipper created",
		ports.String("url", bulkURL),
		ports.String("disk_buffer", queue.Dir()),
		ports.Bool("primary", !hit),
	)

	return &Shipper{
		config:    cfg,
		logger:    o.logger,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		shipper:   shipper,
		queue:     queue,
	}, nil
}

// Start begins shipping in the background and returns immediately.
// The shipper runs until Stop is called or ctx is cancelled.
func (s *Shipper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.Launch(ctx, s.shipper.Run)
}

// Stop cancels shipping and waits for the final flush. Records still in
// memory are sent once; what cannot be sent is buffered on disk.
// Returns ErrShutdownTimeout if shutdown takes longer than 30 seconds.
func (s *Shipper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.Shutdown(app.ShutdownTimeout)
}

// Log adds one record. fields override the default document fields;
// "_index", "_type" and "_id" steer the bulk action instead.
func (s *Shipper) Log(level, message string, fields map[string]any) error {
	return s.shipper.Log(level, message, fields)
}

// Flush hands the open batch to the sender without waiting for a trigger.
func (s *Shipper) Flush() {
	s.shipper.Flush()
}

// Status returns the current lifecycle state.
func (s *Shipper) Status() State {
	return convertState(s.lifecycle.State())
}

// Pending returns the number of records not yet flushed.
func (s *Shipper) Pending() int {
	return s.shipper.Pending()
}

// Primary reports whether this shipper drains the shared disk buffer.
func (s *Shipper) Primary() bool {
	return s.shipper.Primary()
}

// QueueStats returns a snapshot of the disk buffer.
func (s *Shipper) QueueStats() QueueStats {
	return s.queue.Stats()
}

// Config returns the effective configuration.
func (s *Shipper) Config() Config {
	return s.config
}
