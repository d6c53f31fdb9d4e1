package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/bulkship/internal/diskqueue"
	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

// Shipper defaults.
const (
	DefaultDispatchDepth     = 4
	DefaultFinalFlushTimeout = 10 * time.Second
)

// ShipperConfig contains configuration for the shipping loop.
type ShipperConfig struct {
	// URL is the bulk endpoint every batch is posted to.
	URL     string
	Headers map[string]string

	Batcher BatcherConfig

	// DispatchDepth bounds the number of flushed batches waiting for the
	// sender. Batches that do not fit go straight to disk.
	DispatchDepth int

	// FinalFlushTimeout bounds the synchronous send on shutdown.
	FinalFlushTimeout time.Duration
}

// SendEventEmitter is called on send success or failure.
type SendEventEmitter interface {
	OnSendSuccess(recordCount, bytesSent int, duration time.Duration)
	OnSendError(err error, recordCount int, retryable bool)
	// OnNotStored reports a batch that was dropped: rejected permanently
	// by the endpoint or impossible to write to disk.
	OnNotStored(recordCount int, err error)
	// OnLogged reports a record accepted into the open batch.
	OnLogged(level, message string, size int)
}

type noopEmitter struct{}

func (noopEmitter) OnSendSuccess(int, int, time.Duration) {}
func (noopEmitter) OnSendError(error, int, bool)          {}
func (noopEmitter) OnNotStored(int, error)                {}
func (noopEmitter) OnLogged(string, string, int)          {}

// Shipper coordinates the accumulator, the transmitter and the disk
// buffer. Fresh batches are sent by a worker; transient failures are
// stored; the primary shipper of a directory also drains the disk buffer.
type Shipper struct {
	config      ShipperConfig
	encoder     ports.Encoder
	transmitter ports.Transmitter
	queue       *diskqueue.Queue
	primary     bool
	logger      ports.Logger
	emitter     SendEventEmitter
	batcher     *Batcher
	dispatch    chan *domain.Batch
}

// NewShipper creates a shipper. primary must be true for exactly one
// shipper per queue: the one that runs the queue and consumes its
// retransmissions.
func NewShipper(
	config ShipperConfig,
	encoder ports.Encoder,
	transmitter ports.Transmitter,
	queue *diskqueue.Queue,
	primary bool,
	logger ports.Logger,
	emitter SendEventEmitter,
) *Shipper {
	if config.DispatchDepth <= 0 {
		config.DispatchDepth = DefaultDispatchDepth
	}
	if config.FinalFlushTimeout <= 0 {
		config.FinalFlushTimeout = DefaultFinalFlushTimeout
	}
	if emitter == nil {
		emitter = noopEmitter{}
	}
	s := &Shipper{
		config:      config,
		encoder:     encoder,
		transmitter: transmitter,
		queue:       queue,
		primary:     primary,
		logger:      logger,
		emitter:     emitter,
		dispatch:    make(chan *domain.Batch, config.DispatchDepth),
	}
	s.batcher = NewBatcher(config.Batcher, s.enqueue)
	s.config.Batcher = s.batcher.Config()
	return s
}

// Primary reports whether this shipper drains the disk buffer.
func (s *Shipper) Primary() bool {
	return s.primary
}

// Queue returns the disk buffer the shipper stores into.
func (s *Shipper) Queue() *diskqueue.Queue {
	return s.queue
}

// Pending returns the number of records not yet flushed.
func (s *Shipper) Pending() int {
	return s.batcher.Pending()
}

// Log encodes one record and appends it to the open batch.
func (s *Shipper) Log(level, message string, fields map[string]any) error {
	rec, err := s.encoder.Encode(level, message, fields)
	if err != nil {
		return err
	}
	s.batcher.Append(rec)
	s.emitter.OnLogged(level, message, rec.Len())
	return nil
}

// Flush detaches the open batch and hands it to the sender.
func (s *Shipper) Flush() {
	if b := s.batcher.Flush(); b != nil {
		s.enqueue(b)
	}
}

// Run executes the shipping loops until ctx is cancelled, then sends
// whatever is still pending before returning.
func (s *Shipper) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.batcher.Run(gctx) })
	g.Go(func() error { return s.sendLoop(gctx) })
	if s.primary {
		g.Go(func() error { return s.queue.Run(gctx) })
		g.Go(func() error { return s.retransmitLoop(gctx) })
	}

	err := g.Wait()
	s.releaseUnclaimed()
	s.finalFlush()
	return err
}

// enqueue is the accumulator's flush callback. It never blocks: when the
// sender is behind, the batch goes to disk and is picked up by the
// retransmit cycle.
func (s *Shipper) enqueue(b *domain.Batch) {
	select {
	case s.dispatch <- b:
	default:
		s.logger.Debug("sender busy, buffering batch on disk", ports.Int("records", b.Count()))
		s.store(context.Background(), s.request(b), nil)
	}
}

func (s *Shipper) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-s.dispatch:
			s.deliver(ctx, b)
		}
	}
}

// deliver sends one fresh batch and routes failures by class.
func (s *Shipper) deliver(ctx context.Context, b *domain.Batch) {
	req := s.request(b)

	start := time.Now()
	err := s.transmitter.Send(ctx, req)
	duration := time.Since(start)

	if err == nil {
		s.logger.Debug("sent batch",
			ports.Int("records", req.Count),
			ports.Int("bytes", len(req.Body)),
			ports.Duration("duration", duration),
		)
		s.emitter.OnSendSuccess(req.Count, len(req.Body), duration)
		return
	}

	retryable := domain.OutcomeOf(err) == domain.OutcomeRetry
	s.emitter.OnSendError(err, req.Count, retryable)

	if !retryable {
		s.logger.Error("batch rejected, not buffering",
			ports.Err(err),
			ports.Int("records", req.Count),
		)
		s.emitter.OnNotStored(req.Count, err)
		return
	}

	s.logger.Warn("send failed, buffering batch on disk",
		ports.Err(err),
		ports.Int("records", req.Count),
	)
	// Cancellation during shutdown must not prevent the write.
	s.store(context.WithoutCancel(ctx), req, err)
}

func (s *Shipper) store(ctx context.Context, req domain.Request, cause error) {
	if _, err := s.queue.Store(ctx, req); err != nil {
		if cause != nil {
			err = errors.Join(cause, err)
		}
		s.emitter.OnNotStored(req.Count, err)
	}
}

// retransmitLoop sends batches handed out by the disk buffer and reports
// each verdict back.
func (s *Shipper) retransmitLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rt := <-s.queue.Retransmissions():
			s.retransmit(ctx, rt)
		}
	}
}

func (s *Shipper) retransmit(ctx context.Context, rt diskqueue.Retransmission) {
	start := time.Now()
	err := s.transmitter.Send(ctx, rt.Request)
	duration := time.Since(start)

	if err != nil && ctx.Err() != nil {
		s.queue.Complete(rt.Handle, domain.OutcomeAbandon)
		return
	}

	outcome := domain.OutcomeOf(err)
	switch outcome {
	case domain.OutcomeSuccess:
		s.logger.Debug("retransmitted batch",
			ports.String("file", rt.Handle.Path),
			ports.Int("records", rt.Request.Count),
			ports.Duration("duration", duration),
		)
		s.emitter.OnSendSuccess(rt.Request.Count, len(rt.Request.Body), duration)
	case domain.OutcomePermanent:
		s.logger.Error("buffered batch rejected, dropping",
			ports.String("file", rt.Handle.Path),
			ports.Err(err),
		)
		s.emitter.OnSendError(err, rt.Request.Count, false)
		s.emitter.OnNotStored(rt.Request.Count, err)
	default:
		s.logger.Debug("retransmit failed",
			ports.String("file", rt.Handle.Path),
			ports.Err(err),
		)
		s.emitter.OnSendError(err, rt.Request.Count, true)
	}
	s.queue.Complete(rt.Handle, outcome)
}

// releaseUnclaimed unlocks a retransmission that was handed out after the
// consumer stopped.
func (s *Shipper) releaseUnclaimed() {
	if !s.primary {
		return
	}
	select {
	case rt := <-s.queue.Retransmissions():
		s.queue.Unlock(rt.Handle)
	default:
	}
}

// finalFlush sends everything still in memory, oldest first. Batches
// that cannot be sent are stored; batches that cannot be stored are
// reported.
func (s *Shipper) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.FinalFlushTimeout)
	defer cancel()

	for {
		select {
		case b := <-s.dispatch:
			s.deliver(ctx, b)
			continue
		default:
		}
		break
	}
	if b := s.batcher.Flush(); b != nil {
		s.deliver(ctx, b)
	}
}

func (s *Shipper) request(b *domain.Batch) domain.Request {
	return domain.NewRequest(s.config.URL, s.config.Headers, b)
}
