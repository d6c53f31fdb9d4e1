package bulkship

import (
	"time"

	"github.com/bft-labs/bulkship/internal/app"
)

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SendSuccessEvent is emitted when the endpoint accepts a batch, fresh or
// retransmitted.
type SendSuccessEvent struct {
	RecordCount int
	BytesSent   int
	Duration    time.Duration
}

// SendErrorEvent is emitted when a send attempt fails.
type SendErrorEvent struct {
	Error       error
	RecordCount int
	// Retryable is true when the batch stays buffered for another attempt.
	Retryable bool
}

// NotStoredEvent is emitted when a batch is dropped without being
// buffered: the endpoint rejected it for good or the disk write failed.
type NotStoredEvent struct {
	Error       error
	RecordCount int
}

// LoggedEvent is emitted for every record accepted by Log.
type LoggedEvent struct {
	Level   string
	Message string
	// Size is the encoded size of the record in bytes.
	Size int
}

// EventHandler receives shipper events. Calls are synchronous and come
// from the shipper's goroutines; handlers must not block.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnSendSuccess(event SendSuccessEvent)
	OnSendError(event SendErrorEvent)
	OnNotStored(event NotStoredEvent)
	OnLogged(event LoggedEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// handle only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnSendSuccess(SendSuccessEvent) {}
func (BaseEventHandler) OnSendError(SendErrorEvent)     {}
func (BaseEventHandler) OnNotStored(NotStoredEvent)     {}
func (BaseEventHandler) OnLogged(LoggedEvent)           {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnSendSuccess(recordCount, bytesSent int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendSuccess(SendSuccessEvent{
		RecordCount: recordCount,
		BytesSent:   bytesSent,
		Duration:    duration,
	})
}

func (e *eventEmitterWrapper) OnSendError(err error, recordCount int, retryable bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendError(SendErrorEvent{
		Error:       err,
		RecordCount: recordCount,
		Retryable:   retryable,
	})
}

func (e *eventEmitterWrapper) OnNotStored(recordCount int, err error) {
	if e.handler == nil {
		return
	}
	e.handler.OnNotStored(NotStoredEvent{
		Error:       err,
		RecordCount: recordCount,
	})
}

func (e *eventEmitterWrapper) OnLogged(level, message string, size int) {
	if e.handler == nil {
		return
	}
	e.handler.OnLogged(LoggedEvent{Level: level, Message: message, Size: size})
}
