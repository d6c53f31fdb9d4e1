package diskqueue

// EventHandler receives notifications about queue operations. Failures
// inside the queue are reported here rather than returned from the loops.
// Handlers are called synchronously and should return quickly.
type EventHandler interface {
	// OnStored is called after a batch has been written.
	OnStored(path string, count int)

	// OnRemoved is called after a stored batch has been deleted.
	OnRemoved(path string)

	// OnEvicted is called when a batch is dropped to respect the capacity bound.
	OnEvicted(path string)

	// OnStoreError is called when a batch could not be written.
	OnStoreError(err error)

	// OnRetransmitError is called when a stored batch could not be locked,
	// read or decoded.
	OnRetransmitError(path string, err error)

	// OnReclaimed is called when a stale lock file is returned to the queue.
	OnReclaimed(path string)
}

// NoopEvents ignores all events.
type NoopEvents struct{}

func (NoopEvents) OnStored(string, int)            {}
func (NoopEvents) OnRemoved(string)                {}
func (NoopEvents) OnEvicted(string)                {}
func (NoopEvents) OnStoreError(error)              {}
func (NoopEvents) OnRetransmitError(string, error) {}
func (NoopEvents) OnReclaimed(string)              {}
