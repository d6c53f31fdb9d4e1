package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

// ShutdownTimeout is the default time Shutdown waits for the run function.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a shipper.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// allowed lists the legal successors of every state.
var allowed = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// StateChangeEmitter is called when the lifecycle state changes.
type StateChangeEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle runs one background function at a time and tracks its state.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	logger  ports.Logger
	emitter StateChangeEmitter
}

// NewLifecycle creates a lifecycle in StateStopped.
func NewLifecycle(logger ports.Logger, emitter StateChangeEmitter) *Lifecycle {
	return &Lifecycle{
		state:   StateStopped,
		logger:  logger,
		emitter: emitter,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// TransitionTo moves to next if the transition is legal.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if err := checkTransition(prev, next); err != nil {
		l.mu.Unlock()
		return err
	}
	l.state = next
	l.mu.Unlock()

	l.notify(prev, next, reason)
	return nil
}

func checkTransition(from, to State) error {
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	if from == StateStopped || from == StateCrashed {
		return domain.ErrNotRunning
	}
	return domain.ErrAlreadyRunning
}

func (l *Lifecycle) notify(prev, next State, reason string) {
	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
}

// Launch starts run in a goroutine with a context derived from parent.
// It fails with ErrAlreadyRunning unless the lifecycle is stopped or
// crashed. A run that returns an error other than cancellation leaves the
// lifecycle crashed; a clean return stops it.
func (l *Lifecycle) Launch(parent context.Context, run func(ctx context.Context) error) error {
	l.mu.Lock()
	prev := l.state
	if err := checkTransition(prev, StateStarting); err != nil {
		l.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.state = StateStarting
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()
	l.notify(prev, StateStarting, "start requested")

	go func() {
		defer close(done)
		defer cancel()

		if err := l.TransitionTo(StateRunning, "shipper running"); err != nil {
			// Shutdown won the race.
			return
		}

		err := run(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			l.logger.Error("shipper error", ports.Err(err))
			_ = l.TransitionTo(StateCrashed, err.Error())
		case l.State() == StateRunning:
			_ = l.TransitionTo(StateStopping, "context done")
			_ = l.TransitionTo(StateStopped, "run returned")
		}
	}()
	return nil
}

// Shutdown cancels the running function and waits up to timeout for it to
// return. It returns ErrShutdownTimeout and leaves the lifecycle crashed
// when the wait expires.
func (l *Lifecycle) Shutdown(timeout time.Duration) error {
	l.mu.Lock()
	prev := l.state
	if prev != StateStarting && prev != StateRunning {
		l.mu.Unlock()
		return domain.ErrNotRunning
	}
	l.state = StateStopping
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	l.notify(prev, StateStopping, "stop requested")

	cancel()

	select {
	case <-done:
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit", ports.Duration("timeout", timeout))
		_ = l.TransitionTo(StateCrashed, "shutdown timeout")
		return domain.ErrShutdownTimeout
	}

	if l.State() == StateStopping {
		_ = l.TransitionTo(StateStopped, "graceful shutdown")
	}
	return nil
}
