package diskqueue

import (
	"time"

	"github.com/bft-labs/bulkship/internal/ports"
)

// Defaults and limits for queue configuration.
const (
	DefaultMaxStoredRequests  = 1000
	DefaultRetransmitInterval = 60 * time.Second
	DefaultSyncInterval       = time.Minute

	minStoredRequests  = 1
	maxStoredRequests  = 100000
	minInterval        = 100 * time.Millisecond
	maxInterval        = time.Hour
	watchDebounceDelay = 100 * time.Millisecond
)

// Config configures a Queue. The first caller of Registry.GetOrCreate for a
// directory decides the configuration of the shared queue.
type Config struct {
	// MaxStoredRequests bounds the number of stored batches.
	MaxStoredRequests int

	// RetransmitInterval is the period of the retransmit cycle.
	RetransmitInterval time.Duration

	// SyncInterval is the period of the directory resync.
	SyncInterval time.Duration

	// Watch enables an fsnotify watch that resyncs when other instances
	// add batches to the directory.
	Watch bool

	Locker Locker
	Logger ports.Logger
	Events EventHandler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxStoredRequests:  DefaultMaxStoredRequests,
		RetransmitInterval: DefaultRetransmitInterval,
		SyncInterval:       DefaultSyncInterval,
		Watch:              true,
	}
}

// SetDefaults fills zero values and clamps the numeric settings.
func (c *Config) SetDefaults() {
	if c.MaxStoredRequests <= 0 {
		c.MaxStoredRequests = DefaultMaxStoredRequests
	}
	c.MaxStoredRequests = clampInt(c.MaxStoredRequests, minStoredRequests, maxStoredRequests)

	if c.RetransmitInterval <= 0 {
		c.RetransmitInterval = DefaultRetransmitInterval
	}
	c.RetransmitInterval = clampDuration(c.RetransmitInterval, minInterval, maxInterval)

	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	c.SyncInterval = clampDuration(c.SyncInterval, minInterval, maxInterval)

	if c.Locker == nil {
		c.Locker = RenameLocker{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.Events == nil {
		c.Events = NoopEvents{}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...ports.Field) {}
func (noopLogger) Info(string, ...ports.Field)  {}
func (noopLogger) Warn(string, ...ports.Field)  {}
func (noopLogger) Error(string, ...ports.Field) {}
