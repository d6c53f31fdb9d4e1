package diskqueue

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// BulkSuffix marks a stored batch that is eligible for retransmission.
	BulkSuffix = ".bulk"

	// LockSuffix is appended to a stored batch while it is being retransmitted.
	LockSuffix = ".lock"

	// tmpSuffix marks a batch that is still being written.
	tmpSuffix = ".tmp"
)

// StaleLockWindow is the longest a single bulk request is expected to take.
// Lock files older than this are considered abandoned.
const StaleLockWindow = 5 * time.Minute

// fileName returns the stored name for a batch.
func fileName(id uint64, created time.Time) string {
	return fmt.Sprintf("%d_%d%s", id, created.UnixMilli(), BulkSuffix)
}

// storedName is a parsed stored-batch file name.
type storedName struct {
	path    string
	id      uint64
	created int64
}

// parseStoredName parses {id}_{millis}.bulk. Names that do not follow the
// pattern still parse, with zero id and timestamp, so foreign files are
// retransmitted first rather than ignored.
func parseStoredName(path string) storedName {
	n := storedName{path: path}
	base := strings.TrimSuffix(filepath.Base(path), BulkSuffix)
	idPart, tsPart, ok := strings.Cut(base, "_")
	if !ok {
		return n
	}
	if id, err := strconv.ParseUint(idPart, 10, 64); err == nil {
		n.id = id
	}
	if ts, err := strconv.ParseInt(tsPart, 10, 64); err == nil {
		n.created = ts
	}
	return n
}

// less orders stored batches oldest first.
func (n storedName) less(o storedName) bool {
	if n.created != o.created {
		return n.created < o.created
	}
	if n.id != o.id {
		return n.id < o.id
	}
	return n.path < o.path
}

// lockedPath returns the in-flight name for a stored path.
func lockedPath(path string) string {
	return path + LockSuffix
}

// storedPath strips the lock suffix, if any.
func storedPath(path string) string {
	return strings.TrimSuffix(path, LockSuffix)
}
