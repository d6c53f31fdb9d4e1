package ports

import "github.com/bft-labs/bulkship/pkg/log"

// Logger and Field are shared with the public log package so that a
// caller-supplied logger is used without wrapping.
type (
	Logger = log.Logger
	Field  = log.Field
)

// Field constructors.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Uint64   = log.Uint64
	Bool     = log.Bool
	Duration = log.Duration
	Size     = log.Size
	Err      = log.Err
	Any      = log.Any
)
