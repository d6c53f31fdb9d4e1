// Package log provides the logging abstraction used throughout bulkship.
//
// The Logger interface can be implemented on top of any logging library.
// A zerolog adapter is provided for applications and the CLI, and a no-op
// logger is the library default so that an embedded shipper stays silent
// unless asked otherwise.
//
//	logger, err := log.NewZerolog(log.Options{Level: "debug", Console: true})
//	if err != nil {
//		return err
//	}
//	shipper, err := bulkship.New(cfg, bulkship.WithLogger(logger))
package log
