// Package bulkship ships structured log records to a bulk ingestion
// endpoint.
//
// Records are accumulated in memory and flushed by count, size or idle
// time. A batch the endpoint cannot take right now is written to a disk
// buffer and retried on a schedule; a batch it rejects for good is dropped
// and reported. The disk buffer is bounded: under a long outage the oldest
// batches are evicted first.
//
//	cfg := bulkship.DefaultConfig()
//	cfg.Token = os.Getenv("BULKSHIP_TOKEN")
//	s, err := bulkship.New(cfg, bulkship.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop()
//	s.Log("info", "user signed in", map[string]any{"user": "ann"})
//
// Shippers that resolve to the same storage directory share one disk
// buffer through a Registry. The first of them is the primary and is the
// only one that retransmits buffered batches.
package bulkship
