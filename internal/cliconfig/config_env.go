package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (BULKSHIP_*, with the LOGSENE_* names accepted as fallbacks). It
// respects flags that have been explicitly set (changed map).
// Interval variables accept a duration or a number of milliseconds.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("token", firstEnv("BULKSHIP_TOKEN", "LOGSENE_TOKEN"), &cfg.Token)
	s.setString("url", firstEnv("BULKSHIP_URL", "LOGSENE_URL"), &cfg.URL)
	s.setString("type", os.Getenv("BULKSHIP_TYPE"), &cfg.Type)
	s.setString("storage-dir", firstEnv("BULKSHIP_STORAGE_DIR", "LOGSENE_TMP_DIR"), &cfg.StorageDir)
	s.setString("state-dir", os.Getenv("BULKSHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("file", os.Getenv("BULKSHIP_FILE"), &cfg.File)
	s.setString("log-level", os.Getenv("BULKSHIP_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("bulk-size", firstEnv("BULKSHIP_BULK_SIZE", "LOGSENE_BULK_SIZE"), &cfg.BulkSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-stored-requests", firstEnv("BULKSHIP_MAX_STORED_REQUESTS", "LOGSENE_MAX_STORED_REQUESTS"), &cfg.MaxStoredRequests); err != nil {
		return err
	}
	if err := s.setSize("max-batch-bytes", os.Getenv("BULKSHIP_MAX_BATCH_BYTES"), &cfg.MaxBatchBytes); err != nil {
		return err
	}
	if err := s.setMillis("flush-interval", firstEnv("BULKSHIP_FLUSH_INTERVAL", "LOGSENE_LOG_INTERVAL"), &cfg.FlushInterval); err != nil {
		return err
	}
	if err := s.setMillis("retransmit-interval", firstEnv("BULKSHIP_RETRANSMIT_INTERVAL", "LOGSENE_DISK_BUFFER_INTERVAL"), &cfg.RetransmitInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("BULKSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setBoolFromString("use-index-in-url", firstEnv("BULKSHIP_USE_INDEX_IN_BULK_URL", "LOGSENE_USE_INDEX_IN_BULK_URL"), &cfg.UseIndexInBulkURL)
	s.setBoolFromString("gzip", os.Getenv("BULKSHIP_GZIP"), &cfg.Gzip)
	s.setBoolFromString("debug", firstEnv("BULKSHIP_DEBUG", "DEBUG_LOGSENE_DISK_BUFFER"), &cfg.Debug)

	return nil
}
