package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/bulkship/internal/adapters/fs"
	"github.com/bft-labs/bulkship/internal/adapters/source"
	"github.com/bft-labs/bulkship/internal/cliconfig"
	"github.com/bft-labs/bulkship/pkg/bulkship"
	"github.com/bft-labs/bulkship/pkg/log"
)

const helpDescription = `
Ship log lines to an Elasticsearch-compatible bulk endpoint.

Lines are read from stdin, or followed from --file across rotations.
JSON lines keep their fields; plain lines become the message.
Batches the endpoint cannot take right now are buffered on disk and
retransmitted later, shared by every bulkship using the same storage
directory and destination.
`

var exampleUsage = strings.TrimSpace(`
  tail -F app.log | bulkship --token <token>
  bulkship --token <token> --file /var/log/app.log --url http://localhost:9200
  bulkship queue stat --token <token>
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// loadConfig layers file, then environment, under explicitly set flags.
// Validation is left to the command.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	return cliconfig.ApplyEnvConfig(cfg, changed)
}

func newLogger(cfg cliconfig.Config, console bool) (*log.ZerologAdapter, error) {
	return log.NewZerolog(log.Options{Level: cfg.LogLevel, Console: console})
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var (
		cfgPath   string
		console   bool
		maxBatch  string
		pollFiles bool
	)

	root := &cobra.Command{
		Use:           "bulkship",
		Short:         "Ship log lines to a bulk endpoint with a durable disk buffer",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if maxBatch != "" {
				n, err := cliconfig.ParseSize(maxBatch)
				if err != nil {
					return fmt.Errorf("parse max-batch-bytes: %w", err)
				}
				cfg.MaxBatchBytes = n
			}
			return loadConfig(cmd, &cfg, cfgPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg, console)
			if err != nil {
				return err
			}
			return ship(cmd.Context(), cfg, logger, pollFiles)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.bulkship/config.toml)")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "destination token, used as the index name")
	flags.StringVar(&cfg.URL, "url", cfg.URL, "bulk receiver URL")
	flags.StringVar(&cfg.Type, "type", cfg.Type, "default document type")
	flags.BoolVar(&cfg.UseIndexInBulkURL, "use-index-in-url", cfg.UseIndexInBulkURL, "post to /{token}/_bulk")
	flags.StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "parent directory of the disk buffer")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for followed-file offsets (defaults to storage-dir/state)")
	root.Flags().StringVar(&cfg.File, "file", cfg.File, "follow this file instead of reading stdin")
	root.Flags().BoolVar(&pollFiles, "poll", false, "poll the followed file instead of using inotify")
	root.Flags().IntVar(&cfg.BulkSize, "bulk-size", cfg.BulkSize, "records per bulk request")
	root.Flags().StringVar(&maxBatch, "max-batch-bytes", "", "maximum bytes per bulk request, e.g. 10MiB")
	root.Flags().DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "send a partial batch after this idle time")
	root.Flags().DurationVar(&cfg.RetransmitInterval, "retransmit-interval", cfg.RetransmitInterval, "interval between retransmissions of buffered batches")
	root.Flags().IntVar(&cfg.MaxStoredRequests, "max-stored-requests", cfg.MaxStoredRequests, "buffered batches kept on disk before the oldest are evicted")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	root.Flags().BoolVar(&cfg.Gzip, "gzip", cfg.Gzip, "gzip request bodies")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	root.Flags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
	root.Flags().BoolVar(&console, "console", false, "human-readable log output")

	root.AddCommand(newQueueCommand(&cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fallback, _ := log.NewZerolog(log.Options{})
		fallback.Error("bulkship", log.Err(err))
		stop()
		os.Exit(1)
	}
}

func ship(ctx context.Context, cfg cliconfig.Config, logger *log.ZerologAdapter, poll bool) error {
	logCfg := cfg
	if logCfg.Token != "" {
		logCfg.Token = "*****"
	}
	logger.Info("configuration", log.Any("config", logCfg))

	s, err := bulkship.New(cfg.Library(),
		bulkship.WithLogger(logger),
		bulkship.WithEventHandler(&logEvents{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("create shipper: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.Start(runCtx); err != nil {
		return fmt.Errorf("start shipper: %w", err)
	}

	handle := func(line string) {
		level, msg, fields := source.ParseLine(line)
		if err := s.Log(level, msg, fields); err != nil {
			logger.Warn("drop line", log.Err(err))
		}
	}

	var readErr error
	if cfg.File != "" {
		f := &source.Follower{
			Path:    cfg.File,
			Offsets: fs.NewOffsetFile(cfg.StateDir, cfg.File),
			Poll:    poll,
			Logger:  logger,
		}
		readErr = f.Run(runCtx, handle)
	} else {
		readErr = source.ReadLines(runCtx, os.Stdin, handle)
	}
	if errors.Is(readErr, context.Canceled) {
		readErr = nil
	}
	if ctx.Err() != nil {
		logger.Info("received signal, stopping...")
	}

	if err := s.Stop(); err != nil {
		if !errors.Is(err, bulkship.ErrNotRunning) {
			return fmt.Errorf("stop shipper: %w", err)
		}
		// A signal cancelled the shipper first; wait for its final flush.
		waitStopped(s, stopWait)
	}
	logger.Info("stopped", log.Int("buffered", s.QueueStats().StoredFiles))
	return readErr
}

const stopWait = 30 * time.Second

func waitStopped(s *bulkship.Shipper, timeout time.Duration) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		switch s.Status() {
		case bulkship.StateStopped, bulkship.StateCrashed:
			return
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return
		}
	}
}

type logEvents struct {
	bulkship.BaseEventHandler
	logger log.Logger
}

func (e *logEvents) OnSendError(ev bulkship.SendErrorEvent) {
	e.logger.Warn("send failed",
		log.Err(ev.Error),
		log.Int("records", ev.RecordCount),
		log.Bool("buffered", ev.Retryable),
	)
}

func (e *logEvents) OnNotStored(ev bulkship.NotStoredEvent) {
	e.logger.Error("records dropped",
		log.Err(ev.Error),
		log.Int("records", ev.RecordCount),
	)
}
