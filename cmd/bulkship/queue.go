package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bft-labs/bulkship/internal/cliconfig"
	"github.com/bft-labs/bulkship/internal/diskqueue"
)

func newQueueCommand(cfg *cliconfig.Config) *cobra.Command {
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the disk buffer",
	}
	queue.AddCommand(&cobra.Command{
		Use:   "stat",
		Short: "List buffered batches",
		Long: strings.TrimSpace(`
List the batches buffered on disk. With --token only the buffer of that
destination is shown; otherwise every buffer under --storage-dir.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := cfg.Library()
			lib.SetDefaults()

			dirs := []string{}
			if lib.Token != "" {
				dirs = append(dirs, lib.QueueDir())
			} else {
				entries, err := os.ReadDir(lib.StorageDir)
				if err != nil && !os.IsNotExist(err) {
					return err
				}
				for _, e := range entries {
					if e.IsDir() {
						dirs = append(dirs, filepath.Join(lib.StorageDir, e.Name()))
					}
				}
			}
			return printQueueStat(cmd.OutOrStdout(), dirs, time.Now())
		},
	})
	return queue
}

type queueFile struct {
	name   string
	size   int64
	mod    time.Time
	locked bool
}

func scanQueueDir(dir string) ([]queueFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []queueFile
	for _, e := range entries {
		name := e.Name()
		locked := strings.HasSuffix(name, diskqueue.BulkSuffix+diskqueue.LockSuffix)
		if !locked && !strings.HasSuffix(name, diskqueue.BulkSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, queueFile{name: name, size: info.Size(), mod: info.ModTime(), locked: locked})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	return files, nil
}

func printQueueStat(out io.Writer, dirs []string, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, dir := range dirs {
		files, err := scanQueueDir(dir)
		if err != nil {
			return err
		}
		var total int64
		locked := 0
		for _, f := range files {
			total += f.size
			if f.locked {
				locked++
			}
		}
		fmt.Fprintf(w, "%s\t%d files\t%d locked\t%s\n", dir, len(files), locked, humanize.IBytes(uint64(total)))
		for _, f := range files {
			state := "stored"
			if f.locked {
				state = "locked"
				if now.Sub(f.mod) > diskqueue.StaleLockWindow {
					state = "stale"
				}
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.name, state, humanize.IBytes(uint64(f.size)), humanize.RelTime(f.mod, now, "ago", "from now"))
		}
	}
	return w.Flush()
}
