package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/hpcloud/tail"

	"github.com/bft-labs/bulkship/internal/ports"
)

// DefaultSaveInterval is how often the read offset is persisted.
const DefaultSaveInterval = 5 * time.Second

// OffsetStore persists the read position of a followed file.
type OffsetStore interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, offset int64) error
}

// Follower follows a growing file, surviving rotation, and resumes from
// the last saved offset.
type Follower struct {
	Path         string
	Offsets      OffsetStore
	SaveInterval time.Duration
	// Poll uses stat polling instead of inotify.
	Poll   bool
	Logger ports.Logger
}

// position is the byte offset just past the last handled line of the
// file currently under Path.
type position struct {
	offset int64
	file   os.FileInfo
}

// Run delivers every line to handle until ctx is cancelled. The saved
// offset only covers lines handle has returned for.
func (f *Follower) Run(ctx context.Context, handle func(line string)) error {
	start := f.startOffset(ctx)
	pos := &position{offset: start}
	if fi, err := os.Stat(f.Path); err == nil {
		pos.file = fi
	}

	t, err := tail.TailFile(f.Path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     f.Poll,
		Location: &tail.SeekInfo{Offset: start, Whence: io.SeekStart},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	interval := f.SaveInterval
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	save := time.NewTicker(interval)
	defer save.Stop()

	f.Logger.Info("following file", ports.String("file", f.Path), ports.Int64("offset", start))

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				f.saveOffset(pos)
				return t.Err()
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				f.Logger.Warn("read error", ports.String("file", f.Path), ports.Err(line.Err))
				continue
			}
			handle(line.Text)
			pos.offset += int64(len(line.Text)) + 1

		case <-save.C:
			f.saveOffset(pos)

		case <-ctx.Done():
			f.saveOffset(pos)
			_ = t.Stop()
			return nil
		}
	}
}

// startOffset returns the saved offset, or 0 when the file is missing or
// now shorter than the saved position (truncated or replaced).
func (f *Follower) startOffset(ctx context.Context) int64 {
	if f.Offsets == nil {
		return 0
	}
	off, err := f.Offsets.Load(ctx)
	if err != nil {
		f.Logger.Warn("ignoring saved offset", ports.String("file", f.Path), ports.Err(err))
		return 0
	}
	fi, err := os.Stat(f.Path)
	if err != nil || fi.Size() < off {
		return 0
	}
	return off
}

// saveOffset persists pos. When the file under Path was rotated or
// truncated, counting restarts at 0: lines of the new file handled so far
// are read again after a restart rather than skipped.
func (f *Follower) saveOffset(pos *position) {
	if f.Offsets == nil {
		return
	}
	if fi, err := os.Stat(f.Path); err == nil {
		if pos.file != nil && (!os.SameFile(pos.file, fi) || fi.Size() < pos.offset) {
			f.Logger.Info("followed file was replaced", ports.String("file", f.Path))
			pos.offset = 0
		}
		pos.file = fi
	}
	if err := f.Offsets.Save(context.Background(), pos.offset); err != nil {
		f.Logger.Warn("saving offset failed", ports.String("file", f.Path), ports.Err(err))
	}
}
