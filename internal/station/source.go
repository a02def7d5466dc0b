package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFrame reports an empty poll: the source had nothing to hand out.
// The caller treats it as a no-op and polls again.
var ErrNoFrame = errors.New("no frame available")

// ErrSourceClosed reports that the source shut down and will never produce
// another frame. Terminal, unlike ErrNoFrame.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource hands out captured camera frames, one at a time.
type FrameSource interface {
	// NextFrame blocks until a frame is available or the context is done.
	NextFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// SpoolSource consumes frames from a spool directory. A capture process
// drops image files there; each file is read once, deleted, and handed to
// the caller. Files present at startup are drained in name order before
// any watched arrivals.
type SpoolSource struct {
	dir     string
	watcher *fsnotify.Watcher
	frames  chan string
	logger  *slog.Logger

	// settle gives the producer time to finish writing after the create
	// event fires.
	settle time.Duration
}

func NewSpoolSource(dir string, logger *slog.Logger) (*SpoolSource, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start spool watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch spool dir %s: %w", dir, err)
	}

	s := &SpoolSource{
		dir:     dir,
		watcher: watcher,
		frames:  make(chan string, 64),
		logger:  logger,
		settle:  100 * time.Millisecond,
	}

	s.enqueueExisting()
	go s.forwardEvents()

	return s, nil
}

// NextFrame pops the next spooled frame and removes its file. A frame that
// vanished or could not be read resolves as ErrNoFrame.
func (s *SpoolSource) NextFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case path, ok := <-s.frames:
		if !ok {
			return nil, ErrSourceClosed
		}

		if s.settle > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.settle):
			}
		}

		data, err := os.ReadFile(path)
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			s.logger.Warn("failed to remove consumed frame",
				slog.String("path", path), slog.String("error", removeErr.Error()))
		}
		if err != nil || len(data) == 0 {
			return nil, ErrNoFrame
		}

		return data, nil
	}
}

func (s *SpoolSource) Close() error {
	return s.watcher.Close()
}

func (s *SpoolSource) enqueueExisting() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to scan spool dir", slog.String("error", err.Error()))
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && isFrameFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		s.offer(filepath.Join(s.dir, name))
	}
}

func (s *SpoolSource) forwardEvents() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				close(s.frames)
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if !isFrameFile(filepath.Base(event.Name)) {
				continue
			}
			s.offer(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				close(s.frames)
				return
			}
			s.logger.Warn("spool watcher error", slog.String("error", err.Error()))
		}
	}
}

// offer drops the frame when the queue is full; the capture side outran
// verification and stale frames are worthless anyway.
func (s *SpoolSource) offer(path string) {
	select {
	case s.frames <- path:
	default:
		s.logger.Warn("spool queue full, dropping frame", slog.String("path", path))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove dropped frame", slog.String("path", path))
		}
	}
}

func isFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
