// Package watcher reports changes to a config file so display settings can
// be reloaded without restarting the server.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/costar/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeWrite ChangeType = iota
	ChangeTypeCreate
	ChangeTypeRemove
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeWrite:
		return "write"
	case ChangeTypeCreate:
		return "create"
	case ChangeTypeRemove:
		return "remove"
	}
	return fmt.Sprintf("ChangeType(%d)", int(t))
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches a set of files. It watches their parent directories
// so that editors replacing a file by rename are still seen.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	files   []string
	events  chan ChangeEvent
	done    chan struct{}
}

// NewFileWatcher creates a watcher for the given files.
func NewFileWatcher(files ...string) (*FileWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		events:  make(chan ChangeEvent, 100),
		done:    make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		fw.files = append(fw.files, abs)
	}
	return fw, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for _, f := range fw.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			fw.watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	logging.Info("started watching config", "files", fw.files)
	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.done)
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !slices.Contains(fw.files, filepath.Clean(event.Name)) {
				continue
			}

			var typ ChangeType
			switch {
			case event.Has(fsnotify.Write):
				typ = ChangeTypeWrite
			case event.Has(fsnotify.Create):
				typ = ChangeTypeCreate
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				typ = ChangeTypeRemove
			default:
				continue
			}

			logging.TraceContext(ctx, "config file event", "path", event.Name, "op", event.Op.String())
			select {
			case fw.events <- ChangeEvent{Type: typ, Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events. It is closed when the
// watcher stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Done is closed once the watcher released its resources.
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}

// Watch calls onChange after path changed and settled for quiet. It blocks
// until ctx is cancelled.
func Watch(ctx context.Context, path string, quiet, maxWait time.Duration, onChange func(ChangeEvent)) error {
	fw, err := NewFileWatcher(path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	d := NewDebouncer(fw.Events(), quiet, maxWait)
	d.Start(ctx)
	for event := range d.Output() {
		if event.Type == ChangeTypeRemove {
			logging.Warn("config file removed, keeping current settings", "path", path)
			continue
		}
		onChange(event)
	}
	<-fw.Done()
	return ctx.Err()
}
