package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/autosync-project/autosync/pkg/logging"
)

// FSNotifier implements Notifier with fsnotify. fsnotify watches single
// directories, so every directory below the root is added, and directories
// created later are added as they appear.
type FSNotifier struct {
	Logger *logging.Logger
	// OnPanic, when set, receives a panic recovered from a Handler. The
	// registration keeps delivering events either way.
	OnPanic func(error)
}

// NewFSNotifier creates an FSNotifier. A nil logger discards output.
func NewFSNotifier(logger *logging.Logger) *FSNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FSNotifier{Logger: logger}
}

// Watch starts a recursive watch of root delivering events to h.
func (n *FSNotifier) Watch(root string, h Handler) (Handle, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}

	w := &fsHandle{
		root:    filepath.Clean(root),
		fsw:     fsw,
		handler: h,
		logger:  n.Logger,
		onPanic: n.OnPanic,
		dirs:    make(map[string]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := w.addTree(w.root, nil); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %s", root)
	}

	go w.loop()
	return w, nil
}

type fsHandle struct {
	root    string
	fsw     *fsnotify.Watcher
	handler Handler
	logger  *logging.Logger
	onPanic func(error)

	// dirs is only touched by addTree during Watch and then by loop.
	dirs map[string]bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// addTree watches dir and every directory beneath it, appending the other
// entries it passes to files when files is non-nil. Only a failure on the
// root itself is returned; subdirectories that vanish or cannot be read are
// logged and skipped.
func (w *fsHandle) addTree(dir string, files *[]string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("Skipping unreadable directory", map[string]any{"path": path, "error": err.Error()})
			return nil
		}
		if !d.IsDir() {
			if files != nil {
				*files = append(*files, path)
			}
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			if path == dir {
				return addErr
			}
			w.logger.Warn("Failed to watch directory", map[string]any{"path": path, "error": addErr.Error()})
			return nil
		}
		w.dirs[path] = true
		return nil
	})
}

func (w *fsHandle) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

func (w *fsHandle) Wait() {
	<-w.done
}

func (w *fsHandle) loop() {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// A stop request that races with a pending event wins.
			select {
			case <-w.stop:
				return
			default:
			}
			for _, ev := range w.translate(event) {
				w.deliver(ev)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.ErrorErr("File watcher error", err, map[string]any{"root": w.root})
		}
	}
}

func (w *fsHandle) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic handling %s event for %s: %v", ev.Op, ev.Path, r)
			w.logger.ErrorErr("Event handler panicked", err, map[string]any{"root": w.root})
			if w.onPanic != nil {
				w.onPanic(err)
			}
		}
	}()
	w.handler.HandleEvent(ev)
}

// translate maps one fsnotify event to the events delivered for it. A
// directory that appears already populated (moved in, or filled before its
// watch was added) yields a created event for each file found inside it.
func (w *fsHandle) translate(event fsnotify.Event) []Event {
	var op string
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreated
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		op = OpModified
	case event.Has(fsnotify.Remove):
		op = OpDeleted
	case event.Has(fsnotify.Rename):
		op = OpMoved
	default:
		return nil
	}

	path := event.Name
	isDir := w.dirs[path]
	if info, err := os.Lstat(path); err == nil && info.IsDir() {
		isDir = true
	}

	events := []Event{{Op: op, Path: path, IsDir: isDir}}
	switch op {
	case OpCreated:
		if isDir && !w.dirs[path] {
			var files []string
			if err := w.addTree(path, &files); err != nil {
				w.logger.Warn("Failed to watch new directory", map[string]any{"path": path, "error": err.Error()})
			}
			for _, f := range files {
				events = append(events, Event{Op: OpCreated, Path: f})
			}
		}
	case OpDeleted, OpMoved:
		delete(w.dirs, path)
	}
	return events
}
