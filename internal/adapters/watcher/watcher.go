// Package watcher reloads location exports when files in the export
// directory change.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/mandor/internal/ports/output"
)

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a debounced change of one export file.
type Event struct {
	Path      string
	Operation Operation
}

// Handler is called once per debounced event.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
	// Filter selects the files to watch; defaults to export files.
	Filter func(path string) bool
}

// Watcher watches directories for export file changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	cfg       Config

	mu      sync.Mutex
	pending map[string]*pending
	wg      sync.WaitGroup
}

type pending struct {
	op    Operation
	timer *time.Timer
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Filter == nil {
		cfg.Filter = output.IsExportFile
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		cfg:       cfg,
		pending:   make(map[string]*pending),
	}, nil
}

// Start adds the configured paths and processes events until ctx is done or
// Stop is called. Paths that cannot be watched are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.cfg.Paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.eventLoop(ctx)
	}()
	return nil
}

// Stop closes the underlying watcher and cancels pending events.
func (w *Watcher) Stop() error {
	err := w.fsWatcher.Close()

	w.mu.Lock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.record(ctx, event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// record folds an fsnotify event into the pending event for its path and
// restarts the debounce timer.
func (w *Watcher) record(ctx context.Context, event fsnotify.Event) {
	if !w.cfg.Filter(event.Name) {
		return
	}
	op, ok := toOperation(event.Op)
	if !ok {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, exists := w.pending[event.Name]; exists {
		p.op = coalesce(p.op, op)
		p.timer.Reset(w.cfg.Debounce)
		return
	}

	path := event.Name
	w.pending[path] = &pending{
		op:    op,
		timer: time.AfterFunc(w.cfg.Debounce, func() { w.fire(ctx, path) }),
	}
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if !ok || ctx.Err() != nil {
		return
	}

	w.logger.Info("processing file event", "path", path, "operation", p.op.String())

	if err := w.handler(ctx, Event{Path: path, Operation: p.op}); err != nil {
		w.logger.Error("handler error",
			"path", path,
			"operation", p.op.String(),
			"error", err,
		)
	}
}

// coalesce merges a new operation into a pending one. Deletes win, except
// that a file recreated after a delete is a create.
func coalesce(current, next Operation) Operation {
	switch {
	case current == OpDelete && next == OpCreate:
		return OpCreate
	case next == OpDelete:
		return OpDelete
	case current == OpCreate:
		return OpCreate
	default:
		return next
	}
}

// toOperation maps an fsnotify op; chmod-only events are ignored.
func toOperation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	default:
		return 0, false
	}
}

// AddPath adds a directory to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}

	w.logger.Info("watching directory", "path", absPath)
	return nil
}

// RemovePath stops watching a directory.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return w.fsWatcher.Remove(absPath)
}
