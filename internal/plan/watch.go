package plan

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events (an editor's
// write-then-rename save sequence, a git checkout touching many files at
// once) into a single Reconcile call.
const watchDebounce = 2 * time.Second

// Watcher observes the plans directory and triggers Reconcile on change.
// It is advisory only: a write through the gate never depends on the
// watcher having fired, since Lookup always reads the plans directory
// directly. Watcher exists so a long-running gatekeeper serve process
// picks up plans dropped on disk by an external approver without
// requiring a restart.
type Watcher struct {
	registry *Registry
	fsw      *fsnotify.Watcher
	log      *slog.Logger
	done     chan struct{}
}

// NewWatcher creates an fsnotify watcher on registry's plans directory.
// The caller must call Run (typically in its own goroutine) to start
// watching, and Close to release the underlying OS handle.
func NewWatcher(registry *Registry, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(registry.plansDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{registry: registry, fsw: fsw, log: log, done: make(chan struct{})}, nil
}

// Run blocks, debouncing filesystem events and calling Reconcile after
// each quiet period. It returns when Close is called.
func (w *Watcher) Run() {
	var pending *time.Timer
	reconcile := func() {
		report, err := w.registry.Reconcile()
		if err != nil {
			w.log.Error("watch reconcile failed", "error", err)
			return
		}
		if len(report.AutoAdded) > 0 || len(report.Mismatched) > 0 {
			w.log.Info("watch reconcile",
				"auto_added", len(report.AutoAdded),
				"mismatched", len(report.Mismatched))
		}
	}

	for {
		select {
		case <-w.done:
			if pending != nil {
				pending.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".md" {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(watchDebounce, reconcile)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Close stops Run and releases the fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
