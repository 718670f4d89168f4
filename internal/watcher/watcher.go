// Package watcher corrects tables as they arrive in watched directories.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig contains watcher settings.
type WatchConfig struct {
	DebounceSeconds   int      // Delay before processing (default: 2)
	StableThresholdMs int      // Time the size must stay unchanged (default: 1000)
	IgnorePatterns    []string // Glob patterns to ignore (e.g., "*.tmp", "*.part")
}

// DefaultWatchConfig returns a WatchConfig with sensible defaults.
func DefaultWatchConfig() *WatchConfig {
	return &WatchConfig{
		DebounceSeconds:   2,
		StableThresholdMs: 1000,
		IgnorePatterns:    DefaultIgnorePatterns(),
	}
}

// WatchSummary contains stats from the watch session.
type WatchSummary struct {
	TablesPatched   int
	TablesUnchanged int
	TablesFailed    int
	TablesSkipped   int // Ignored names, tables that never settled and tables pending at Stop
	Duration        time.Duration
}

// TableHandler corrects one table. patched reports whether the table was
// rewritten.
type TableHandler func(path string) (patched bool, err error)

// ErrorHandler receives errors from the file system watcher and from the
// table handler.
type ErrorHandler func(path string, err error)

// Watcher monitors directories for new or rewritten tables. Tables are
// handled one at a time, after their events settle and the whole table has
// arrived.
type Watcher struct {
	handler      TableHandler
	errorHandler ErrorHandler
	fsWatcher    *fsnotify.Watcher
	fileFilter   *FileFilter
	pending      *pendingTables
	settler      *settler
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	wg           sync.WaitGroup
	startTime    time.Time

	// handleMu serialises the handler.
	handleMu sync.Mutex

	mu              sync.Mutex
	tablesPatched   int
	tablesUnchanged int
	tablesFailed    int
	tablesSkipped   int
}

// New creates a new Watcher with the given configuration.
// If config is nil, default configuration is used.
func New(config *WatchConfig, handler TableHandler) *Watcher {
	if config == nil {
		config = DefaultWatchConfig()
	}
	w := &Watcher{
		handler:    handler,
		fileFilter: NewFileFilter(config.IgnorePatterns),
		settler:    newSettler(time.Duration(config.StableThresholdMs) * time.Millisecond),
		done:       make(chan struct{}),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.pending = newPendingTables(time.Duration(config.DebounceSeconds)*time.Second, w.settled)
	return w
}

// SetErrorHandler installs the callback for errors. Call it before Start.
func (w *Watcher) SetErrorHandler(h ErrorHandler) {
	w.errorHandler = h
}

// Start begins watching dirs. The watcher runs until Stop is called.
func (w *Watcher) Start(dirs []string) error {
	var err error
	w.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			w.fsWatcher.Close()
			return err
		}
		if err := w.fsWatcher.Add(absDir); err != nil {
			w.fsWatcher.Close()
			return err
		}
	}

	w.startTime = time.Now()
	w.done = make(chan struct{})
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop shuts the watcher down and returns a summary of the session. A
// table being handled is finished first; pending ones are dropped.
func (w *Watcher) Stop() *WatchSummary {
	close(w.done)
	w.wg.Wait()

	dropped := w.pending.stop()
	w.cancel()

	// Wait for a handler already running.
	w.handleMu.Lock()
	w.handleMu.Unlock()

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.tablesSkipped += dropped
	return &WatchSummary{
		TablesPatched:   w.tablesPatched,
		TablesUnchanged: w.tablesUnchanged,
		TablesFailed:    w.tablesFailed,
		TablesSkipped:   w.tablesSkipped,
		Duration:        time.Since(w.startTime),
	}
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handleFileEvent(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.reportError("", err)
		}
	}
}

// handleFileEvent schedules the table an event concerns for handling once
// its events settle. Other names are dropped without being counted.
func (w *Watcher) handleFileEvent(path string) {
	table, ok := tableFor(path)
	if !ok {
		return
	}
	if w.fileFilter.ShouldIgnore(table) {
		w.mu.Lock()
		w.tablesSkipped++
		w.mu.Unlock()
		return
	}
	w.pending.touch(table)
}

// settled runs on the timer goroutine of the pending table.
func (w *Watcher) settled(path string) {
	if err := w.settler.wait(w.ctx, path); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.mu.Lock()
		w.tablesSkipped++
		w.mu.Unlock()
		if !errors.Is(err, ErrTableGone) {
			w.reportError(path, err)
		}
		return
	}
	w.handle(path)
}

func (w *Watcher) handle(path string) {
	w.handleMu.Lock()
	defer w.handleMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	if w.handler == nil {
		w.mu.Lock()
		w.tablesUnchanged++
		w.mu.Unlock()
		return
	}

	patched, err := w.handler(path)
	w.mu.Lock()
	switch {
	case err != nil:
		w.tablesFailed++
	case patched:
		w.tablesPatched++
	default:
		w.tablesUnchanged++
	}
	w.mu.Unlock()

	if err != nil {
		w.reportError(path, err)
	}
}

func (w *Watcher) reportError(path string, err error) {
	if w.errorHandler != nil {
		w.errorHandler(path, err)
	}
}

