// Package configwatcher watches the shell's config file and reports changes,
// so settings such as the log level can be applied without a restart.
package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

// Config holds configuration options for the config watcher.
type Config struct {
	// Path is the config file to watch. Its directory must exist.
	Path string

	// DebounceDelay is the delay to wait after a file change before reporting.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnChange is called with Path after the file was written or replaced.
	OnChange func(path string)

	Logger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// Watcher monitors a single config file.
type Watcher struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration
	onChange      func(string)
	logger        log.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	stopped  bool
}

// New creates a new config watcher with the given configuration.
func New(cfg Config) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(string) {}
	}

	return &Watcher{
		path:          filepath.Clean(cfg.Path),
		debounceDelay: cfg.DebounceDelay,
		onChange:      cfg.OnChange,
		logger:        cfg.Logger,
	}
}

// Start begins watching. It returns an error if the watch cannot be set up.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "." || w.path == "" {
		return fmt.Errorf("config watcher: no config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: create watcher: %w", err)
	}

	// Watch the directory (not the file): editors often replace the file,
	// which drops a watch on the file itself.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("config watcher started", log.String("path", w.path))

	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)
	return nil
}

// Stop stops the watcher and waits for the watch loop and any running
// OnChange call to return. No OnChange call starts after Stop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// watchLoop watches for config file changes.
func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.debounceNotify(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceNotify(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}

	w.debounce = time.AfterFunc(w.debounceDelay, func() {
		w.mu.Lock()
		if w.stopped || ctx.Err() != nil {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		w.logger.Debug("config file changed", log.String("path", w.path))
		w.onChange(w.path)
	})
}
