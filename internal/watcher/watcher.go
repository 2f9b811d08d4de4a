// Package watcher reloads the config file when it changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
)

const DefaultDebounce = 250 * time.Millisecond

// LoadFunc reads and validates the config at path.
type LoadFunc func(path string) (*config.Config, error)

// ApplyFunc receives each successfully loaded config together with the one it replaces.
type ApplyFunc func(prev, next *config.Config)

type Options struct {
	// Load defaults to config.LoadConfig.
	Load     LoadFunc
	Apply    ApplyFunc
	Debounce time.Duration
}

// Watcher watches a single config file. The parent directory is watched so that editors
// which replace the file by rename are still seen.
type Watcher struct {
	path     string
	load     LoadFunc
	apply    ApplyFunc
	debounce time.Duration

	current atomic.Pointer[config.Config]
	reloads atomic.Int64

	fs      *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	running atomic.Bool
}

func New(path string, initial *config.Config, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if opts.Load == nil {
		opts.Load = config.LoadConfig
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w := &Watcher{
		path:     abs,
		load:     opts.Load,
		apply:    opts.Apply,
		debounce: opts.Debounce,
		fs:       fs,
	}
	w.current.Store(initial)
	return w, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *config.Config {
	return w.current.Load()
}

// Reloads counts successful reloads.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Run processes file events until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.fs.Close()
	}()

	log.Infof("watching config file %s", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			log.Debugf("config file event: %s %s", ev.Op, ev.Name)
			w.schedule()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// schedule coalesces bursts of events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Reload)
}

// Reload loads the file now. An invalid file is logged and the previous config stays in effect.
func (w *Watcher) Reload() {
	next, err := w.load(w.path)
	if err != nil {
		log.Warnf("config reload skipped, keeping previous config: %v", err)
		return
	}
	prev := w.current.Swap(next)
	w.reloads.Add(1)
	for _, field := range ColdChanges(prev, next) {
		log.Warnf("config: %s changed; restart to apply", field)
	}
	if w.apply != nil {
		w.apply(prev, next)
	}
	log.Infof("config reloaded from %s", w.path)
}

// ColdChanges lists changed settings that only take effect after a restart.
func ColdChanges(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var fields []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			fields = append(fields, name)
		}
	}
	check("host", prev.Host, next.Host)
	check("port", prev.Port, next.Port)
	check("backend", prev.Backend, next.Backend)
	check("retry", prev.Retry, next.Retry)
	check("breaker", prev.Breaker, next.Breaker)
	check("usage", prev.Usage, next.Usage)
	check("metrics", prev.Metrics, next.Metrics)
	check("catalog.refresh-schedule", prev.Catalog.RefreshSchedule, next.Catalog.RefreshSchedule)
	check("logging-to-file", prev.LoggingToFile, next.LoggingToFile)
	return fields
}
