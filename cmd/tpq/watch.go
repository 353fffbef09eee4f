package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/bodgit/tpq"
	"github.com/fsnotify/fsnotify"
)

// pathLocker provides per-path mutual exclusion.
type pathLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocker() *pathLocker {
	return &pathLocker{locks: make(map[string]*sync.Mutex)}
}

func (pl *pathLocker) Lock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	if !ok {
		l = &sync.Mutex{}
		pl.locks[path] = l
	}
	pl.mu.Unlock()
	l.Lock()
}

func (pl *pathLocker) Unlock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	pl.mu.Unlock()
	if ok {
		l.Unlock()
	}
}

// debouncer coalesces bursts of events into one callback per file.
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	delay  time.Duration
	onFire func(path string)
}

func newDebouncer(delay time.Duration, onFire func(path string)) *debouncer {
	return &debouncer{
		timers: make(map[string]*time.Timer),
		delay:  delay,
		onFire: onFire,
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.onFire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}

var outputPattern = regexp.MustCompile(`(-\d+x\d+-\d+p\d+c-[ust]\.bmp|-preview\.png)$`)

// isOutput reports whether file looks like something this program wrote,
// so writing outputs into the watched directory doesn't loop.
func isOutput(file string) bool {
	return outputPattern.MatchString(filepath.Base(file))
}

func (e *env) watch(ctx context.Context, dir string, delay time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := watchRecursive(w, dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bring everything up to date first
	if err := e.batch(0).Scan(ctx, dir); err != nil {
		return err
	}

	e.logger.Info("watching", "dir", dir)

	locks := newPathLocker()
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	db := newDebouncer(delay, func(path string) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			locks.Lock(path)
			defer locks.Unlock(path)
			if _, err := os.Stat(path); err != nil {
				return
			}
			if err := e.runFile(ctx, path); err != nil {
				e.logger.Error("quantize failed", "file", path, "error", err)
			}
		}()
	})
	defer db.stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("waiting for in-flight images")
			wg.Wait()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				wg.Wait()
				return nil
			}
			if ev.Has(fsnotify.Remove) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watchRecursive(w, ev.Name)
					continue
				}
			}
			if filepath.Base(ev.Name)[0] == '.' || !tpq.IsImage(ev.Name) || isOutput(ev.Name) {
				continue
			}
			db.trigger(ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				wg.Wait()
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		}
	}
}
