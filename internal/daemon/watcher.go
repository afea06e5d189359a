package daemon

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// settleDelay lets the writer finish before the command file is read.
const settleDelay = 50 * time.Millisecond

// Watcher calls a function whenever the command file is written. It uses
// fsnotify on the parent directory and polls the modification time as a
// fallback.
type Watcher struct {
	Path     string
	Interval time.Duration // poll interval, default 1s
	Logger   *log.Logger
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	if w.Interval <= 0 {
		w.Interval = time.Second
	}
	if w.Logger == nil {
		w.Logger = log.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.Logger.Warn("fsnotify not available, falling back to polling", "err", err)
		return w.poll(ctx, onChange)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.Logger.Error("Failed to close watcher", "err", err)
		}
	}()

	if err := watcher.Add(filepath.Dir(w.Path)); err != nil {
		w.Logger.Warn("Failed to watch command directory, falling back to polling", "err", err)
		return w.poll(ctx, onChange)
	}
	w.Logger.Info("Command watcher started (using fsnotify)")

	target := filepath.Clean(w.Path)
	pollTicker := time.NewTicker(w.Interval)
	defer pollTicker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				w.Logger.Warn("fsnotify watcher closed, switching to polling")
				return w.poll(ctx, onChange)
			}
			if filepath.Clean(event.Name) == target && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				time.Sleep(settleDelay)
				onChange()
				lastCheck = time.Now()
			}

		case <-pollTicker.C:
			if w.modifiedSince(lastCheck) {
				time.Sleep(settleDelay)
				onChange()
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				w.Logger.Warn("fsnotify error channel closed, switching to polling")
				return w.poll(ctx, onChange)
			}
			w.Logger.Error("File watcher error", "err", err)
		}
	}
}

// poll is the pure polling fallback.
func (w *Watcher) poll(ctx context.Context, onChange func()) error {
	w.Logger.Info("Command watcher started (using polling fallback)", "interval", w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.modifiedSince(lastCheck) {
				time.Sleep(settleDelay)
				onChange()
			}
			lastCheck = time.Now()
		}
	}
}

func (w *Watcher) modifiedSince(t time.Time) bool {
	info, err := os.Stat(w.Path)
	if err != nil {
		return false
	}
	return info.ModTime().After(t) && info.Size() > 0
}
