package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"convert_invoices/internal/infra"

	"github.com/fsnotify/fsnotify"
)

const (
	// settle coalesces the burst of events one editor save produces.
	settle       = 100 * time.Millisecond
	defaultRetry = time.Second
)

// Watcher reloads the registry when the catalog file changes.
// A broken file keeps the previous catalog and is retried with backoff.
//
// The parent directory is watched rather than the file, so replacing the
// file by rename (editors, config management) is seen as well.
type Watcher struct {
	reg     *Registry
	path    string
	backoff infra.Backoff

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches path; retry is the first backoff step after a
// rejected reload.
func NewWatcher(reg *Registry, path string, retry time.Duration) *Watcher {
	if retry <= 0 {
		retry = defaultRetry
	}
	return &Watcher{
		reg:     reg,
		path:    filepath.Clean(path),
		backoff: infra.Backoff{Base: retry, Max: 32 * retry},
	}
}

// Start subscribes to the catalog directory and reloads in the background.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("catalog watcher: %w", err)
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	slog.Info("Catalog watcher started", slog.String("path", w.path))
	return nil
}

// Stop halts watching and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	retries := 0
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(settle)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Catalog watcher error", slog.String("path", w.path), slog.Any("error", err))

		case <-timer.C:
			if w.reload(retries) {
				retries = 0
				continue
			}
			timer.Reset(w.backoff.Delay(retries))
			retries++
		}
	}
}

// reload reports false when the file could not be applied.
func (w *Watcher) reload(retry int) bool {
	cat, err := LoadCatalog(w.path)
	if err == nil {
		err = w.reg.Reload(cat)
	}
	if err != nil {
		slog.Error("Catalog reload rejected, keeping previous",
			slog.String("path", w.path), slog.Any("error", err), slog.Int("retry", retry))
		return false
	}
	slog.Debug("Catalog file applied", slog.String("path", w.path), slog.Uint64("version", w.reg.Version()))
	return true
}
