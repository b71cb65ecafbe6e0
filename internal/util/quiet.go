package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitQuiet blocks until path has seen no write events for quiet, or until
// limit elapses, whichever comes first. When the directory cannot be watched
// it sleeps for quiet instead. A missing file returns immediately.
func WaitQuiet(ctx context.Context, path string, quiet, limit time.Duration) error {
	if quiet <= 0 {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return sleepCtx(ctx, quiet)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return sleepCtx(ctx, quiet)
	}

	if limit < quiet {
		limit = quiet
	}
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	idle := time.NewTimer(quiet)
	defer idle.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-idle.C:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Chmod) {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(quiet)
			}
		case <-w.Errors:
			// Watch errors leave the idle timer as the fallback.
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
