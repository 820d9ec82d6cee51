package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives editors time to finish writing before the file is read.
const settleDelay = 50 * time.Millisecond

// Watch calls onChange with the reloaded configuration every time the file
// at path changes. A file that fails to load is reported through onChange
// with a non-nil error and the previous configuration stays in effect at the
// caller's discretion. Watcher errors and a watch that cannot be renewed
// are reported the same way. Watch returns once the watch is established; the
// watcher stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !settle(ctx, watcher) {
					return
				}
				onChange(Load(path))
				// Editors replace the file by renaming, which drops the watch.
				if err := rewatch(watcher, path); err != nil {
					onChange(Config{}, err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				onChange(Config{}, fmt.Errorf("config: watch %s: %w", path, err))
			}
		}
	}()
	return nil
}

// rewatch renews the watch on path. If the file is gone no further changes
// are reported and the error says so.
func rewatch(watcher *fsnotify.Watcher, path string) error {
	if err := watcher.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return fmt.Errorf("config: rewatch %s: %w", path, err)
	}
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("config: rewatch %s: %w", path, err)
	}
	return nil
}

// settle drains the burst of events a single save produces.
func settle(ctx context.Context, watcher *fsnotify.Watcher) bool {
	timer := time.NewTimer(settleDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-watcher.Events:
			if !ok {
				return false
			}
			timer.Reset(settleDelay)
		case <-timer.C:
			return true
		}
	}
}
