package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration at path whenever the file changes and
// passes every successfully loaded Config to onChange. Load failures go to
// onError and the previous configuration stays in effect.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file on save are still picked up.
//
// Watch blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancels the watch
//   - path: Path to the YAML configuration file
//   - onChange: Called with each reloaded configuration
//   - onError: Called with load and watcher errors; may be nil
//
// Returns:
//   - error: If the watcher cannot be created
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	if onError == nil {
		onError = func(error) {}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				onError(err)
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watcher: %w", err))
		}
	}
}
