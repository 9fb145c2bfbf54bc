package featureflag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

const reloadDebounce = 250 * time.Millisecond

// LoadFile reads a JSON5 flag file on top of base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read flags: %w", err)
	}
	cfg := base
	cfg.ChannelPercentages = nil
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, nil
}

// Watch reloads the gate whenever the flag file changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up. A file that fails to parse keeps the previous snapshot.
func Watch(ctx context.Context, path string, gate *Gate) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	reload := func() {
		cfg, err := LoadFile(abs, gate.Snapshot())
		if err != nil {
			slog.Warn("feature flags reload failed, keeping previous snapshot", "path", abs, "error", err)
			return
		}
		gate.Update(cfg)
		slog.Info("feature flags reloaded", "strategy", cfg.Strategy, "percentage", cfg.Percentage, "kill_switch", cfg.KillSwitch)
	}
	if _, err := os.Stat(abs); err == nil {
		reload()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("feature flags watcher error", "error", err)
			}
		}
	}()
	return nil
}
