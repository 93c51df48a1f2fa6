// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadQuiet coalesces the burst of filesystem events editors emit on a
// single save into one reload.
const reloadQuiet = 300 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands each
// successfully validated result to the callback. Invalid edits are logged
// and skipped; the previous configuration stays in effect.
type Watcher struct {
	path     string
	onReload func(*Config)
}

// NewWatcher creates a watcher for the default config path.
func NewWatcher(onReload func(*Config)) (*Watcher, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, onReload: onReload}, nil
}

// Run watches until the context is cancelled. The parent directory is
// watched rather than the file itself: editors that write-and-rename would
// otherwise silently detach the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Name != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(reloadQuiet)
				pendingC = pending.C
			} else {
				pending.Reset(reloadQuiet)
			}
		case <-pendingC:
			pending = nil
			pendingC = nil
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		log.Printf("config reload rejected: %v", err)
		return
	}
	log.Printf("config reloaded from %s", w.path)
	w.onReload(cfg)
}
