// Package config's hot-reload path is grounded on the teacher's
// backend/file.Watcher: an fsnotify.Watcher on the containing directory, a
// sync.RWMutex-guarded swap of the decoded document on a Write event, and a
// blocking Run loop driven by ctx cancellation. It is generalized from
// "reload per-MAC backend records" to "reload match rules and the default
// ConfigEntry, republishing a match.Matcher through the same pointer the
// DHCP State Machine already holds."
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"github.com/go-logr/logr"

	"github.com/poxide/dhcp/match"
	"github.com/poxide/dhcp/poxerr"
)

// Loader owns the live File document and the Matcher built from it,
// reloading both whenever the watched path changes on disk.
type Loader struct {
	path      string
	overrides Overrides
	log       logr.Logger

	mu      sync.RWMutex
	file    File
	matcher *match.Matcher

	watcher *fsnotify.Watcher
}

// Load reads and validates path, builds the initial Matcher, and arms a
// directory watch so later edits to path take effect without a restart.
// overrides fills in whatever fields path's YAML document leaves unset, on
// both the initial load and every subsequent reload.
func Load(path string, overrides Overrides, log logr.Logger) (*Loader, error) {
	l := &Loader{path: path, overrides: overrides, log: log}
	if err := l.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: creating config watcher: %v", poxerr.ErrConfig, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", poxerr.ErrConfig, path, err)
	}
	l.watcher = w
	return l, nil
}

func (l *Loader) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", poxerr.ErrConfig, l.path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", poxerr.ErrConfig, l.path, err)
	}
	l.overrides.Apply(&f)
	if err := f.Validate(); err != nil {
		return err
	}
	m, err := match.Load(f.ToMatchConfig())
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.file = f
	l.matcher = m
	l.mu.Unlock()
	return nil
}

// Matcher implements dhcpstate.MatcherSource: the live Matcher built from
// the most recently accepted File document.
func (l *Loader) Matcher() *match.Matcher {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.matcher
}

// File returns a copy of the currently live document.
func (l *Loader) File() File {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.file
}

// Run watches path for changes until ctx is canceled. A reload that fails
// validation or parsing is logged and discarded, leaving the previous
// configuration live; Run itself never returns a reload error.
func (l *Loader) Run(ctx context.Context) error {
	defer l.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-l.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := l.reload(); err != nil {
				l.log.Error(err, "config reload failed, keeping previous configuration")
				continue
			}
			l.log.Info("configuration reloaded", "path", l.path)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Info("config watcher error", "err", err)
		}
	}
}
