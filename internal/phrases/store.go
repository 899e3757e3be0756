package phrases

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Store holds the active catalog and can swap it while in use.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding c, or the default catalog when c is nil.
func NewStore(c *Catalog) *Store {
	if c == nil {
		c = Default()
	}
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Replace installs c.
func (s *Store) Replace(c *Catalog) {
	s.current.Store(c)
}

// Reload reads path and installs it. The active catalog is kept on error.
func (s *Store) Reload(path string) error {
	c, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Replace(c)
	return nil
}

// Watch reloads the catalog whenever path changes, until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context, path string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.Reload(abs); err != nil {
				logger.Warn("Phrase catalog reload failed, keeping previous", "path", abs, "err", err)
				continue
			}
			logger.Info("Phrase catalog reloaded", "path", abs)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Phrase catalog watcher error", "err", err)
		}
	}
}
