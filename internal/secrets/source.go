// Package secrets provides the webhook shared secret, either as a fixed
// value or loaded from a file that can be rotated without a restart.
package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Source struct {
	mu    sync.RWMutex
	value string

	path   string
	logger *zap.Logger
}

// NewStaticSource wraps a fixed secret.
func NewStaticSource(value string) *Source {
	return &Source{value: strings.TrimSpace(value), logger: zap.NewNop()}
}

// NewFileSource loads the secret from path. Call Watch to pick up rotations.
func NewFileSource(path string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	source := &Source{path: path, logger: logger}
	if err := source.reload(); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *Source) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Source) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.value = strings.TrimSpace(string(raw))
	s.mu.Unlock()
	return nil
}

// Watch reloads the secret whenever the backing file changes. It watches the
// parent directory so atomic rename-style rotations are seen too, and blocks
// until ctx is cancelled.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn("secret reload failed", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("webhook secret reloaded", zap.String("path", s.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("secret watcher error", zap.Error(err))
		}
	}
}
