package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirProvider reads each secret from a file named after it in one
// directory. Files must not be readable by group or others.
type DirProvider struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewDirProvider opens dir. With watch set, any change in the directory
// drops the cached values.
func NewDirProvider(dir string, watch bool) (*DirProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}

	p := &DirProvider{
		dir:    dir,
		logger: slog.Default().With("component", "secrets"),
		values: make(map[string]string),
		done:   make(chan struct{}),
	}
	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		p.watcher = w
		go p.watch()
	}
	return p, nil
}

// Get implements Provider.
func (p *DirProvider) Get(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return v, nil
	}

	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: no file %s", ErrNotFound, path)
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", path)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions %o on %s", info.Mode().Perm(), path)
	}

	// #nosec G304 -- name is a single path element inside dir.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	v = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = v
	p.mu.Unlock()
	return v, nil
}

// Names implements Provider.
func (p *DirProvider) Names(context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Name implements Provider.
func (p *DirProvider) Name() string { return "dir" }

// Refresh drops every cached value.
func (p *DirProvider) Refresh(context.Context) error {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
	return nil
}

// Close stops watching.
func (p *DirProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	return p.watcher.Close()
}

func (p *DirProvider) watch() {
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.logger.Debug("secrets directory changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			_ = p.Refresh(context.Background())
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets watcher error", "error", err)
		}
	}
}
