package channels

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileRegistry serves the channels declared in a YAML file.
type FileRegistry struct {
	*StaticRegistry

	path    string
	secrets SecretResolver

	mu       sync.Mutex
	watcher  *Watcher
	onChange []func(removed []string)
	loadedAt time.Time
}

// SecretResolver expands ${secret:name} references in channel API keys.
type SecretResolver interface {
	ResolveReferences(ctx context.Context, s string) (string, error)
}

// Option configures a FileRegistry.
type Option func(*FileRegistry)

// WithSecrets resolves secret references in API keys on every load.
func WithSecrets(s SecretResolver) Option {
	return func(r *FileRegistry) { r.secrets = s }
}

// NewFileRegistry loads path and returns a registry serving it. The file
// is not watched until Watch is called.
func NewFileRegistry(path string, opts ...Option) (*FileRegistry, error) {
	r := &FileRegistry{
		StaticRegistry: NewStaticRegistry(),
		path:           path,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFile reads and validates a channels file without building a
// registry.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ResolveSecrets replaces secret references in every channel API key.
func (f *File) ResolveSecrets(ctx context.Context, s SecretResolver) error {
	for i := range f.Tenants {
		t := &f.Tenants[i]
		for j := range t.Channels {
			ch := &t.Channels[j]
			key, err := s.ResolveReferences(ctx, ch.APIKey)
			if err != nil {
				return fmt.Errorf("channel %q api_key: %w", ch.ID, err)
			}
			ch.APIKey = key
		}
	}
	return nil
}

// Path returns the file the registry serves.
func (r *FileRegistry) Path() string {
	return r.path
}

// LoadedAt returns when the file was last loaded successfully.
func (r *FileRegistry) LoadedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadedAt
}

// OnChange registers a callback run after every successful reload with the
// IDs of channels that no longer exist.
func (r *FileRegistry) OnChange(fn func(removed []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Reload re-reads the file. On error the previous channel set stays in
// place.
func (r *FileRegistry) Reload() error {
	f, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	if r.secrets != nil {
		if err := f.ResolveSecrets(context.Background(), r.secrets); err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
	}
	removed := r.replace(f)

	r.mu.Lock()
	r.loadedAt = time.Now()
	callbacks := append([]func([]string){}, r.onChange...)
	r.mu.Unlock()

	channels := 0
	for _, t := range f.Tenants {
		channels += len(t.Channels)
	}
	r.logger.Info("channels loaded",
		"path", r.path,
		"tenants", len(f.Tenants),
		"channels", channels,
		"removed", len(removed),
	)

	for _, fn := range callbacks {
		fn(removed)
	}
	return nil
}

// Watch starts reloading the file on change in a background goroutine
// until ctx is cancelled or Close is called.
func (r *FileRegistry) Watch(ctx context.Context, debounce time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return fmt.Errorf("channels file %q is already watched", r.path)
	}

	w, err := NewWatcher(r.path, debounce)
	if err != nil {
		return err
	}
	r.watcher = w

	go func() {
		err := w.Watch(ctx, func() {
			if err := r.Reload(); err != nil {
				r.logger.Error("channels reload failed, keeping previous set",
					"path", r.path,
					"error", err,
				)
			}
		})
		if err != nil {
			r.logger.Error("channels watcher stopped", "error", err)
		}
	}()
	return nil
}

// Close stops watching.
func (r *FileRegistry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}
