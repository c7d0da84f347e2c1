package config

import (
	"fmt"
	"sync"
)

var (
	// current is the process-wide configuration.
	current *Config

	// currentPath is the file current was loaded from.
	currentPath string

	mu       sync.RWMutex
	initOnce sync.Once
)

// Initialize loads configuration from path with environment overrides and
// stores it as the process configuration. Only the first call loads;
// later calls return the first call's error.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg, path)
	})

	return initErr
}

// GetConfig returns the process configuration, or nil before Initialize
// succeeded.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Path returns the file the process configuration was loaded from.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentPath
}

// SetConfig replaces the process configuration. Tests use it to inject a
// configuration without a file.
func SetConfig(cfg *Config, path string) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
	currentPath = path
}

// ReloadConfig reloads the configuration from the file it was loaded from.
// The process configuration is replaced only if loading and validation
// succeed.
func ReloadConfig() (*Config, error) {
	path := Path()
	if path == "" {
		return nil, fmt.Errorf("failed to reload configuration: not initialized from a file")
	}

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	SetConfig(cfg, path)
	return cfg, nil
}

// MustGetConfig returns the process configuration and panics if it has not
// been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// reset clears the singleton. Tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
	currentPath = ""
	initOnce = sync.Once{}
}
