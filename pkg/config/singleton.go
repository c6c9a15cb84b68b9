package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig is the process-wide configuration instance.
	globalConfig *Config

	// configMutex guards globalConfig.
	configMutex sync.RWMutex

	// initOnce makes Initialize idempotent.
	initOnce sync.Once
)

// Initialize loads the configuration from path, applies PALISADE_*
// environment overrides, and installs it as the process-wide singleton.
// It is called once at daemon startup; repeated calls are no-ops.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}

		configMutex.Lock()
		globalConfig = cfg
		configMutex.Unlock()
	})

	return initErr
}

// GetConfig returns the singleton configuration, or nil before Initialize
// has succeeded. Safe for concurrent use.
//
// Tests should inject explicit Config values instead of going through the
// singleton.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the singleton. Test hook; production code goes through
// Initialize.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig re-reads the configuration from path and swaps it in. The
// existing configuration stays in place if loading or validation fails.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return nil
}

// MustGetConfig is GetConfig that panics when the configuration has not
// been initialized. Only for code paths that run strictly after a
// successful startup.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
