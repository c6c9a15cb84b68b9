package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"palisade-hq/palisade/pkg/policy"
)

// Config contains configuration for a policy source.
type Config struct {
	// Path is the policy file or directory to load from.
	Path string

	// Watch enables hot-reload on file changes.
	Watch bool

	// DebounceInterval is the reload debounce quiet period.
	DebounceInterval time.Duration

	// MaxFileSize bounds individual policy files. Zero uses the loader
	// default.
	MaxFileSize int64
}

// Source loads policy definitions from the file system into a catalog and
// optionally keeps the catalog current as files change. A failed reload
// leaves the previously loaded catalog serving.
type Source struct {
	config  *Config
	loader  *Loader
	catalog *policy.Catalog
	watcher *Watcher
	logger  *slog.Logger
}

// New creates a policy source feeding the given catalog.
func New(config *Config, catalog *policy.Catalog) (*Source, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("policy source path is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	loaderCfg := DefaultLoaderConfig()
	if config.MaxFileSize > 0 {
		loaderCfg.MaxFileSize = config.MaxFileSize
	}

	s := &Source{
		config:  config,
		loader:  NewLoader(loaderCfg),
		catalog: catalog,
		logger:  slog.Default().With("component", "policy.source"),
	}

	if config.Watch {
		watcherCfg := DefaultWatcherConfig()
		watcherCfg.Path = config.Path
		if config.DebounceInterval > 0 {
			watcherCfg.DebounceInterval = config.DebounceInterval
		}
		watcher, err := NewWatcher(watcherCfg)
		if err != nil {
			return nil, err
		}
		s.watcher = watcher
	}

	return s, nil
}

// Load reads every definition from the configured path and replaces the
// catalog contents. Validation failures reject the whole load.
func (s *Source) Load() error {
	start := time.Now()

	defs, err := s.loader.Load(s.config.Path)
	if err != nil {
		return err
	}
	if err := s.catalog.Replace(defs); err != nil {
		return err
	}

	s.logger.Info("policy catalog loaded",
		"path", s.config.Path,
		"policy_count", len(defs),
		"version", s.catalog.Version(),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// Watch blocks reloading the catalog whenever watched files change, until
// the context is cancelled. It is an error to call Watch on a source
// created without watching enabled.
func (s *Source) Watch(ctx context.Context) error {
	if s.watcher == nil {
		return fmt.Errorf("source was created without watch enabled")
	}
	return s.watcher.Watch(ctx, s.Load)
}

// Close stops the watcher if one is running.
func (s *Source) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop()
}
