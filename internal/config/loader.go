package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	c := &cfg.Catalog
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BrowsePageSize == 0 {
		c.BrowsePageSize = DefaultBrowsePageSize
	}
	if c.FilteredPageSize == 0 {
		c.FilteredPageSize = DefaultFilteredPageSize
	}
	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = DefaultMaxFailures
	}
	if c.CircuitBreaker.ResetTimeout == 0 {
		c.CircuitBreaker.ResetTimeout = DefaultResetTimeout
	}

	if cfg.Match.Threshold == 0 {
		cfg.Match.Threshold = DefaultThreshold
	}
	if cfg.Sampler.MaxAttempts == 0 {
		cfg.Sampler.MaxAttempts = DefaultMaxAttempts
	}

	q := &cfg.Quiz
	if len(q.Categories) == 0 {
		q.Categories = slices.Clone(DefaultCategories)
	}
	if q.IdleTimeout == 0 {
		q.IdleTimeout = DefaultIdleTimeout
	}
	if q.SweepInterval == 0 {
		q.SweepInterval = DefaultSweepInterval
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found; soft problems are logged.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	c := cfg.Catalog
	if err := validateEndpoint(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("catalog.base_url: %w", err))
	}
	for i, m := range c.Mirrors {
		if err := validateEndpoint(m); err != nil {
			errs = append(errs, fmt.Errorf("catalog.mirrors[%d]: %w", i, err))
		}
		if m == c.BaseURL {
			slog.Warn("catalog mirror duplicates the primary endpoint", "mirror", m)
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("catalog.timeout must not be negative, got %s", c.Timeout))
	}
	if c.BrowsePageSize < 1 {
		errs = append(errs, fmt.Errorf("catalog.browse_page_size must be positive, got %d", c.BrowsePageSize))
	}
	if c.FilteredPageSize < 1 {
		errs = append(errs, fmt.Errorf("catalog.filtered_page_size must be positive, got %d", c.FilteredPageSize))
	}
	if c.CircuitBreaker.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("catalog.circuit_breaker.max_failures must be positive, got %d", c.CircuitBreaker.MaxFailures))
	}
	if c.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("catalog.circuit_breaker.reset_timeout must not be negative, got %s", c.CircuitBreaker.ResetTimeout))
	}
	for i, p := range c.BundledFiles {
		if _, err := os.Stat(p); err != nil {
			errs = append(errs, fmt.Errorf("catalog.bundled_files[%d]: %w", i, err))
		}
	}

	if t := cfg.Match.Threshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("match.threshold must be in (0, 1], got %g", t))
	} else if t < 0.5 {
		slog.Warn("match.threshold below 0.5 accepts very loose guesses", "threshold", t)
	}

	if cfg.Sampler.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("sampler.max_attempts must be positive, got %d", cfg.Sampler.MaxAttempts))
	}

	q := cfg.Quiz
	seen := make(map[string]bool, len(q.Categories))
	for i, name := range q.Categories {
		if name == "" {
			errs = append(errs, fmt.Errorf("quiz.categories[%d]: name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("quiz.categories[%d]: duplicate category %q", i, name))
		}
		seen[name] = true
	}
	if q.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("quiz.idle_timeout must not be negative, got %s", q.IdleTimeout))
	}
	if q.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("quiz.sweep_interval must not be negative, got %s", q.SweepInterval))
	}

	return errors.Join(errs...)
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
