package config

import (
	"slices"
)

// ConfigDiff describes what changed between two configs. The fields are
// the settings a running server applies without restart; everything else
// is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MatchChanged bool
	NewMatch     MatchConfig

	CategoriesChanged bool
	NewCategories     []string

	// RestartRequired names changed settings that only take effect after a
	// restart, using their YAML paths.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MatchChanged && !d.CategoriesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Match != new.Match {
		d.MatchChanged = true
		d.NewMatch = new.Match
	}
	if !slices.Equal(old.Quiz.Categories, new.Quiz.Categories) {
		d.CategoriesChanged = true
		d.NewCategories = slices.Clone(new.Quiz.Categories)
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.metrics", old.Server.MetricsEnabled() != new.Server.MetricsEnabled())
	restart("catalog.base_url", old.Catalog.BaseURL != new.Catalog.BaseURL)
	restart("catalog.mirrors", !slices.Equal(old.Catalog.Mirrors, new.Catalog.Mirrors))
	restart("catalog.timeout", old.Catalog.Timeout != new.Catalog.Timeout)
	restart("catalog.user_agent", old.Catalog.UserAgent != new.Catalog.UserAgent)
	restart("catalog.browse_page_size", old.Catalog.BrowsePageSize != new.Catalog.BrowsePageSize)
	restart("catalog.filtered_page_size", old.Catalog.FilteredPageSize != new.Catalog.FilteredPageSize)
	restart("catalog.bundled_files", !slices.Equal(old.Catalog.BundledFiles, new.Catalog.BundledFiles))
	restart("catalog.circuit_breaker", old.Catalog.CircuitBreaker != new.Catalog.CircuitBreaker)
	restart("sampler.max_attempts", old.Sampler.MaxAttempts != new.Sampler.MaxAttempts)
	restart("quiz.idle_timeout", old.Quiz.IdleTimeout != new.Quiz.IdleTimeout)
	restart("quiz.sweep_interval", old.Quiz.SweepInterval != new.Quiz.SweepInterval)

	return d
}
