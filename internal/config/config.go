// Package config provides the configuration schema, loader and hot-reload
// watcher for the portraitquiz server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultBaseURL          = "https://api.disneyapi.dev/character"
	DefaultTimeout          = 10 * time.Second
	DefaultBrowsePageSize   = 50
	DefaultFilteredPageSize = 200
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultThreshold        = 0.7
	DefaultMaxAttempts      = 5
	DefaultIdleTimeout      = 30 * time.Minute
	DefaultSweepInterval    = time.Minute
)

// DefaultCategories are the films offered as quiz categories when the
// configuration names none.
var DefaultCategories = []string{
	"Frozen",
	"Moana",
	"The Lion King",
	"Aladdin",
	"The Little Mermaid",
	"Tangled",
	"Toy Story",
	"Mulan",
	"Beauty and the Beast",
	"The Jungle Book",
	"Cinderella",
	"Sleeping Beauty",
	"Wreck-It Ralph",
	"Big Hero 6",
	"Zootopia",
	"Encanto",
	"Cars",
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Match   MatchConfig   `yaml:"match"`
	Sampler SamplerConfig `yaml:"sampler"`
	Quiz    QuizConfig    `yaml:"quiz"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server binds to (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log level. Reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// Metrics toggles the Prometheus /metrics endpoint. Default: enabled.
	Metrics *bool `yaml:"metrics"`
}

// MetricsEnabled reports whether /metrics should be served.
func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// CatalogConfig configures access to the remote character collection.
type CatalogConfig struct {
	// BaseURL is the character endpoint of the primary source.
	BaseURL string `yaml:"base_url"`

	// Mirrors are fallback endpoints tried in order when the primary fails.
	Mirrors []string `yaml:"mirrors"`

	// Timeout bounds a single page request.
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// BrowsePageSize is the page size used without a category filter.
	BrowsePageSize int `yaml:"browse_page_size"`

	// FilteredPageSize is the page size used to build a category pool.
	FilteredPageSize int `yaml:"filtered_page_size"`

	// BundledFiles are extra YAML category lists served without the network.
	BundledFiles []string `yaml:"bundled_files"`

	// CircuitBreaker tunes the per-endpoint breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// MatchConfig tunes answer verification. Reloadable.
type MatchConfig struct {
	// Threshold is the minimum edit-distance similarity for a match.
	Threshold float64 `yaml:"threshold"`

	// Phonetic enables the sound-alike tier.
	Phonetic bool `yaml:"phonetic"`
}

// SamplerConfig tunes character selection.
type SamplerConfig struct {
	// MaxAttempts is the number of random pages tried without a filter.
	MaxAttempts int `yaml:"max_attempts"`
}

// QuizConfig tunes game sessions.
type QuizConfig struct {
	// Categories are the film filters offered to players. Reloadable.
	Categories []string `yaml:"categories"`

	// IdleTimeout evicts games nobody touched for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// SweepInterval is how often idle games are looked for.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}
