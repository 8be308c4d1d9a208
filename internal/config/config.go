// Package config provides configuration management for the publication
// discovery service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the publication discovery service.
type Config struct {
	// Server contains the operational HTTP listener settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the cache backend.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Fanout contains the source fan-out orchestrator settings.
	Fanout FanoutConfig `mapstructure:"fanout"`
	// Retry contains the shared retry-with-backoff schedule.
	Retry RetryConfig `mapstructure:"retry"`
	// Merge contains deduplication settings.
	Merge MergeConfig `mapstructure:"merge"`
	// Scoring contains relevance scoring factor weights.
	Scoring ScoringConfig `mapstructure:"scoring"`
	// Cache contains TTL cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Download contains waterfall download engine settings.
	Download DownloadConfig `mapstructure:"download"`
	// Sources contains per-source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
}

// ServerConfig holds the operational HTTP listener configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// FanoutConfig holds fan-out orchestrator settings.
type FanoutConfig struct {
	// MaxConcurrency bounds simultaneous in-flight source calls.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// PerSourceTimeout is the timeout applied to each source call.
	PerSourceTimeout time.Duration `mapstructure:"per_source_timeout"`
	// MaxResultsPerSource caps candidates requested from each source.
	MaxResultsPerSource int `mapstructure:"max_results_per_source"`
	// EarlyStopThreshold enables the early-stop policy when positive.
	EarlyStopThreshold int `mapstructure:"early_stop_threshold"`
}

// RetryConfig holds the shared retry-with-backoff schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// MaxDelay caps the exponential growth of the delay.
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// MergeConfig holds deduplication settings.
type MergeConfig struct {
	// FuzzyThreshold is the minimum normalized title similarity for the
	// fuzzy merge path (0-1].
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	// FuzzyYearWindow bounds the publication-year distance for fuzzy
	// title matches. Negative disables the year check.
	FuzzyYearWindow int `mapstructure:"fuzzy_year_window"`
}

// ScoringConfig holds relevance scoring factor weights. They must sum
// to 1.0.
type ScoringConfig struct {
	KeywordMatch      float64 `mapstructure:"keyword_match"`
	ContentSimilarity float64 `mapstructure:"content_similarity"`
	Recency           float64 `mapstructure:"recency"`
	Venue             float64 `mapstructure:"venue"`
	CitationImpact    float64 `mapstructure:"citation_impact"`
	SourceQuality     float64 `mapstructure:"source_quality"`
}

// CacheConfig holds TTL cache settings.
type CacheConfig struct {
	// Backend selects the cache store: "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	// TTL is the lifetime of a cache entry.
	TTL time.Duration `mapstructure:"ttl"`
	// SweepInterval is how often the memory backend evicts expired
	// entries. Zero disables the background sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DownloadConfig holds waterfall download engine settings.
type DownloadConfig struct {
	// OutputDir is where validated PDFs are written.
	OutputDir string `mapstructure:"output_dir"`
	// AttemptTimeout bounds each individual location attempt.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// MaxSizeBytes is the maximum accepted file size.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// MaxConcurrent bounds parallel waterfall runs across records.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// UserAgent is the User-Agent header for download requests.
	UserAgent string `mapstructure:"user_agent"`
}

// SourcesConfig holds configuration for all source provider APIs.
type SourcesConfig struct {
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
	// PubMed contains PubMed E-utilities settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// Crossref contains Crossref API settings.
	Crossref SourceConfig `mapstructure:"crossref"`
	// EuropePMC contains Europe PMC API settings.
	EuropePMC SourceConfig `mapstructure:"europepmc"`
	// Unpaywall contains Unpaywall API settings.
	Unpaywall SourceConfig `mapstructure:"unpaywall"`
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	// ArXiv contains arXiv export API settings.
	ArXiv SourceConfig `mapstructure:"arxiv"`
}

// SourceConfig holds configuration for a single source provider API.
type SourceConfig struct {
	// Enabled controls whether this source is queried.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g.
	// PUBFINDER_SOURCES_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// Email is the contact email for APIs with polite pools (OpenAlex,
	// Crossref) or a mandatory email parameter (Unpaywall).
	Email string `mapstructure:"email"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PUBFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/publication-discovery-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Sources.OpenAlex.APIKey = os.Getenv("PUBFINDER_SOURCES_OPENALEX_API_KEY")
	cfg.Sources.PubMed.APIKey = os.Getenv("PUBFINDER_SOURCES_PUBMED_API_KEY")
	cfg.Sources.Crossref.APIKey = os.Getenv("PUBFINDER_SOURCES_CROSSREF_API_KEY")
	cfg.Sources.EuropePMC.APIKey = os.Getenv("PUBFINDER_SOURCES_EUROPEPMC_API_KEY")
	cfg.Sources.Unpaywall.APIKey = os.Getenv("PUBFINDER_SOURCES_UNPAYWALL_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("PUBFINDER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Sources.ArXiv.APIKey = os.Getenv("PUBFINDER_SOURCES_ARXIV_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pubfinder")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "publication_discovery_service")
	// Default to "require" for production security. Use PUBFINDER_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Fanout defaults
	v.SetDefault("fanout.max_concurrency", 8)
	v.SetDefault("fanout.per_source_timeout", "30s")
	v.SetDefault("fanout.max_results_per_source", 20)
	v.SetDefault("fanout.early_stop_threshold", 0)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")

	// Merge defaults
	v.SetDefault("merge.fuzzy_threshold", 0.93)
	v.SetDefault("merge.fuzzy_year_window", 2)

	// Scoring defaults
	v.SetDefault("scoring.keyword_match", 0.35)
	v.SetDefault("scoring.content_similarity", 0.30)
	v.SetDefault("scoring.recency", 0.15)
	v.SetDefault("scoring.venue", 0.10)
	v.SetDefault("scoring.citation_impact", 0.05)
	v.SetDefault("scoring.source_quality", 0.05)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.sweep_interval", "10m")

	// Download defaults
	v.SetDefault("download.output_dir", "/var/lib/pubfinder/pdfs")
	v.SetDefault("download.attempt_timeout", "60s")
	v.SetDefault("download.max_size_bytes", 100*1024*1024)
	v.SetDefault("download.max_concurrent", 4)
	v.SetDefault("download.user_agent", "Mozilla/5.0 (compatible; Meridian-PublicationDiscovery/1.0; +https://meridianbio.io/bot)")

	// Sources defaults - OpenAlex
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.email", "")
	v.SetDefault("sources.openalex.timeout", "30s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 50)

	// Sources defaults - PubMed
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("sources.pubmed.max_results", 50)

	// Sources defaults - Crossref
	v.SetDefault("sources.crossref.enabled", true)
	v.SetDefault("sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("sources.crossref.email", "")
	v.SetDefault("sources.crossref.timeout", "30s")
	v.SetDefault("sources.crossref.rate_limit", 5.0)
	v.SetDefault("sources.crossref.max_results", 50)

	// Sources defaults - Europe PMC
	v.SetDefault("sources.europepmc.enabled", true)
	v.SetDefault("sources.europepmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	v.SetDefault("sources.europepmc.timeout", "30s")
	v.SetDefault("sources.europepmc.rate_limit", 5.0)
	v.SetDefault("sources.europepmc.max_results", 50)

	// Sources defaults - Unpaywall (requires a contact email)
	v.SetDefault("sources.unpaywall.enabled", true)
	v.SetDefault("sources.unpaywall.base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("sources.unpaywall.email", "")
	v.SetDefault("sources.unpaywall.timeout", "30s")
	v.SetDefault("sources.unpaywall.rate_limit", 5.0)
	v.SetDefault("sources.unpaywall.max_results", 10)

	// Sources defaults - Semantic Scholar
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.semantic_scholar.timeout", "30s")
	v.SetDefault("sources.semantic_scholar.rate_limit", 1.0) // 100 req / 5 min without API key
	v.SetDefault("sources.semantic_scholar.max_results", 50)

	// Sources defaults - arXiv
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.rate_limit", 0.33) // arXiv asks for one request per 3 seconds
	v.SetDefault("sources.arxiv.max_results", 50)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config only when the postgres cache backend is
	// selected; the memory backend needs no database at all.
	if c.Cache.Backend == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	switch c.Cache.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid cache backend: %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate fan-out config
	if c.Fanout.MaxConcurrency <= 0 {
		return fmt.Errorf("fanout max_concurrency must be positive")
	}
	if c.Fanout.PerSourceTimeout <= 0 {
		return fmt.Errorf("fanout per_source_timeout must be positive")
	}
	if c.Fanout.EarlyStopThreshold < 0 {
		return fmt.Errorf("fanout early_stop_threshold must not be negative")
	}

	// Validate retry config
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay")
	}

	// Validate merge config
	if c.Merge.FuzzyThreshold <= 0 || c.Merge.FuzzyThreshold > 1 {
		return fmt.Errorf("merge fuzzy_threshold must be in (0, 1]")
	}

	// Validate scoring weights
	weightSum := c.Scoring.KeywordMatch + c.Scoring.ContentSimilarity + c.Scoring.Recency +
		c.Scoring.Venue + c.Scoring.CitationImpact + c.Scoring.SourceQuality
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %f", weightSum)
	}

	// Validate download config
	if c.Download.MaxSizeBytes <= 0 {
		return fmt.Errorf("download max_size_bytes must be positive")
	}
	if c.Download.MaxConcurrent <= 0 {
		return fmt.Errorf("download max_concurrent must be positive")
	}

	return nil
}
