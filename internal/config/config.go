// Package config provides configuration management for the research finder.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/helixir/research-finder/internal/domain"
)

// EnvPrefix prefixes every environment variable viper reads.
const EnvPrefix = "RESEARCH_FINDER"

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

// Cache backends.
const (
	CacheBackendSQLite   = "sqlite"
	CacheBackendPostgres = "postgres"
)

// Config holds all configuration for the research finder.
type Config struct {
	// Server contains settings for the optional HTTP surface.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL settings, used when the cache backend is postgres.
	Database DatabaseConfig `mapstructure:"database"`
	// Cache contains durable response cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Aggregator contains fan-out settings.
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	// Sources contains per-provider settings.
	Sources SourcesConfig `mapstructure:"sources"`
	// Output contains export settings.
	Output OutputConfig `mapstructure:"output"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
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
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationAutoRun applies the cache schema when the postgres store opens.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	// Backend is sqlite (default, a local file) or postgres (shared).
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// TTL is how long a cached response stays fresh.
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// AggregatorConfig holds fan-out configuration.
type AggregatorConfig struct {
	// TaskTimeout bounds each source task independently.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxConcurrency bounds the number of sources queried at once.
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// SourcesConfig holds per-provider configuration.
type SourcesConfig struct {
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	ArXiv           SourceConfig `mapstructure:"arxiv"`
	PubMed          SourceConfig `mapstructure:"pubmed"`
	CrossRef        SourceConfig `mapstructure:"crossref"`
	OpenAlex        SourceConfig `mapstructure:"openalex"`
	GoogleScholar   SourceConfig `mapstructure:"google_scholar"`
}

// SourceConfig holds configuration for one provider.
type SourceConfig struct {
	// Enabled controls whether the source is registered at all.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is loaded exclusively from the environment.
	APIKey string `mapstructure:"-"`
	// Email is the polite-pool contact address, loaded exclusively from the environment.
	Email string `mapstructure:"-"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the number of retries on 429 and 5xx responses.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// OutputConfig holds export configuration.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// For returns the configuration for a source type.
func (s SourcesConfig) For(st domain.SourceType) SourceConfig {
	switch st {
	case domain.SourceTypeSemanticScholar:
		return s.SemanticScholar
	case domain.SourceTypeArXiv:
		return s.ArXiv
	case domain.SourceTypePubMed:
		return s.PubMed
	case domain.SourceTypeCrossRef:
		return s.CrossRef
	case domain.SourceTypeOpenAlex:
		return s.OpenAlex
	case domain.SourceTypeGoogleScholar:
		return s.GoogleScholar
	default:
		return SourceConfig{}
	}
}

// Credentialed reports whether the credential that unlocks the relaxed
// rate-limit tier is configured for st. arXiv and Google Scholar have no
// such tier.
func (s SourcesConfig) Credentialed(st domain.SourceType) bool {
	switch st {
	case domain.SourceTypeSemanticScholar:
		return s.SemanticScholar.APIKey != ""
	case domain.SourceTypePubMed:
		return s.PubMed.APIKey != ""
	case domain.SourceTypeCrossRef:
		return s.CrossRef.Email != ""
	case domain.SourceTypeOpenAlex:
		return s.OpenAlex.Email != "" || s.OpenAlex.APIKey != ""
	default:
		return false
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
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

// HTTPAddress returns the HTTP server listen address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load reads configuration from defaults, an optional config file, a .env
// file and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations and tolerates a missing file.
func LoadFile(path string) (*Config, error) {
	// Values already present in the environment win over .env.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".research-finder"))
		}

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found is OK, we'll use env vars and defaults
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets reads credentials from the environment only. The short names
// are the ones provider documentation uses; the prefixed names follow the
// rest of the configuration.
func loadSecrets(cfg *Config) {
	cfg.Sources.SemanticScholar.APIKey = firstEnv("S2_API_KEY", EnvPrefix+"_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Sources.PubMed.APIKey = firstEnv("PUBMED_API_KEY", EnvPrefix+"_SOURCES_PUBMED_API_KEY")
	cfg.Sources.OpenAlex.APIKey = firstEnv("OPENALEX_API_KEY", EnvPrefix+"_SOURCES_OPENALEX_API_KEY")
	cfg.Sources.OpenAlex.Email = firstEnv("OPENALEX_EMAIL", EnvPrefix+"_SOURCES_OPENALEX_EMAIL")
	cfg.Sources.CrossRef.Email = firstEnv("CROSSREF_MAILTO", EnvPrefix+"_SOURCES_CROSSREF_EMAIL")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "research_finder")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "research_finder")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_auto_run", true)

	// Cache defaults
	v.SetDefault("cache.backend", CacheBackendSQLite)
	v.SetDefault("cache.path", filepath.Join("cache", "research_cache.db"))
	v.SetDefault("cache.ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "research_finder")

	// Aggregator defaults
	v.SetDefault("aggregator.task_timeout", "60s")
	v.SetDefault("aggregator.max_concurrency", len(domain.AllSourceTypes()))

	// Source defaults. Credentials are loaded from the environment (see loadSecrets).
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.crossref.enabled", true)
	v.SetDefault("sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.google_scholar.enabled", true)
	v.SetDefault("sources.google_scholar.base_url", "https://scholar.google.com")
	for _, st := range domain.AllSourceTypes() {
		prefix := "sources." + string(st)
		v.SetDefault(prefix+".timeout", "10s")
		v.SetDefault(prefix+".max_retries", 2)
		v.SetDefault(prefix+".retry_delay", "1s")
	}

	// Output defaults
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", "csv")
}

// Validate validates the configuration. Every failure is a
// *domain.ConfigurationError.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return domain.NewConfigurationError("server.http_port", fmt.Sprintf("invalid HTTP port: %d", c.Server.HTTPPort))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return domain.NewConfigurationError("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	switch c.Cache.Backend {
	case CacheBackendSQLite:
		if strings.TrimSpace(c.Cache.Path) == "" {
			return domain.NewConfigurationError("cache.path", "cache path is required for the sqlite backend")
		}
	case CacheBackendPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return domain.NewConfigurationError("cache.backend", fmt.Sprintf("unknown cache backend: %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		return domain.NewConfigurationError("cache.ttl", "cache ttl must be positive")
	}

	if c.Aggregator.TaskTimeout <= 0 {
		return domain.NewConfigurationError("aggregator.task_timeout", "task timeout must be positive")
	}
	if c.Aggregator.MaxConcurrency <= 0 {
		return domain.NewConfigurationError("aggregator.max_concurrency", "max concurrency must be positive")
	}

	for _, st := range domain.AllSourceTypes() {
		sc := c.Sources.For(st)
		field := "sources." + string(st)
		if sc.Enabled && sc.Timeout <= 0 {
			return domain.NewConfigurationError(field+".timeout", "timeout must be positive")
		}
		if sc.MaxRetries < 0 {
			return domain.NewConfigurationError(field+".max_retries", "max retries must not be negative")
		}
		if strings.ContainsAny(sc.APIKey, " \t\r\n") {
			return domain.NewConfigurationError(field+".api_key", "credential must not contain whitespace")
		}
		if sc.Email != "" && !strings.Contains(sc.Email, "@") {
			return domain.NewConfigurationError(field+".email", fmt.Sprintf("contact address %q is not an e-mail address", sc.Email))
		}
	}

	return nil
}

func (c *DatabaseConfig) validate() error {
	if c.Host == "" {
		return domain.NewConfigurationError("database.host", "database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return domain.NewConfigurationError("database.port", fmt.Sprintf("invalid database port: %d", c.Port))
	}
	if c.Name == "" {
		return domain.NewConfigurationError("database.name", "database name is required")
	}
	if c.MaxConns < c.MinConns {
		return domain.NewConfigurationError("database.max_conns", fmt.Sprintf("max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns))
	}
	return nil
}

// Warnings lists non-fatal problems worth logging at startup, such as
// missing credentials that leave a source on its stricter rate limit.
func (c *Config) Warnings() []string {
	var warnings []string
	missing := map[domain.SourceType]string{
		domain.SourceTypeSemanticScholar: "S2_API_KEY",
		domain.SourceTypePubMed:          "PUBMED_API_KEY",
		domain.SourceTypeCrossRef:        "CROSSREF_MAILTO",
		domain.SourceTypeOpenAlex:        "OPENALEX_EMAIL",
	}
	for _, st := range domain.AllSourceTypes() {
		env, ok := missing[st]
		if !ok || !c.Sources.For(st).Enabled || c.Sources.Credentialed(st) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s not set: %s will use its stricter rate limit", env, st.DisplayName()))
	}
	return warnings
}

// EnsureDirs creates the cache and output directories and checks that they
// are writable.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.Output.Dir}
	if c.Cache.Backend == CacheBackendSQLite {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.NewConfigurationError("dirs", fmt.Sprintf("cannot create %s: %v", dir, err))
		}
		check, err := os.CreateTemp(dir, ".write-check-*")
		if err != nil {
			return domain.NewConfigurationError("dirs", fmt.Sprintf("%s is not writable: %v", dir, err))
		}
		check.Close()
		os.Remove(check.Name())
	}
	return nil
}
