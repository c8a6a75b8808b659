// Package config provides configuration management for the application.
//
// Values are resolved in increasing order of precedence: built-in defaults,
// an optional config.yaml (with ${VAR} and ${VAR:-default} placeholders), and
// environment variables. A .env file in the working directory is loaded into
// the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reboosty/internal/selector"
)

// Defaults
const (
	DefaultPort               = "8080"
	DefaultRepoURL            = "https://github.com/reboosty/reboosty"
	DefaultAllowedHost        = "github.com"
	DefaultCacheControlMaxAge = 3600 // seconds
	DefaultSelectionTTL       = 60   // minutes
	DefaultRegistryTTL        = 60   // minutes
	DefaultStoreTimeout       = 2 * time.Second
	DefaultStoreType          = "memory"
	DefaultSQLitePath         = "data/reboosty.db"
	DefaultMongoDatabase      = "reboosty"
	DefaultPostgresMaxConns   = 10
	DefaultCleanupInterval    = time.Hour
	DefaultMetricsEndpoint    = "/metrics"
	DefaultLogFormat          = "auto"
	DefaultLogLevel           = "info"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Selection SelectionConfig `yaml:"selection"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// CacheControlMaxAge is the max-age, in seconds, sent with badge images. 0 disables caching.
	CacheControlMaxAge int `yaml:"cache_control_max_age"`
}

// SelectionConfig holds repo selection configuration
type SelectionConfig struct {
	DefaultRepoURL string `yaml:"default_repo_url"`
	AllowedHost    string `yaml:"allowed_host"`
	// SelectionTTLMinutes is how long a source keeps its selected repo
	SelectionTTLMinutes int `yaml:"selection_ttl_minutes"`
	// RegistryTTLMinutes is how long the registry snapshot is reused
	RegistryTTLMinutes int `yaml:"registry_ttl_minutes"`
	// StoreTimeout bounds each store call
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// SelectionTTL returns the selection TTL as a duration.
func (c SelectionConfig) SelectionTTL() time.Duration {
	return time.Duration(c.SelectionTTLMinutes) * time.Minute
}

// RegistryTTL returns the registry TTL as a duration.
func (c SelectionConfig) RegistryTTL() time.Duration {
	return time.Duration(c.RegistryTTLMinutes) * time.Minute
}

// StoreConfig holds key-value store configuration
type StoreConfig struct {
	// Type is one of: memory, redis, sqlite, postgresql, mongodb
	Type            string           `yaml:"type"`
	CleanupInterval time.Duration    `yaml:"cleanup_interval"`
	Redis           RedisConfig      `yaml:"redis"`
	SQLite          SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL      PostgreSQLConfig `yaml:"postgresql"`
	MongoDB         MongoDBConfig    `yaml:"mongodb"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL connection settings
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               DefaultPort,
			CacheControlMaxAge: DefaultCacheControlMaxAge,
		},
		Selection: SelectionConfig{
			DefaultRepoURL:      DefaultRepoURL,
			AllowedHost:         DefaultAllowedHost,
			SelectionTTLMinutes: DefaultSelectionTTL,
			RegistryTTLMinutes:  DefaultRegistryTTL,
			StoreTimeout:        DefaultStoreTimeout,
		},
		Store: StoreConfig{
			Type:            DefaultStoreType,
			CleanupInterval: DefaultCleanupInterval,
			SQLite:          SQLiteConfig{Path: DefaultSQLitePath},
			PostgreSQL:      PostgreSQLConfig{MaxConns: DefaultPostgresMaxConns},
			MongoDB:         MongoDBConfig{Database: DefaultMongoDatabase},
		},
		Metrics: MetricsConfig{
			Endpoint: DefaultMetricsEndpoint,
		},
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
	}
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	return load(".env", []string{"config.yaml", "config/config.yaml"})
}

func load(envFile string, configPaths []string) (*Config, error) {
	// Optional: a missing .env file is not an error
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		break
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Server.CacheControlMaxAge < 0 {
		errs = append(errs, fmt.Errorf("CACHE_CONTROL_MAX_AGE must be >= 0, got %d", c.Server.CacheControlMaxAge))
	}
	if c.Selection.SelectionTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("SELECTED_REPO_TTL must be > 0 minutes, got %d", c.Selection.SelectionTTLMinutes))
	}
	if c.Selection.RegistryTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("ALL_REPOS_CACHE_TTL must be > 0 minutes, got %d", c.Selection.RegistryTTLMinutes))
	}
	if c.Selection.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be > 0, got %s", c.Selection.StoreTimeout))
	}
	if validator, err := selector.NewURLValidator(c.Selection.AllowedHost); err != nil {
		errs = append(errs, fmt.Errorf("ALLOWED_HOST: %w", err))
	} else if !validator.Valid(c.Selection.DefaultRepoURL) {
		errs = append(errs, fmt.Errorf("DEFAULT_REPO_URL must look like https://%s/<owner>/<repo>, got %q",
			validator.Host(), c.Selection.DefaultRepoURL))
	}

	switch c.Store.Type {
	case "memory", "sqlite":
	case "redis":
		if c.Store.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_TYPE=redis"))
		}
	case "postgresql":
		if c.Store.PostgreSQL.URL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when STORE_TYPE=postgresql"))
		}
	case "mongodb":
		if c.Store.MongoDB.URL == "" {
			errs = append(errs, errors.New("MONGODB_URL is required when STORE_TYPE=mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_TYPE %q (valid: memory, redis, sqlite, postgresql, mongodb)", c.Store.Type))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("METRICS_ENDPOINT must start with '/', got %q", c.Metrics.Endpoint))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides copies set environment variables over the current values.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, v))
			return
		}
		*dst = n
	}
	setDuration := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", name, v))
			return
		}
		*dst = d
	}
	setBool := func(name string, dst *bool) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", name, v))
			return
		}
		*dst = b
	}

	setString("PORT", &cfg.Server.Port)
	setInt("CACHE_CONTROL_MAX_AGE", &cfg.Server.CacheControlMaxAge)

	setString("DEFAULT_REPO_URL", &cfg.Selection.DefaultRepoURL)
	setString("ALLOWED_HOST", &cfg.Selection.AllowedHost)
	setInt("SELECTED_REPO_TTL", &cfg.Selection.SelectionTTLMinutes)
	setInt("ALL_REPOS_CACHE_TTL", &cfg.Selection.RegistryTTLMinutes)
	setDuration("STORE_TIMEOUT", &cfg.Selection.StoreTimeout)

	setString("STORE_TYPE", &cfg.Store.Type)
	setDuration("STORE_CLEANUP_INTERVAL", &cfg.Store.CleanupInterval)
	setString("REDIS_URL", &cfg.Store.Redis.URL)
	setString("SQLITE_PATH", &cfg.Store.SQLite.Path)
	setString("POSTGRES_URL", &cfg.Store.PostgreSQL.URL)
	setInt("POSTGRES_MAX_CONNS", &cfg.Store.PostgreSQL.MaxConns)
	setString("MONGODB_URL", &cfg.Store.MongoDB.URL)
	setString("MONGODB_DATABASE", &cfg.Store.MongoDB.Database)

	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("LOG_LEVEL", &cfg.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// A ${VAR} whose variable is unset or empty is left as written.
func expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]

		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}
