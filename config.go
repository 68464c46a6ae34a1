package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	HTTP    HTTPConfig    `toml:"http" yaml:"http"`
	Store   StoreConfig   `toml:"store" yaml:"store"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `toml:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	Driver  string `toml:"driver" yaml:"driver"`
	DSN     string `toml:"dsn" yaml:"dsn"`

	RedisAddr     string `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `toml:"redis_password" yaml:"redis_password"`
	RedisDB       int    `toml:"redis_db" yaml:"redis_db"`

	// EnforceUniqueTitles turns the advisory duplicate-title check into a
	// store-level constraint.
	EnforceUniqueTitles bool `toml:"enforce_unique_titles" yaml:"enforce_unique_titles"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// AuthConfig lists accepted bearer API keys. Auth is off when empty.
type AuthConfig struct {
	APIKeys []string `toml:"api_keys" yaml:"api_keys"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":9090",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend:   BackendSQL,
			Driver:    DriverSQLite,
			DSN:       "file:todos.db?_busy_timeout=5000",
			RedisAddr: "localhost:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig builds the configuration from, in increasing priority:
// defaults, a config file (-config or TODO_CONFIG), environment variables
// and explicitly set flags.
func LoadConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	var (
		configPath  = fs.String("config", "", "path to a .toml or .yaml config file")
		addr        = fs.String("addr", "", "HTTP listen address")
		backend     = fs.String("store", "", "store backend: sql or redis")
		driver      = fs.String("driver", "", "sql driver: sqlite3, postgres or pgx")
		dsn         = fs.String("dsn", "", "sql data source name")
		redisAddr   = fs.String("redis-addr", "", "redis address")
		logLevel    = fs.String("log-level", "", "log level: debug, info, warn, error")
		logFormat   = fs.String("log-format", "", "log format: text, json, logfmt")
		apiKeys     = fs.String("api-keys", "", "comma-separated bearer API keys")
		enforceUniq = fs.Bool("enforce-unique-titles", false, "reject duplicate titles at the store")
		metrics     = fs.Bool("metrics", true, "serve Prometheus metrics")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	path := *configPath
	if path == "" {
		path = os.Getenv("TODO_CONFIG")
	}
	if path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := loadConfigEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.HTTP.Addr = *addr
		case "store":
			cfg.Store.Backend = *backend
		case "driver":
			cfg.Store.Driver = *driver
		case "dsn":
			cfg.Store.DSN = *dsn
		case "redis-addr":
			cfg.Store.RedisAddr = *redisAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "api-keys":
			cfg.Auth.APIKeys = splitList(*apiKeys)
		case "enforce-unique-titles":
			cfg.Store.EnforceUniqueTitles = *enforceUniq
		case "metrics":
			cfg.Metrics.Enabled = *metrics
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile decodes a TOML or YAML file over cfg, picked by extension.
func loadConfigFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	case ".toml", "":
		_, err := toml.DecodeFile(path, cfg)
		return err
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
}

// loadConfigEnv overrides cfg from environment variables.
func loadConfigEnv(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Store.RedisDB = n
	}
	if v := os.Getenv("ENFORCE_UNIQUE_TITLES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENFORCE_UNIQUE_TITLES: %w", err)
		}
		cfg.Store.EnforceUniqueTitles = b
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("METRICS_ENABLED: %w", err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

// Validate checks that every setting holds a supported value.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http addr is empty")
	}
	switch c.Store.Backend {
	case BackendSQL:
		switch c.Store.Driver {
		case DriverSQLite, DriverPostgres, DriverPgx:
		default:
			return fmt.Errorf("unsupported sql driver %q", c.Store.Driver)
		}
		if c.Store.DSN == "" {
			return fmt.Errorf("sql dsn is empty")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis addr is empty")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := parseLogFormatter(c.Log.Format); err != nil {
		return err
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.Metrics.Path)
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if v := strings.TrimSpace(k); v != "" {
			out = append(out, v)
		}
	}
	return out
}
