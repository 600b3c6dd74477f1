// Package config loads the dashboard configuration.
//
// Values are layered, later sources overriding earlier ones:
//  1. Default values
//  2. A YAML file (--config-file or TSDASH_CONFIG_FILE)
//  3. Environment variables, prefixed with TSDASH_ (the unprefixed name,
//     e.g. PORT, is accepted as a fallback)
//  4. Command-line flags
//
// Example usage:
//
//	cfg, err := config.Load(os.Args[1:])
//	if err != nil {
//		// invalid flag, unreadable file or out-of-range value
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/ingest"
	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/tls"
)

const envPrefix = "TSDASH"

// Config holds all dashboard configuration.
type Config struct {
	Host       string `yaml:"host" envconfig:"HOST"`
	Port       int    `yaml:"port" envconfig:"PORT"`
	NoBrowser  bool   `yaml:"no_browser" envconfig:"NO_BROWSER"`
	ConfigFile string `yaml:"-" envconfig:"CONFIG_FILE"`

	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Storage       string        `yaml:"storage" envconfig:"STORAGE"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB"`
	SessionTTL    time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`

	TLS tls.Config `yaml:"tls" envconfig:"TLS"`

	MinSampleSize  int    `yaml:"min_sample_size" envconfig:"MIN_SAMPLE_SIZE"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	PlotDir        string `yaml:"plot_dir" envconfig:"PLOT_DIR"`
	ResultsDir     string `yaml:"results_dir" envconfig:"RESULTS_DIR"`
	SampleSeed     uint64 `yaml:"sample_seed" envconfig:"SAMPLE_SEED"`

	Coverage      float64 `yaml:"coverage" envconfig:"COVERAGE"`
	RefitCoverage float64 `yaml:"refit_coverage" envconfig:"REFIT_COVERAGE"`
	Horizon       int     `yaml:"horizon" envconfig:"HORIZON"`
	IntervalLevel string  `yaml:"interval_level" envconfig:"INTERVAL_LEVEL"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`

	ImportEnabled bool          `yaml:"import_enabled" envconfig:"IMPORT_ENABLED"`
	ImportTimeout time.Duration `yaml:"import_timeout" envconfig:"IMPORT_TIMEOUT"`
	ImportCAFile  string        `yaml:"import_ca_file" envconfig:"IMPORT_CA_FILE"`

	Tracing         string        `yaml:"tracing" envconfig:"TRACING"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	base := filepath.Join(os.TempDir(), "tsdash")
	return &Config{
		Host:            "localhost",
		Port:            8000,
		LogFormat:       "text",
		LogLevel:        "info",
		Storage:         "memory",
		RedisAddr:       "localhost:6379",
		SessionTTL:      time.Hour,
		MinSampleSize:   ingest.DefaultMinRows,
		MaxUploadBytes:  7 << 20,
		PlotDir:         filepath.Join(base, "plots"),
		ResultsDir:      filepath.Join(base, "results"),
		SampleSeed:      123,
		Coverage:        0.6,
		RefitCoverage:   0.3,
		Horizon:         15,
		IntervalLevel:   "p95",
		RateLimitRPS:    5,
		RateLimitBurst:  10,
		ImportTimeout:   30 * time.Second,
		Tracing:         "none",
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from args and the environment. args
// excludes the program name.
func Load(args []string) (*Config, error) {
	probe := Default()
	if err := newFlagSet(probe).Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	path := probe.ConfigFile
	if path == "" {
		path = lookupEnv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	// flags win over everything else
	fs := newFlagSet(cfg)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("tsdash", flag.ContinueOnError)

	fs.StringVar(&cfg.Host, "host", cfg.Host, "Host to bind the web server to")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to serve the dashboard on")
	fs.IntVar(&cfg.Port, "p", cfg.Port, "Shorthand for --port")
	fs.BoolVar(&cfg.NoBrowser, "no-browser", cfg.NoBrowser, "Do not open a browser tab on start")
	fs.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "Path to a YAML configuration file")

	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Session storage: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "How long a loaded series is kept")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", cfg.TLS.Enabled, "Serve over TLS")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", cfg.TLS.CertFile, "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", cfg.TLS.KeyFile, "TLS private key file")
	fs.StringVar(&cfg.TLS.ClientCAFile, "tls-client-ca-file", cfg.TLS.ClientCAFile, "CA file used to verify client certificates")

	fs.IntVar(&cfg.MinSampleSize, "min-sample-size", cfg.MinSampleSize, "Minimum number of values in a series")
	fs.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "Largest accepted upload")
	fs.StringVar(&cfg.PlotDir, "plot-dir", cfg.PlotDir, "Directory for rendered plots")
	fs.StringVar(&cfg.ResultsDir, "results-dir", cfg.ResultsDir, "Directory for results CSV files")
	fs.Uint64Var(&cfg.SampleSeed, "sample-seed", cfg.SampleSeed, "Seed of the sample generator (0 = seed from clock)")

	fs.Float64Var(&cfg.Coverage, "coverage", cfg.Coverage, "Share of the series covered by predictions")
	fs.Float64Var(&cfg.RefitCoverage, "refit-coverage", cfg.RefitCoverage, "Share of the series covered by refit predictions")
	fs.IntVar(&cfg.Horizon, "horizon", cfg.Horizon, "Number of periods forecast by a refit")
	fs.StringVar(&cfg.IntervalLevel, "interval-level", cfg.IntervalLevel, "Forecast interval (p80, p95, 0.9; 0 disables)")

	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "Fitting requests per second (0 disables)")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", cfg.RateLimitBurst, "Fitting request burst")

	fs.BoolVar(&cfg.ImportEnabled, "import-enabled", cfg.ImportEnabled, "Allow importing series from remote sources")
	fs.DurationVar(&cfg.ImportTimeout, "import-timeout", cfg.ImportTimeout, "Timeout of a remote import")
	fs.StringVar(&cfg.ImportCAFile, "import-ca-file", cfg.ImportCAFile, "CA file used to verify remote sources")

	fs.StringVar(&cfg.Tracing, "tracing", cfg.Tracing, "Trace exporter: none or stdout")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Server read/write timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	return fs
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func lookupEnv(name string) string {
	if v := os.Getenv(envPrefix + "_" + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

// Validate rejects values outside their domain.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", c.Port)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", c.LogLevel)
	}

	switch c.Storage {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis address required when storage=redis")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("redis database number must be >= 0, got %d", c.RedisDB)
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be > 0")
	}

	if err := c.TLS.Validate(); err != nil {
		return err
	}

	if c.MinSampleSize < 3 {
		return fmt.Errorf("min sample size must be >= 3, got %d", c.MinSampleSize)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be > 0")
	}
	if c.PlotDir == "" || c.ResultsDir == "" {
		return errors.New("plot and results directories are required")
	}

	if _, err := c.Analysis(); err != nil {
		return err
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit values cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst == 0 {
		return errors.New("rate limit burst must be > 0 when rate limiting is on")
	}
	if c.ImportTimeout <= 0 {
		return errors.New("import timeout must be > 0")
	}

	switch c.Tracing {
	case "none", "stdout":
	default:
		return fmt.Errorf("invalid tracing exporter %q (must be none or stdout)", c.Tracing)
	}
	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("request and shutdown timeouts must be > 0")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Analysis returns the fitter settings.
func (c *Config) Analysis() (analysis.Config, error) {
	level, err := models.ParseIntervalLevel(c.IntervalLevel)
	if err != nil {
		return analysis.Config{}, fmt.Errorf("interval level: %w", err)
	}
	ac := analysis.DefaultConfig()
	ac.Coverage = c.Coverage
	ac.RefitCoverage = c.RefitCoverage
	ac.Horizon = c.Horizon
	ac.IntervalLevel = level
	if err := ac.Validate(); err != nil {
		return analysis.Config{}, err
	}
	return ac, nil
}
