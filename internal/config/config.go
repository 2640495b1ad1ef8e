// Package config loads the client settings. Values are layered: defaults,
// then a YAML file, then a .env file, then the process environment. Command
// line flags are applied on top by the caller before Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/threadsync/internal/build"
	"github.com/roasbeef/threadsync/internal/poller"
	"github.com/roasbeef/threadsync/internal/threadsync"
	"github.com/roasbeef/threadsync/internal/transport"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPageSize is the number of messages per page.
	DefaultPageSize = threadsync.DefaultPageSize

	// DefaultPollInterval is the delay between two poll ticks.
	DefaultPollInterval = poller.DefaultInterval

	// DefaultPollMaxDuration bounds a polling window.
	DefaultPollMaxDuration = poller.DefaultMaxDuration

	// DefaultLogLevel is the level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultDotEnvFile is read from the working directory when present.
	DefaultDotEnvFile = ".env"
)

// Environment variables read by Load.
const (
	EnvBaseURL         = "THREADSYNC_BASE_URL"
	EnvPageSize        = "THREADSYNC_PAGE_SIZE"
	EnvPollInterval    = "THREADSYNC_POLL_INTERVAL"
	EnvPollMaxDuration = "THREADSYNC_POLL_MAX_DURATION"
	EnvPollMaxTicks    = "THREADSYNC_POLL_MAX_TICKS"
	EnvLogLevel        = "THREADSYNC_LOG_LEVEL"
	EnvLogDir          = "THREADSYNC_LOG_DIR"
	EnvMetricsAddr     = "THREADSYNC_METRICS_ADDR"
)

// Config is the complete client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig describes the backend.
type ServerConfig struct {
	// BaseURL is the API root.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one HTTP round trip.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond turns on the client side limiter when positive.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the limiter burst.
	Burst int `yaml:"burst"`

	// Headers are sent with every request.
	Headers map[string]string `yaml:"headers"`
}

// SyncConfig controls paging and polling.
type SyncConfig struct {
	PageSize        int           `yaml:"page_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxDuration time.Duration `yaml:"poll_max_duration"`

	// PollMaxTicks bounds a window by tick count; zero leaves it unset.
	PollMaxTicks int `yaml:"poll_max_ticks"`
}

// LogConfig controls the log output.
type LogConfig struct {
	Level string `yaml:"level"`

	// Dir enables the rotating log file when set.
	Dir           string `yaml:"dir"`
	MaxFiles      int    `yaml:"max_files"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr serves /metrics when set, e.g. "127.0.0.1:9120".
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns the built in defaults. BaseURL has no default.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Timeout: transport.DefaultTimeout,
			Burst:   1,
		},
		Sync: SyncConfig{
			PageSize:        DefaultPageSize,
			PollInterval:    DefaultPollInterval,
			PollMaxDuration: DefaultPollMaxDuration,
		},
		Log: LogConfig{
			Level:         DefaultLogLevel,
			MaxFiles:      build.DefaultMaxLogFiles,
			MaxFileSizeMB: build.DefaultMaxLogFileSize,
		},
	}
}

// LoadOptions says where Load looks for settings.
type LoadOptions struct {
	// File is a YAML file. Empty skips it; a missing file is an error.
	File string

	// DotEnv is a .env file. A missing file is ignored.
	DotEnv string

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Load builds a Config from defaults, the YAML file, the .env file and the
// environment, in that order. It does not validate.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w",
				opts.File, err)
		}
	}

	if opts.DotEnv != "" {
		vars, err := godotenv.Read(opts.DotEnv)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// The file is optional.

		case err != nil:
			return cfg, fmt.Errorf("read %s: %w", opts.DotEnv, err)

		default:
			err := cfg.applyEnv(func(key string) (string, bool) {
				v, ok := vars[key]
				return v, ok
			})
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", opts.DotEnv, err)
			}
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n

		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d

		return nil
	}

	str(EnvBaseURL, &c.Server.BaseURL)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogDir, &c.Log.Dir)
	str(EnvMetricsAddr, &c.Metrics.ListenAddr)

	return errors.Join(
		num(EnvPageSize, &c.Sync.PageSize),
		num(EnvPollMaxTicks, &c.Sync.PollMaxTicks),
		dur(EnvPollInterval, &c.Sync.PollInterval),
		dur(EnvPollMaxDuration, &c.Sync.PollMaxDuration),
	)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("server.base_url is required "+
			"(flag --base-url or %s)", EnvBaseURL))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout is negative"))
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, errors.New(
			"server.requests_per_second is negative",
		))
	}
	if c.Sync.PageSize < 1 {
		errs = append(errs, fmt.Errorf("sync.page_size must be at "+
			"least 1, got %d", c.Sync.PageSize))
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval must be "+
			"positive, got %v", c.Sync.PollInterval))
	}
	if c.Sync.PollMaxDuration < 0 {
		errs = append(errs, errors.New(
			"sync.poll_max_duration is negative",
		))
	}
	if c.Sync.PollMaxTicks < 0 {
		errs = append(errs, errors.New("sync.poll_max_ticks is negative"))
	}
	if _, err := build.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// TransportConfig returns the backend client settings.
func (c Config) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.BaseURL = c.Server.BaseURL
	if c.Server.Timeout > 0 {
		cfg.Timeout = c.Server.Timeout
	}
	cfg.RequestsPerSecond = c.Server.RequestsPerSecond
	cfg.Burst = c.Server.Burst
	cfg.Headers = c.Server.Headers

	return cfg
}

// PollConfig returns the polling window. Zero bounds are left unset; a
// poller given no bound at all falls back to its default duration.
func (c Config) PollConfig() poller.Config {
	cfg := poller.Config{
		Interval:    c.Sync.PollInterval,
		MaxTicks:    fn.None[int](),
		MaxDuration: fn.None[time.Duration](),
	}
	if c.Sync.PollMaxTicks > 0 {
		cfg.MaxTicks = fn.Some(c.Sync.PollMaxTicks)
	}
	if c.Sync.PollMaxDuration > 0 {
		cfg.MaxDuration = fn.Some(c.Sync.PollMaxDuration)
	}

	return cfg
}

// SyncOptions returns the controller settings.
func (c Config) SyncOptions() threadsync.Config {
	return threadsync.Config{
		PageSize: c.Sync.PageSize,
		Poll:     c.PollConfig(),
	}
}

// LoggingConfig returns the log setup, with a rotating file when Log.Dir is
// set.
func (c Config) LoggingConfig() build.LogConfig {
	cfg := build.LogConfig{Level: c.Log.Level}
	if c.Log.Dir != "" {
		rot := build.DefaultLogRotatorConfig()
		rot.LogDir = c.Log.Dir
		if c.Log.MaxFiles > 0 {
			rot.MaxLogFiles = c.Log.MaxFiles
		}
		if c.Log.MaxFileSizeMB > 0 {
			rot.MaxLogFileSize = c.Log.MaxFileSizeMB
		}
		cfg.Rotator = rot
	}

	return cfg
}
