package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{LookupEnv: envMap(nil)})
	require.NoError(t, err)

	require.Equal(t, 15, cfg.Sync.PageSize)
	require.Equal(t, 3*time.Second, cfg.Sync.PollInterval)
	require.Equal(t, 60*time.Second, cfg.Sync.PollMaxDuration)
	require.Zero(t, cfg.Sync.PollMaxTicks)
	require.Equal(t, "info", cfg.Log.Level)
	require.Empty(t, cfg.Metrics.ListenAddr)

	// Only the base URL is missing.
	require.ErrorContains(t, cfg.Validate(), "base_url is required")
	cfg.Server.BaseURL = "http://localhost:8080"
	require.NoError(t, cfg.Validate())
}

func TestLayering(t *testing.T) {
	file := writeFile(t, "threadsync.yaml", `
server:
  base_url: http://from-yaml
  timeout: 4s
  headers:
    Authorization: Bearer abc
sync:
  page_size: 20
  poll_interval: 2s
log:
  level: debug
`)
	dotenv := writeFile(t, ".env", `
THREADSYNC_BASE_URL=http://from-dotenv
THREADSYNC_POLL_MAX_TICKS=5
`)

	cfg, err := Load(LoadOptions{
		File:   file,
		DotEnv: dotenv,
		LookupEnv: envMap(map[string]string{
			EnvPageSize: "25",
		}),
	})
	require.NoError(t, err)

	// The .env file overrides YAML and the environment overrides both.
	require.Equal(t, "http://from-dotenv", cfg.Server.BaseURL)
	require.Equal(t, 4*time.Second, cfg.Server.Timeout)
	require.Equal(t, "Bearer abc", cfg.Server.Headers["Authorization"])
	require.Equal(t, 25, cfg.Sync.PageSize)
	require.Equal(t, 2*time.Second, cfg.Sync.PollInterval)
	require.Equal(t, 5, cfg.Sync.PollMaxTicks)
	require.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults.
	require.Equal(t, 60*time.Second, cfg.Sync.PollMaxDuration)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		opts LoadOptions
		want string
	}{{
		name: "missing yaml",
		opts: LoadOptions{File: "/does/not/exist.yaml"},
		want: "read config file",
	}, {
		name: "bad yaml",
		opts: LoadOptions{
			File: writeFile(t, "bad.yaml", "sync: [nope"),
		},
		want: "parse config file",
	}, {
		name: "bad duration in env",
		opts: LoadOptions{LookupEnv: envMap(map[string]string{
			EnvPollInterval: "soon",
		})},
		want: EnvPollInterval,
	}, {
		name: "bad number in dotenv",
		opts: LoadOptions{
			DotEnv:    writeFile(t, ".env", "THREADSYNC_PAGE_SIZE=lots\n"),
			LookupEnv: envMap(nil),
		},
		want: EnvPageSize,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.opts)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestMissingDotEnvIgnored(t *testing.T) {
	cfg, err := Load(LoadOptions{
		DotEnv:    filepath.Join(t.TempDir(), ".env"),
		LookupEnv: envMap(nil),
	})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.BaseURL = "http://localhost"
	cfg.Sync.PageSize = 0
	cfg.Sync.PollInterval = 0
	cfg.Sync.PollMaxTicks = -1
	cfg.Sync.PollMaxDuration = -time.Second
	cfg.Log.Level = "shouty"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"page_size", "poll_interval", "poll_max_ticks",
		"poll_max_duration", "log.level",
	} {
		require.ErrorContains(t, err, want)
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.BaseURL = "http://localhost"
	cfg.Server.RequestsPerSecond = 5
	cfg.Server.Burst = 2

	tc := cfg.TransportConfig()
	require.Equal(t, "http://localhost", tc.BaseURL)
	require.Equal(t, 10*time.Second, tc.Timeout)
	require.Equal(t, 5.0, tc.RequestsPerSecond)
	require.Equal(t, 2, tc.Burst)

	sc := cfg.SyncOptions()
	require.Equal(t, 15, sc.PageSize)
	require.Equal(t, 3*time.Second, sc.Poll.Interval)
	require.Equal(t, fn.Some(60*time.Second), sc.Poll.MaxDuration)
	require.True(t, sc.Poll.MaxTicks.IsNone())

	cfg.Sync.PollMaxTicks = 4
	cfg.Sync.PollMaxDuration = 0
	pc := cfg.PollConfig()
	require.Equal(t, fn.Some(4), pc.MaxTicks)
	require.True(t, pc.MaxDuration.IsNone())

	require.Nil(t, cfg.LoggingConfig().Rotator)
	cfg.Log.Dir = t.TempDir()
	lc := cfg.LoggingConfig()
	require.NotNil(t, lc.Rotator)
	require.Equal(t, cfg.Log.Dir, lc.Rotator.LogDir)
	require.Equal(t, 10, lc.Rotator.MaxLogFiles)
}
