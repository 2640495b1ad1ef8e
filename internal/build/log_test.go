package build

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    btclog.Level
		wantErr bool
	}{
		{in: "", want: btclog.LevelInfo},
		{in: "debug", want: btclog.LevelDebug},
		{in: "WARN", want: btclog.LevelWarn},
		{in: "trace", want: btclog.LevelTrace},
		{in: "chatty", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			lvl, err := ParseLevel(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, lvl)
		})
	}
}

func TestSetupLoggersConsole(t *testing.T) {
	var buf bytes.Buffer
	var got btclogv2.Logger

	mgr, err := SetupLoggers(LogConfig{
		Level:   "debug",
		Console: &buf,
	}, map[string]SubLogger{
		"TEST": func(l btclogv2.Logger) { got = l },
	})
	require.NoError(t, err)
	defer mgr.Close()

	require.NotNil(t, got)
	require.Equal(t, []string{"TEST"}, mgr.Subsystems())

	got.DebugS(context.Background(), "hello from test", "thread_id", "t1")
	require.Contains(t, buf.String(), "TEST")
	require.Contains(t, buf.String(), "hello from test")

	// Raising the level silences debug output.
	buf.Reset()
	mgr.SetLevel(btclog.LevelError)
	got.DebugS(context.Background(), "should not appear")
	require.Empty(t, buf.String())

	require.Equal(t, btclogv2.Disabled, mgr.Logger("NOPE"))
}

func TestSetupLoggersRejectsBadLevel(t *testing.T) {
	_, err := SetupLoggers(LogConfig{Level: "loud"}, nil)
	require.ErrorContains(t, err, "unknown log level")
}

func TestSetupLoggersRotatingFile(t *testing.T) {
	dir := t.TempDir()

	var got btclogv2.Logger
	mgr, err := SetupLoggers(LogConfig{
		Level:   "info",
		Console: &bytes.Buffer{},
		Rotator: &LogRotatorConfig{
			LogDir:         dir,
			MaxLogFiles:    2,
			MaxLogFileSize: 1,
		},
	}, map[string]SubLogger{
		"FILE": func(l btclogv2.Logger) { got = l },
	})
	require.NoError(t, err)

	got.InfoS(context.Background(), "written to disk")
	require.NoError(t, mgr.Close())

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFilename))
	require.NoError(t, err)
	require.Contains(t, string(data), "written to disk")
}

func TestNewRotatingLogWriterRequiresDir(t *testing.T) {
	_, err := NewRotatingLogWriter(DefaultLogRotatorConfig())
	require.Error(t, err)
}
