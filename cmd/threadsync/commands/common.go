package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/roasbeef/threadsync/internal/build"
	"github.com/roasbeef/threadsync/internal/config"
	"github.com/roasbeef/threadsync/internal/metrics"
	"github.com/roasbeef/threadsync/internal/poller"
	"github.com/roasbeef/threadsync/internal/render"
	"github.com/roasbeef/threadsync/internal/threadsync"
	"github.com/roasbeef/threadsync/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// metricsShutdownTimeout bounds the metrics server shutdown on exit.
const metricsShutdownTimeout = 2 * time.Second

// session holds everything a command needs once flags and config are
// resolved.
type session struct {
	cfg     config.Config
	format  render.Format
	client  *transport.Client
	metrics *metrics.Prometheus
	logs    *build.LogManager
	server  *http.Server

	out    io.Writer
	errOut io.Writer
}

// sess is set up by the root command before any subcommand runs.
var sess *session

// setupSession loads the config, applies the global flags, and builds the
// loggers, metrics and backend client.
func setupSession(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoadOptions{
		File:   configPath,
		DotEnv: config.DefaultDotEnvFile,
	})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Server.BaseURL = baseURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := applySyncFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := resolveFormat(cmd)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Console = cmd.ErrOrStderr()
	logs, err := build.SetupLoggers(logCfg, map[string]build.SubLogger{
		transport.Subsystem:  transport.UseLogger,
		poller.Subsystem:     poller.UseLogger,
		threadsync.Subsystem: threadsync.UseLogger,
		Subsystem:            UseLogger,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	rec := metrics.NewPrometheus()
	client, err := transport.New(
		cfg.TransportConfig(), transport.WithRecorder(rec),
	)
	if err != nil {
		_ = logs.Close()
		return err
	}

	s := &session{
		cfg:     cfg,
		format:  format,
		client:  client,
		metrics: rec,
		logs:    logs,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}

	if cfg.Metrics.ListenAddr != "" {
		if err := s.serveMetrics(cmd.Context()); err != nil {
			_ = logs.Close()
			return err
		}
	}

	sess = s

	return nil
}

// teardownSession stops the metrics server and flushes the log file.
func teardownSession(cmd *cobra.Command, _ []string) error {
	if sess == nil {
		return nil
	}
	s := sess
	sess = nil

	if s.server != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), metricsShutdownTimeout,
		)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			log.WarnS(ctx, "Metrics server shutdown failed", err)
		}
	}

	return s.logs.Close()
}

// serveMetrics exposes /metrics on the configured address.
func (s *session) serveMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Metrics.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.InfoS(ctx, "Serving metrics", "addr", ln.Addr().String())

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorS(ctx, "Metrics server failed", err)
		}
	}()

	return nil
}

// Paging and polling flags, registered by the commands that use them.
var (
	pageSize        int
	pollInterval    time.Duration
	pollMaxDuration time.Duration
	pollMaxTicks    int
)

// addPageFlag registers --page-size on cmd.
func addPageFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&pageSize, "page-size", config.DefaultPageSize,
		"Messages per page")
}

// addPollFlags registers the polling window flags on cmd.
func addPollFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&pollInterval, "interval",
		config.DefaultPollInterval, "Delay between polls")
	cmd.Flags().DurationVar(&pollMaxDuration, "max-duration",
		config.DefaultPollMaxDuration, "Stop polling after this long")
	cmd.Flags().IntVar(&pollMaxTicks, "max-ticks", 0,
		"Stop polling after this many polls (0 = no tick limit)")
}

// applySyncFlags copies the paging and polling flags that were set on cmd
// into cfg. A tick limit given without a duration replaces the default
// duration bound.
func applySyncFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("page-size") {
		cfg.Sync.PageSize = pageSize
	}
	if flags.Changed("interval") {
		cfg.Sync.PollInterval = pollInterval
	}
	if flags.Changed("max-duration") {
		cfg.Sync.PollMaxDuration = pollMaxDuration
	}
	if flags.Changed("max-ticks") {
		if pollMaxTicks < 0 {
			return fmt.Errorf("--max-ticks must not be negative")
		}
		cfg.Sync.PollMaxTicks = pollMaxTicks
		if !flags.Changed("max-duration") {
			cfg.Sync.PollMaxDuration = 0
		}
	}

	return nil
}

// newController builds a controller on the session client.
func (s *session) newController(
	opts ...threadsync.Option) (*threadsync.Controller, error) {

	opts = append([]threadsync.Option{
		threadsync.WithRecorder(s.metrics),
	}, opts...)

	return threadsync.New(s.client, s.cfg.SyncOptions(), opts...)
}

// stderrNotifications reports controller errors on the session's stderr.
// One-shot commands return the error instead.
func (s *session) stderrNotifications() threadsync.Option {
	return threadsync.WithNotifier(newStderrNotifier(s.errOut))
}

// resolveFormat honours an explicit --format and otherwise picks text for a
// terminal and json for pipes and files.
func resolveFormat(cmd *cobra.Command) (render.Format, error) {
	if cmd.Flags().Changed("format") {
		return render.ParseFormat(outputFormat)
	}

	if f, ok := cmd.OutOrStdout().(*os.File); ok &&
		term.IsTerminal(int(f.Fd())) {

		return render.FormatText, nil
	}

	return render.FormatJSON, nil
}

// stderrNotifier prints controller errors as they happen.
type stderrNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func newStderrNotifier(w io.Writer) *stderrNotifier {
	return &stderrNotifier{w: w}
}

// ShowError implements threadsync.Notifier.
func (n *stderrNotifier) ShowError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	fmt.Fprintf(n.w, "error: %s\n", message)
}

// lockedWriter serializes writes from concurrent watchers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}
