// Package build wires up logging: a console handler, an optional rotating log
// file, and the per-package subsystem loggers.
package build

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// SubLogger is the setter a package exposes to receive its logger, usually
// its UseLogger function.
type SubLogger func(btclogv2.Logger)

// LogConfig controls how SetupLoggers builds the handler stack.
type LogConfig struct {
	// Level is the level applied to every subsystem, e.g. "info".
	Level string

	// Console receives the human readable stream. Defaults to stderr so
	// command output on stdout stays clean.
	Console io.Writer

	// Rotator enables the log file when its LogDir is set.
	Rotator *LogRotatorConfig
}

// LogManager owns the root handler and the registered subsystem loggers.
type LogManager struct {
	handler *HandlerSet
	file    *RotatingLogWriter
	loggers map[string]btclogv2.Logger
}

// ParseLevel maps a level name onto a btclog level.
func ParseLevel(level string) (btclog.Level, error) {
	if level == "" {
		return btclog.LevelInfo, nil
	}

	lvl, ok := btclog.LevelFromString(strings.ToLower(level))
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", level)
	}

	return lvl, nil
}

// SetupLoggers builds the handler stack described by cfg and hands a tagged
// logger to every entry of subsystems.
func SetupLoggers(cfg LogConfig,
	subsystems map[string]SubLogger) (*LogManager, error) {

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []btclogv2.Handler{btclogv2.NewDefaultHandler(console)}

	mgr := &LogManager{loggers: make(map[string]btclogv2.Logger)}
	if cfg.Rotator != nil && cfg.Rotator.LogDir != "" {
		mgr.file, err = NewRotatingLogWriter(cfg.Rotator)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, btclogv2.NewDefaultHandler(mgr.file))
	}

	mgr.handler = NewHandlerSet(handlers...)
	mgr.handler.SetLevel(level)

	for tag, use := range subsystems {
		logger := btclogv2.NewSLogger(mgr.handler.SubSystem(tag))
		logger.SetLevel(level)
		use(logger)

		mgr.loggers[tag] = logger
	}

	return mgr, nil
}

// SetLevel changes the level of every registered subsystem.
func (m *LogManager) SetLevel(level btclog.Level) {
	m.handler.SetLevel(level)
	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}

// Subsystems returns the registered subsystem tags in sorted order.
func (m *LogManager) Subsystems() []string {
	tags := make([]string, 0, len(m.loggers))
	for tag := range m.loggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

// Logger returns the logger registered under tag, or btclog.Disabled.
func (m *LogManager) Logger(tag string) btclogv2.Logger {
	if logger, ok := m.loggers[tag]; ok {
		return logger
	}

	return btclogv2.Disabled
}

// Close flushes and closes the log file, if one was opened.
func (m *LogManager) Close() error {
	if m.file == nil {
		return nil
	}

	return m.file.Close()
}
