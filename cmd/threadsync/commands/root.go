package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	// configPath is an optional YAML config file.
	configPath string

	// baseURL overrides the configured API root.
	baseURL string

	// outputFormat is text or json. Defaults to text on a terminal and
	// json otherwise.
	outputFormat string

	// logLevel overrides the configured log level.
	logLevel string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "threadsync",
	Short: "Browse and follow agent workflow threads",
	Long: `threadsync talks to an agent workflow backend. It lists the threads
of a workflow, pages through a thread's messages, sends messages and follows
threads as new messages arrive.

Settings come from --config, a .env file in the working directory and
THREADSYNC_* environment variables, with flags taking precedence:

  threadsync --base-url http://localhost:8080 threads wf-42
  threadsync messages thread-7 --pages 3
  threadsync send thread-7 "status?" --watch
  threadsync watch thread-7 thread-9 --max-duration 2m`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupSession,
	PersistentPostRunE: teardownSession,
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()

	// Cobra skips the post run hook when a command fails.
	return errors.Join(err, teardownSession(rootCmd, nil))
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to a YAML config file",
	)
	rootCmd.PersistentFlags().StringVar(
		&baseURL, "base-url", "",
		"Backend API root (or $THREADSYNC_BASE_URL)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "",
		"Output format: text, json (default text on a terminal, "+
			"json otherwise)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error",
	)

	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
}
