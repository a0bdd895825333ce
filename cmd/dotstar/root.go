package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caffeineduck/dotstar/config"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit statuses for failures that are not guest exits.
const (
	statusUsage      = 1
	statusDiagnostic = 254
	statusError      = 255
)

// exitError carries the process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// Execute runs the dotstar command line and returns the process exit status.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	var exit *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return statusUsage
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dotstar [file]",
		Short: "Run Starlark programs with shared environments",
		Long: `dotstar - Run Starlark programs in sync, async or promise-sync mode.

Code is read from a file, from --run, or from stdin when neither is given.
Configured bootstrap files run first. The exit status is the one the
program passes to exit(), 254 after a parse or compile error and 255
after any other error.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runRoot,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Configuration file (default: dotstar.{yaml,yml,json,cue} next to the script or in the working directory)")
	flags.String("log-level", os.Getenv("DOTSTAR_LOG_LEVEL"), "Log level: trace, debug, info, warn, error, off")
	flags.Bool("trace", false, "Write spans as JSON to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.Bool("kv", false, "Enable the key-value store")
	flags.String("kv-db", "", "Persist the key-value store in this SQLite database")
	flags.StringSlice("allow-host", nil, "Allow HTTP requests to host (repeatable)")
	flags.Duration("http-timeout", 0, "Timeout of guest HTTP requests")

	addRunFlags(cmd)
	cmd.AddCommand(newReplCommand())
	return cmd
}

// loadConfig reads --config, or searches dirs in order.
func loadConfig(cmd *cobra.Command, dirs ...string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(dirs...)
}

// newLogger builds the host logger. The flag and DOTSTAR_LOG_LEVEL take
// precedence over the configured level.
func newLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	logging := cfg.Logging
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		logging.Level = level
	}
	return telemetry.NewLogger(logging)
}
