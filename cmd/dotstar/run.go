package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caffeineduck/dotstar/config"
	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/executor"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("dump-ast", "u", false, "Print the syntax tree as JSON instead of running")
	cmd.Flags().BoolP("transpile-only", "t", false, "Print the compiled unit instead of running")
	cmd.Flags().StringP("run", "r", "", "Run code given on the command line")
	cmd.Flags().StringP("file", "f", "", "Run the file at path")
	cmd.Flags().Bool("sync", false, "Run in sync mode")
	cmd.Flags().String("mode", "", "Run in mode: async, psync or sync")
	cmd.Flags().Bool("watch", false, "Run the file again whenever it changes")
}

// program is the source selected on the command line.
type program struct {
	source []byte
	// path is empty for --run and stdin.
	path string
	// stdin is set when the source is still to be read from stdin.
	stdin bool
}

// session holds an executor and the resources built alongside it.
type session struct {
	exec    *executor.Executor
	logger  zerolog.Logger
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	if s.exec != nil {
		errs = append(errs, s.exec.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newSession loads configuration from dirs and builds an executor wired to
// the command's streams.
func newSession(cmd *cobra.Command, dirs []string, opts ...executor.Option) (*session, error) {
	cfg, err := loadConfig(cmd, dirs...)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{logger: logger, closers: []func() error{logCloser.Close}}
	base := []executor.Option{
		executor.WithConfig(cfg),
		executor.WithLogger(logger),
		executor.WithStdin(cmd.InOrStdin()),
		executor.WithStdout(cmd.OutOrStdout()),
		executor.WithStderr(cmd.ErrOrStderr()),
	}

	flags := cmd.Flags()
	if enabled, _ := flags.GetBool("kv"); enabled {
		path, _ := flags.GetString("kv-db")
		base = append(base, executor.WithKV(path))
	} else if path, _ := flags.GetString("kv-db"); path != "" {
		base = append(base, executor.WithKV(path))
	}
	if hosts, _ := flags.GetStringSlice("allow-host"); len(hosts) > 0 {
		base = append(base, executor.WithAllowedHosts(hosts...))
	}
	if timeout, _ := flags.GetDuration("http-timeout"); timeout > 0 {
		base = append(base, executor.WithHTTPTimeout(timeout))
	}

	if enabled, _ := flags.GetBool("trace"); enabled {
		tp, err := telemetry.NewTracerProvider(cmd.ErrOrStderr())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() error { return tp.Shutdown(context.Background()) })
		base = append(base, executor.WithTracerProvider(tp))
	}

	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		metrics := telemetry.NewMetrics()
		srv, err := serveMetrics(addr, metrics, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, srv.Close)
		base = append(base, executor.WithMetrics(metrics))
	}

	exec, err := executor.New(append(base, opts...)...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.exec = exec
	return s, nil
}

// modeOption turns --sync and --mode into an executor option, nil when
// neither is set.
func modeOption(cmd *cobra.Command) (executor.Option, error) {
	sync, _ := cmd.Flags().GetBool("sync")
	name, _ := cmd.Flags().GetString("mode")
	if !sync && name == "" {
		return nil, nil
	}
	m, err := (&config.Config{Mode: name, Sync: sync}).ResolveMode()
	if err != nil {
		return nil, err
	}
	return executor.WithMode(m), nil
}

// readProgram selects --run, --file, the positional file or stdin, in that
// order. Stdin is read later through the executor.
func readProgram(cmd *cobra.Command, args []string) (program, error) {
	if code, _ := cmd.Flags().GetString("run"); cmd.Flags().Changed("run") {
		return program{source: []byte(code)}, nil
	}

	path, _ := cmd.Flags().GetString("file")
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path != "" {
		source, err := os.ReadFile(path)
		if err != nil {
			return program{}, err
		}
		return program{source: source, path: path}, nil
	}

	return program{stdin: true}, nil
}

// configDirs are searched for configuration: the script directory, then
// the working directory.
func configDirs(path string) []string {
	var dirs []string
	if path != "" {
		dirs = append(dirs, filepath.Dir(path))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}

func runRoot(cmd *cobra.Command, args []string) error {
	prog, err := readProgram(cmd, args)
	if err != nil {
		return err
	}

	var opts []executor.Option
	modeOpt, err := modeOption(cmd)
	if err != nil {
		return err
	}
	if modeOpt != nil {
		opts = append(opts, modeOpt)
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if prog.path == "" {
			return errors.New("--watch requires a file")
		}
		return watchProgram(cmd, prog.path, opts)
	}

	s, err := newSession(cmd, configDirs(prog.path), opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if prog.stdin {
		source, err := s.exec.ReadStdin().Await(cmd.Context())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prog.source = []byte(source)
	}
	return exitWith(runProgram(cmd, s, prog))
}

// runProgram runs prog, or prints it with --dump-ast and --transpile-only,
// and returns the exit status.
func runProgram(cmd *cobra.Command, s *session, prog program) int {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if dump, _ := cmd.Flags().GetBool("dump-ast"); dump {
		out, err := s.exec.DumpAST(prog.source, prog.path)
		if err != nil {
			return failure(stderr, err, false)
		}
		stdout.Write(out)
		return 0
	}
	if transpile, _ := cmd.Flags().GetBool("transpile-only"); transpile {
		out, err := s.exec.Transpile(prog.source, prog.path)
		if err != nil {
			return failure(stderr, err, false)
		}
		stdout.Write(out)
		return 0
	}

	sync := s.exec.Mode().IsSynchronous()

	var (
		res engine.Result
		err error
	)
	if sync {
		res, err = s.exec.BootstrapSync(ctx)
	} else {
		res, err = s.exec.Bootstrap(ctx).Await(ctx)
	}
	if err != nil {
		return failure(stderr, err, false)
	}
	if res.IsExit() {
		return res.Status()
	}

	if sync {
		res, err = s.exec.EvaluateSync(ctx, prog.source, prog.path)
	} else {
		res, err = s.exec.Evaluate(ctx, prog.source, prog.path).Await(ctx)
	}
	if err != nil {
		return failure(stderr, err, true)
	}
	if res.IsExit() {
		return res.Status()
	}
	return 0
}

// failure prints err unless it is a diagnostic the environment already
// reported, and returns the matching exit status. Diagnostics of included
// files are always reported where the include failed.
func failure(w io.Writer, err error, reported bool) int {
	var evalErr *starlark.EvalError
	nested := errors.As(err, &evalErr)

	if engine.IsDiagnostic(err) {
		if !reported && !nested {
			fmt.Fprintln(w, err)
		}
		return statusDiagnostic
	}

	if nested {
		fmt.Fprintln(w, evalErr.Backtrace())
	} else {
		fmt.Fprintln(w, err)
	}
	return statusError
}
