package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/executor"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

const (
	prompt         = ">>> "
	continuePrompt = "... "
)

func newReplCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL with persistent state",
		Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Snippets run in the sync environment, so definitions persist between them.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line blocks, ended with an empty line

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.dotstar_history)")
	cmd.Flags().Duration("timeout", 0, "Limit each snippet to this duration")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".dotstar_history")
	}

	s, err := newSession(cmd, configDirs(""))
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []executor.SessionOption
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		opts = append(opts, executor.WithSessionTimeout(timeout))
	}
	session, err := s.exec.NewSession(opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "dotstar REPL (type 'exit' to quit, Ctrl+D to exit)")
	return exitWith(repl(cmd, session, rl))
}

// lineReader is the part of readline the loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

// repl reads snippets until EOF, "exit" or a guest exit, and returns the
// exit status.
func repl(cmd *cobra.Command, session *executor.Session, rl lineReader) int {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var (
		pending strings.Builder
		block   bool
	)
	reset := func() {
		pending.Reset()
		block = false
		rl.SetPrompt(prompt)
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			reset()
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(stderr, "Error reading input: %v\n", err)
			}
			return 0
		}

		if pending.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if trimmed == "exit" || trimmed == "quit" {
				return 0
			}
		}

		pending.WriteString(line)
		pending.WriteString("\n")
		code := pending.String()

		// A block runs once an empty line ends it; an open bracket runs as
		// soon as the input parses.
		switch {
		case block && strings.TrimSpace(line) != "":
			continue
		case !block && session.Incomplete(code):
			block = strings.HasSuffix(strings.TrimSpace(code), ":")
			rl.SetPrompt(continuePrompt)
			continue
		}
		reset()

		result := session.Run(ctx, code)
		if result.Output != "" && !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(stdout)
		}
		if result.Error != nil {
			if !engine.IsDiagnostic(result.Error) {
				failure(stderr, result.Error, true)
			}
			continue
		}
		if result.Value.IsExit() {
			return result.Value.Status()
		}
		if v := result.Value.Value(); v != starlark.None {
			fmt.Fprintln(stdout, v.String())
		}
	}
}
