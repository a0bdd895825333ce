package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caffeineduck/dotstar/executor"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDelay = 100 * time.Millisecond

// watchProgram runs the file at path, then runs it again in a fresh
// executor after every change until the command's context is done.
func watchProgram(cmd *cobra.Command, path string, opts []executor.Option) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	run := func() {
		code := runOnce(cmd, path, opts)
		fmt.Fprintf(cmd.ErrOrStderr(), "[dotstar] %s exited with status %d\n", path, code)
	}
	run()

	ctx := cmd.Context()
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDelay)
			pending = timer.C

		case <-pending:
			pending = nil
			run()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[dotstar] watch error: %v\n", err)
		}
	}
}

func runOnce(cmd *cobra.Command, path string, opts []executor.Option) int {
	source, err := os.ReadFile(path)
	if err != nil {
		return failure(cmd.ErrOrStderr(), err, false)
	}

	s, err := newSession(cmd, configDirs(path), opts...)
	if err != nil {
		return failure(cmd.ErrOrStderr(), err, false)
	}
	defer s.Close()

	return runProgram(cmd, s, program{source: source, path: path})
}
