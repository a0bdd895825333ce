package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/mode"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session busy")
)

// SessionResult is the outcome of one Session.Run.
type SessionResult struct {
	Value    engine.Result
	Output   string
	Duration time.Duration
	Error    error
}

// Session evaluates snippets one after another in the sync environment, so
// each snippet sees the globals of the previous ones. Output of each run is
// captured besides being forwarded to the host.
type Session struct {
	exec   *Executor
	cfg    sessionConfig
	output *sessionOutput

	mu     sync.Mutex
	execMu sync.Mutex
	closed bool
	runs   int
	detach []func()
}

type sessionConfig struct {
	timeout time.Duration
	name    string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout: 30 * time.Second,
		name:    "<repl>",
	}
}

type SessionOption func(*sessionConfig)

// WithSessionTimeout bounds each run. Zero disables the limit.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionName sets the pseudo path snippets are compiled under.
func WithSessionName(name string) SessionOption {
	return func(c *sessionConfig) {
		c.name = name
	}
}

func (e *Executor) NewSession(opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	env, err := e.Environment(mode.Sync)
	if err != nil {
		return nil, err
	}

	out := newSessionOutput()
	detach := []func(){
		env.Stdout().On(out.write),
		env.Stderr().On(out.write),
	}

	return &Session{exec: e, cfg: cfg, output: out, detach: detach}, nil
}

// Run evaluates code. A non-nil, non-exit value of a trailing expression is
// returned in Value.
func (s *Session) Run(ctx context.Context, code string) SessionResult {
	if !s.execMu.TryLock() {
		return SessionResult{Error: ErrSessionBusy}
	}
	defer s.execMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SessionResult{Error: ErrSessionClosed}
	}
	s.runs++
	name := fmt.Sprintf("%s:%d", s.cfg.name, s.runs)
	s.mu.Unlock()

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.output.Reset()
	res, err := s.exec.EvaluateSync(ctx, []byte(code), name)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timeout after %v", s.cfg.timeout)
	}

	return SessionResult{
		Value:    res,
		Output:   s.output.String(),
		Duration: time.Since(start),
		Error:    err,
	}
}

// Incomplete reports whether code looks like the start of a longer input,
// such as an open block or bracket.
func (s *Session) Incomplete(code string) bool {
	_, err := s.exec.transpiler.Parse([]byte(code), s.cfg.name)
	if err == nil {
		return false
	}
	var diag *engine.DiagnosticError
	if !errors.As(err, &diag) {
		return false
	}
	return strings.Contains(diag.Msg, "unexpected EOF") ||
		strings.Contains(diag.Msg, "got end of file") ||
		strings.HasSuffix(strings.TrimRight(code, " \t"), ":")
}

// Close stops capturing output of the shared environment.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, off := range s.detach {
		off()
	}
	s.detach = nil
	return nil
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) write(data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
