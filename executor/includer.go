package executor

import (
	"context"
	"errors"
	"io/fs"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// IncludeError reports a guest include of a file that does not exist. The
// message never carries system error text.
type IncludeError struct {
	Path string
	Err  error
}

func (e *IncludeError) Error() string {
	return "No such file or directory"
}

func (e *IncludeError) Unwrap() error {
	return e.Err
}

// IncluderFactory creates the includers compiled units resolve guest
// include paths with.
type IncluderFactory struct {
	paths   *PathMapper
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// IncluderOption configures an IncluderFactory.
type IncluderOption func(*IncluderFactory)

func WithIncluderLogger(logger zerolog.Logger) IncluderOption {
	return func(f *IncluderFactory) {
		f.logger = telemetry.Component(logger, "includer")
	}
}

func WithIncluderMetrics(m *telemetry.Metrics) IncluderOption {
	return func(f *IncluderFactory) {
		f.metrics = m
	}
}

func NewIncluderFactory(paths *PathMapper, opts ...IncluderOption) *IncluderFactory {
	f := &IncluderFactory{paths: paths, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns an includer compiling files through c in mode m. The
// future it returns is always settled.
func (f *IncluderFactory) Create(c UnitCompiler, fsys *filesystem.FileSystem, m mode.Mode) engine.Includer {
	return func(ctx context.Context, path string) *future.Future[engine.ModuleFactory] {
		factory, err := f.include(c, fsys, m, path)
		f.metrics.IncludeDone(telemetry.Status(err))
		if err != nil {
			f.logger.Debug().Err(err).Str("path", path).Msg("include failed")
			return future.Rejected[engine.ModuleFactory](err)
		}
		return future.Resolved(factory)
	}
}

func (f *IncluderFactory) include(c UnitCompiler, fsys *filesystem.FileSystem, m mode.Mode, path string) (engine.ModuleFactory, error) {
	canonical, err := fsys.RealPath(path)
	if err != nil {
		return nil, minimize(path, err)
	}

	effective := f.paths.Map(canonical)
	code, err := fsys.ReadFile(effective)
	if err != nil {
		return nil, minimize(effective, err)
	}

	f.logger.Debug().Str("path", canonical).Str("effective", effective).Msg("including")
	return c.Compile(code, canonical, m)
}

// minimize hides system error text for missing files. Other failures keep
// their own message.
func minimize(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &IncludeError{Path: path, Err: err}
	}
	return err
}
