package executor

import (
	"context"
	"fmt"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// Evaluator compiles and runs source that is not backed by a file.
type Evaluator struct {
	compiler UnitCompiler
	provider *EnvironmentProvider
	logger   zerolog.Logger
}

func NewEvaluator(c UnitCompiler, provider *EnvironmentProvider, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		compiler: c,
		provider: provider,
		logger:   telemetry.Component(logger, "evaluator"),
	}
}

// EvaluateSync runs source in sync mode. Errors are returned unchanged.
func (ev *Evaluator) EvaluateSync(ctx context.Context, source []byte, path string) (engine.Result, error) {
	factory, err := ev.compile(source, path, mode.Sync)
	if err != nil {
		return engine.Result{}, err
	}
	return factory().Run(ctx)
}

// Evaluate runs source in mode m. Failures, including compile failures,
// reject the returned future with the original error.
func (ev *Evaluator) Evaluate(ctx context.Context, source []byte, path string, m mode.Mode) *future.Future[engine.Result] {
	switch m {
	case mode.Sync:
		return future.From(ev.EvaluateSync(ctx, source, path))
	case mode.Async, mode.PromiseSync:
		factory, err := ev.compile(source, path, m)
		if err != nil {
			return future.Rejected[engine.Result](err)
		}
		return factory().Execute(ctx)
	default:
		return future.Rejected[engine.Result](fmt.Errorf("invalid mode %v", m))
	}
}

// compile reports diagnostics through the environment before returning
// them. Execution errors never pass through here.
func (ev *Evaluator) compile(source []byte, path string, m mode.Mode) (engine.ModuleFactory, error) {
	env, err := ev.provider.Environment(ev.compiler, m)
	if err != nil {
		return nil, err
	}

	factory, err := ev.compiler.Compile(source, path, m)
	if err != nil {
		if engine.IsDiagnostic(err) {
			ev.logger.Debug().Err(err).Str("path", path).Msg("diagnostic")
			env.ReportError(err)
		}
		return nil, err
	}
	return factory, nil
}
